package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel is the severity of a flash notice.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

var flashLifetime = map[FlashLevel]time.Duration{
	FlashInfo: 5 * time.Second,
	FlashWarn: 8 * time.Second,
	FlashErr:  10 * time.Second,
}

// FlashMessage is one notice. Repeat counts identical notices raised while
// it was still showing.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Repeat  int
	Expires time.Time
}

// FlashModel holds the notice shown in the footer. It is safe to raise
// notices from any goroutine; the UI picks them up from Watch.
type FlashModel struct {
	mu      sync.Mutex
	current FlashMessage
	watchCh chan FlashMessage
	now     func() time.Time
}

// NewFlashModel creates an empty model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		watchCh: make(chan FlashMessage, 8),
		now:     time.Now,
	}
}

// Info raises an informational notice.
func (f *FlashModel) Info(msg string) {
	f.raise(msg, FlashInfo, flashLifetime[FlashInfo])
}

// Warn raises a warning, such as a degraded channel.
func (f *FlashModel) Warn(msg string) {
	f.raise(msg, FlashWarn, flashLifetime[FlashWarn])
}

// Err raises err as an error notice.
func (f *FlashModel) Err(err error) {
	f.raise(err.Error(), FlashErr, flashLifetime[FlashErr])
}

// Set raises an info notice that lasts d.
func (f *FlashModel) Set(msg string, d time.Duration) {
	f.raise(msg, FlashInfo, d)
}

// Clear drops the current notice.
func (f *FlashModel) Clear() {
	f.mu.Lock()
	f.current = FlashMessage{}
	f.mu.Unlock()
}

func (f *FlashModel) raise(msg string, level FlashLevel, d time.Duration) {
	now := f.now()
	f.mu.Lock()
	next := FlashMessage{Text: msg, Level: level, Expires: now.Add(d)}
	if f.live(now) && f.current.Text == msg && f.current.Level == level {
		next.Repeat = f.current.Repeat + 1
	}
	f.current = next
	f.mu.Unlock()

	select {
	case f.watchCh <- next:
	default:
	}
}

func (f *FlashModel) live(now time.Time) bool {
	return f.current.Text != "" && now.Before(f.current.Expires)
}

// Get returns the text of the live notice, or "".
func (f *FlashModel) Get() string {
	if m := f.GetMessage(); m != nil {
		return m.Text
	}
	return ""
}

// GetMessage returns a copy of the live notice, or nil once it expired.
func (f *FlashModel) GetMessage() *FlashMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live(f.now()) {
		return nil
	}
	m := f.current
	return &m
}

// Watch delivers every raised notice. Notices raised while the buffer is
// full are only visible through GetMessage.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// FlashBar draws the live notice in the footer.
type FlashBar struct {
	*tview.TextView
	colors map[FlashLevel]string
}

// NewFlashBar creates an empty bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		colors: map[FlashLevel]string{
			FlashInfo: ColorName(theme.FlashInfoColor),
			FlashWarn: ColorName(theme.FlashWarnColor),
			FlashErr:  ColorName(theme.FlashErrColor),
		},
	}
}

// Update shows msg, or clears the bar for nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}
	text := tview.Escape(msg.Text)
	if msg.Repeat > 0 {
		text += fmt.Sprintf(" (x%d)", msg.Repeat+1)
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", fb.colors[msg.Level], text)
}
