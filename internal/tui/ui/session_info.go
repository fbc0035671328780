package ui

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rivo/tview"
)

// SessionData holds daemon state for display.
type SessionData struct {
	Account  string
	Me       string
	Channels map[string]string
	Badge    int
	LastSync time.Time
}

// SessionInfo displays session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the session info.
func (si *SessionInfo) Update(data *SessionData) {
	si.Clear()
	if data == nil {
		return
	}

	fg := ColorName(si.theme.FgColor)
	counter := ColorName(si.theme.CounterColor)

	me := data.Me
	if me == "" {
		me = "-"
	}
	synced := "never"
	if !data.LastSync.IsZero() {
		synced = humanize.Time(data.LastSync)
	}

	text := fmt.Sprintf(
		"[%s::b]Account:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Inbox:[-:-:-]   %s\n"+
			"[%s::b]Alerts:[-:-:-]  %s\n"+
			"[%s::b]Chat:[-:-:-]    %s\n"+
			"[%s::b]Unread:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Synced:[-:-:-]  [%s]%s[-]",
		fg, counter, tview.Escape(data.Account),
		fg, counter, tview.Escape(me),
		fg, StateTag(data.Channels["inbox"]),
		fg, StateTag(data.Channels["notifications"]),
		fg, StateTag(data.Channels["chat"]),
		fg, counter, humanize.Comma(int64(data.Badge)),
		fg, counter, synced,
	)

	_, _ = fmt.Fprint(si, text)
}

// StateTag colors a channel state; an empty state renders as "-".
func StateTag(state string) string {
	switch state {
	case "OPEN":
		return "[green]OPEN[-]"
	case "CONNECTING":
		return "[yellow]CONNECTING[-]"
	case "ERROR":
		return "[red]ERROR[-]"
	case "":
		return "[gray]-[-]"
	}
	return "[gray]" + state + "[-]"
}
