package views

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/studyhall/chatsync/internal/rpc"
	"github.com/studyhall/chatsync/internal/tui/ui"
)

// span is the block of rendered lines a peer message occupies.
type span struct {
	id    int64
	start int
	lines int
}

// MessageThread displays one conversation with its peer header and composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	header   *tview.TextView
	messages *tview.TextView
	composer *tview.InputField
	peer     string
	title    string
	me       string
	count    int
	spans    []span
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	header := tview.NewTextView().
		SetDynamicColors(true)
	header.SetBackgroundColor(theme.BgColor)
	header.SetTextColor(theme.FgColor)
	header.SetBorderPadding(0, 0, 1, 1)

	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 2, 0, false).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		header:   header,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			text := composer.GetText()
			if strings.TrimSpace(text) != "" {
				mt.onSend(text)
				composer.SetText("")
			}
		}
	})

	return mt
}

// Name implements ui.Page.
func (mt *MessageThread) Name() string {
	if mt.title != "" {
		return mt.title
	}
	return "Messages"
}

// FocusTarget implements ui.Page.
func (mt *MessageThread) FocusTarget() tview.Primitive { return mt.messages }

// Hints implements ui.Page.
func (mt *MessageThread) Hints() []ui.Hint {
	return []ui.Hint{
		{Key: "i", Description: "Compose"},
		{Key: "d", Description: "Details"},
		{Key: "p", Description: "Profile QR"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// SetOnSend sets the callback when a message is submitted.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Peer returns the peer shown in the thread.
func (mt *MessageThread) Peer() string {
	return mt.peer
}

// Update renders a conversation: the peer header, then messages oldest
// first grouped into bubbles.
func (mt *MessageThread) Update(conv *rpc.Conversation) {
	if conv == nil {
		return
	}
	follow := conv.Peer != mt.peer || len(conv.Messages) != mt.count
	mt.peer = conv.Peer
	mt.count = len(conv.Messages)
	mt.me = conv.Me
	mt.title = conv.Peer
	if conv.Profile != nil && conv.Profile.FullName != "" {
		mt.title = conv.Profile.FullName
	}

	mt.renderHeader(conv)

	live := ""
	if !conv.Live {
		live = " (offline)"
	}
	mt.messages.SetTitle(fmt.Sprintf(" %s%s ", tview.Escape(oneLine(mt.title)), live))

	mt.messages.Clear()
	var b strings.Builder
	mt.spans = mt.spans[:0]
	line := 0
	for _, m := range conv.Messages {
		block := mt.renderMessage(m)
		n := strings.Count(block, "\n")
		if m.ID != 0 && m.Sender != mt.me {
			mt.spans = append(mt.spans, span{id: m.ID, start: line, lines: n})
		}
		line += n
		b.WriteString(block)
	}
	_, _ = fmt.Fprint(mt.messages, b.String())
	if follow {
		mt.messages.ScrollToEnd()
	}
}

func (mt *MessageThread) renderHeader(conv *rpc.Conversation) {
	mt.header.Clear()
	fg := ui.ColorName(mt.theme.FgColor)
	counter := ui.ColorName(mt.theme.CounterColor)

	presence := "offline"
	if p := conv.Profile; p != nil {
		switch {
		case p.Online:
			presence = "[green]online[-]"
		case p.LastSeen != "":
			presence = "last seen " + tview.Escape(p.LastSeen)
		}
	}
	_, _ = fmt.Fprintf(mt.header, "[%s::b]%s[-:-:-] [%s]@%s[-]\n[::d]%s[-:-:-]",
		counter, tview.Escape(oneLine(mt.title)),
		fg, tview.Escape(conv.Peer), presence)
}

// renderMessage formats one message. The sender line is printed at the
// start of a group and a blank line closes it.
func (mt *MessageThread) renderMessage(m rpc.Message) string {
	var b strings.Builder
	own := m.Sender == mt.me

	if m.Position == "first" || m.Position == "single" || m.Position == "" {
		sender := m.Sender
		color := ui.ColorName(mt.theme.PeerColor)
		if own {
			sender = "You"
			color = ui.ColorName(mt.theme.OwnColor)
		}
		_, _ = fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n",
			color, tview.Escape(oneLine(sender)), formatTimestamp(m.CreatedAtMs))
	}

	body := tview.Escape(plainText(m.Body))
	if own {
		body += " " + mt.statusMark(m.Status)
	}
	b.WriteString(body)
	b.WriteString("\n")

	if m.ShowSeen {
		_, _ = fmt.Fprintf(&b, "[%s]Seen[-]\n", ui.ColorName(mt.theme.ReceiptColor))
	}
	if m.Position == "last" || m.Position == "single" || m.Position == "" {
		b.WriteString("\n")
	}
	return b.String()
}

func (mt *MessageThread) statusMark(status string) string {
	var mark string
	switch status {
	case "sending":
		mark = "…"
	case "sent":
		mark = "✓"
	case "seen":
		mark = "✓✓"
	default:
		return ""
	}
	return fmt.Sprintf("[%s]%s[-]", ui.ColorName(mt.theme.ReceiptColor), mark)
}

// VisibleRatios returns, per rendered peer message, the fraction of its
// lines inside the viewport. Wrapped lines are estimated from the width.
func (mt *MessageThread) VisibleRatios() map[int64]float64 {
	offset, _ := mt.messages.GetScrollOffset()
	_, _, width, height := mt.messages.GetInnerRect()
	return visibleRatios(mt.wrapped(width), offset, height)
}

// wrapped recomputes spans with wrapping at width.
func (mt *MessageThread) wrapped(width int) []span {
	if width <= 0 {
		return mt.spans
	}
	text := mt.messages.GetText(true)
	lines := strings.Split(text, "\n")
	// prefix[i] is the wrapped row where source line i starts.
	prefix := make([]int, len(lines)+1)
	for i, l := range lines {
		h := 1
		if n := utf8.RuneCountInString(l); n > width {
			h = (n + width - 1) / width
		}
		prefix[i+1] = prefix[i] + h
	}
	at := func(i int) int {
		return prefix[min(i, len(lines))]
	}
	out := make([]span, len(mt.spans))
	for i, s := range mt.spans {
		start := at(s.start)
		out[i] = span{id: s.id, start: start, lines: at(s.start+s.lines) - start}
	}
	return out
}

func visibleRatios(spans []span, offset, height int) map[int64]float64 {
	out := make(map[int64]float64, len(spans))
	if height <= 0 {
		return out
	}
	top, bottom := offset, offset+height
	for _, s := range spans {
		if s.lines <= 0 {
			continue
		}
		lo := max(s.start, top)
		hi := min(s.start+s.lines, bottom)
		if hi <= lo {
			out[s.id] = 0
			continue
		}
		out[s.id] = float64(hi-lo) / float64(s.lines)
	}
	return out
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
