package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/studyhall/chatsync/internal/rpc"
	"github.com/studyhall/chatsync/internal/tui/ui"
)

// ConversationList is the inbox table.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	entries []rpc.Summary
	me      string
	filter  string
	offline bool
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Inbox ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
	}
}

// Name implements ui.Page.
func (cl *ConversationList) Name() string { return "Inbox" }

// FocusTarget implements ui.Page.
func (cl *ConversationList) FocusTarget() tview.Primitive { return cl }

// Hints implements ui.Page.
func (cl *ConversationList) Hints() []ui.Hint {
	return []ui.Hint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "r", Description: "Refresh"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
		{Key: "1-9", Description: "Jump", Jump: true},
	}
}

// SetMe sets the signed-in username, used to label own previews.
func (cl *ConversationList) SetMe(me string) {
	cl.me = me
}

// Update refreshes the table. offline marks entries served from the local
// mirror.
func (cl *ConversationList) Update(entries []rpc.Summary, offline bool) {
	cl.entries = entries
	cl.offline = offline
	cl.render()
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// ClearFilter clears the active filter.
func (cl *ConversationList) ClearFilter() {
	cl.SetFilter("")
}

// Filter returns the active filter.
func (cl *ConversationList) Filter() string {
	return cl.filter
}

// Entries returns the unfiltered rows.
func (cl *ConversationList) Entries() []rpc.Summary {
	return cl.entries
}

func (cl *ConversationList) visible() []rpc.Summary {
	if cl.filter == "" {
		return cl.entries
	}
	var out []rpc.Summary
	for _, e := range cl.entries {
		if containsFold(e.Peer, cl.filter) || containsFold(e.FullName, cl.filter) {
			out = append(out, e)
		}
	}
	return out
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" ACTIVE", 0},
		{" ", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	rows := cl.visible()
	for i, e := range rows {
		row := i + 1
		name := displayName(e.FullName, e.Peer)
		attrs, nameColor := tcell.AttrNone, cl.theme.FgColor
		if e.UnreadCount > 0 {
			name = fmt.Sprintf("(%d) %s", e.UnreadCount, name)
			attrs, nameColor = tcell.AttrBold, cl.theme.UnreadColor
		}

		preview := e.Preview
		if cl.me != "" && e.PreviewSender == cl.me {
			preview = "You: " + preview
			if e.PreviewSeen {
				preview += " ✓✓"
			}
		}

		presence := ""
		if e.Online {
			presence = "●"
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(oneLine(name))).
			SetExpansion(1).SetTextColor(nameColor).SetAttributes(attrs))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(truncate(oneLine(preview), 60))).
			SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatAgo(e.LastActivityMs)).
			SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(presence).
			SetTextColor(cl.theme.OnlineColor).SetAlign(tview.AlignCenter))
	}

	title := fmt.Sprintf(" Inbox (%d) ", len(cl.entries))
	if cl.filter != "" {
		title = fmt.Sprintf(" Inbox (%d/%d) filter: %s ", len(rows), len(cl.entries), cl.filter)
	}
	if cl.offline {
		title += "(offline) "
	}
	cl.SetTitle(title)
}

// SelectedPeer returns the peer on the selected row.
func (cl *ConversationList) SelectedPeer() string {
	row, _ := cl.GetSelection()
	return cl.PeerByIndex(row)
}

// PeerByIndex returns the peer of the Nth visible row (1-based).
func (cl *ConversationList) PeerByIndex(n int) string {
	rows := cl.visible()
	if n < 1 || n > len(rows) {
		return ""
	}
	return rows[n-1].Peer
}

func displayName(fullName, peer string) string {
	if fullName != "" {
		return fullName
	}
	return peer
}
