package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/studyhall/chatsync/internal/rpc"
	"github.com/studyhall/chatsync/internal/tui/ui"
)

// ConversationInfo displays the peer profile and inbox state of a
// conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements ui.Page.
func (ci *ConversationInfo) Name() string { return "Details" }

// FocusTarget implements ui.Page.
func (ci *ConversationInfo) FocusTarget() tview.Primitive { return ci }

// Hints implements ui.Page.
func (ci *ConversationInfo) Hints() []ui.Hint {
	return []ui.Hint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// Update renders conversation details. Either argument may be nil.
func (ci *ConversationInfo) Update(peer string, profile *rpc.Profile, summary *rpc.Summary) {
	ci.Clear()

	fg := ui.ColorName(ci.theme.FgColor)
	ct := ui.ColorName(ci.theme.CounterColor)

	name, lastSeen, pic := "-", "-", "-"
	online := false
	if profile != nil {
		if profile.FullName != "" {
			name = profile.FullName
		}
		if profile.LastSeen != "" {
			lastSeen = profile.LastSeen
		}
		if profile.ProfilePic != "" {
			pic = profile.ProfilePic
		}
		online = profile.Online
	}

	unread, preview, active := 0, "-", "-"
	if summary != nil {
		unread = summary.UnreadCount
		if summary.Preview != "" {
			preview = summary.Preview
		}
		active = formatAgo(summary.LastActivityMs)
		if name == "-" && summary.FullName != "" {
			name = summary.FullName
		}
		online = online || summary.Online
	}

	presence := "no"
	if online {
		presence = "yes"
	}

	text := fmt.Sprintf(
		"\n [%s::b]Name:[-:-:-]         [%s]%s[-]\n"+
			" [%s::b]Username:[-:-:-]     [%s]%s[-]\n"+
			" [%s::b]Online:[-:-:-]       [%s]%s[-]\n"+
			" [%s::b]Last Seen:[-:-:-]    [%s]%s[-]\n"+
			" [%s::b]Picture:[-:-:-]      [%s]%s[-]\n"+
			" [%s::b]Unread:[-:-:-]       [%s]%d[-]\n"+
			" [%s::b]Last Active:[-:-:-]  [%s]%s[-]\n"+
			" [%s::b]Last Message:[-:-:-] [%s]%s[-]",
		fg, ct, tview.Escape(oneLine(name)),
		fg, ct, tview.Escape(peer),
		fg, ct, presence,
		fg, ct, tview.Escape(lastSeen),
		fg, ct, tview.Escape(pic),
		fg, ct, unread,
		fg, ct, active,
		fg, ct, tview.Escape(oneLine(preview)),
	)

	_, _ = fmt.Fprint(ci, text)
	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(peer)))
}
