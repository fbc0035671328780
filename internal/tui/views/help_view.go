package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/studyhall/chatsync/internal/tui/ui"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements ui.Page.
func (hv *HelpView) Name() string { return "Help" }

// FocusTarget implements ui.Page.
func (hv *HelpView) FocusTarget() tview.Primitive { return hv }

// Hints implements ui.Page.
func (hv *HelpView) Hints() []ui.Hint {
	return []ui.Hint{
		{Key: "Esc", Description: "Back"},
	}
}

func (hv *HelpView) render() {
	kc := ui.ColorName(hv.theme.MenuKeyColor)

	help := fmt.Sprintf(`
  [::b]Global Keys[-:-:-]

  [%[1]s]:[-:-:-]      Command mode        [%[1]s]Esc[-:-:-]    Cancel / Go back
  [%[1]s]/[-:-:-]      Filter inbox        [%[1]s]?[-:-:-]      Help
  [%[1]s]q[-:-:-]      Quit                [%[1]s]Ctrl-C[-:-:-] Quit immediately

  [::b]Inbox[-:-:-]

  [%[1]s]Enter[-:-:-]  Open conversation   [%[1]s]0[-:-:-]      Clear filter
  [%[1]s]1-9[-:-:-]    Jump to Nth row     [%[1]s]r[-:-:-]      Refresh from server
  [%[1]s]j/Down[-:-:-] Move down           [%[1]s]k/Up[-:-:-]   Move up

  [::b]Conversation[-:-:-]

  [%[1]s]i[-:-:-]      Focus composer      [%[1]s]d[-:-:-]      Conversation details
  [%[1]s]p[-:-:-]      Profile QR code     [%[1]s]Enter[-:-:-]  Send (in composer)

  Messages you read on screen are marked seen automatically.

  [::b]Commands (: mode)[-:-:-]

  [%[1]s]:search <query>[-:-:-]   Search cached messages
  [%[1]s]:chat <username>[-:-:-]  Open a conversation
  [%[1]s]:share [username[][-:-:-] Show a profile QR code
  [%[1]s]:refresh[-:-:-]          Reconnect and reload everything
  [%[1]s]:offline[-:-:-]          Toggle the cached inbox
  [%[1]s]:help[-:-:-] / [%[1]s]:h[-:-:-]      Show this help
  [%[1]s]:quit[-:-:-] / [%[1]s]:q[-:-:-]      Quit application
`, kc)

	_, _ = fmt.Fprint(hv, help)
}
