package views

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/studyhall/chatsync/internal/tui/ui"
)

// ShareView shows a scannable QR code linking to a profile.
type ShareView struct {
	*tview.TextView
	theme *ui.Theme
	link  string
}

// NewShareView creates a new share view.
func NewShareView(theme *ui.Theme) *ShareView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Share Profile ")
	tv.SetTitleColor(theme.TitleColor)

	return &ShareView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements ui.Page.
func (sv *ShareView) Name() string { return "Share" }

// FocusTarget implements ui.Page.
func (sv *ShareView) FocusTarget() tview.Primitive { return sv }

// Hints implements ui.Page.
func (sv *ShareView) Hints() []ui.Hint {
	return []ui.Hint{
		{Key: "Esc", Description: "Back"},
	}
}

// ProfileLink returns the public profile URL of username on host.
func ProfileLink(host, username string) string {
	return (&url.URL{Scheme: "https", Host: host, Path: "/profile/" + username + "/"}).String()
}

// Show renders link as a QR code with the link underneath.
func (sv *ShareView) Show(link string) {
	sv.Clear()
	sv.link = link
	ascii := renderQR(link)
	_, _ = fmt.Fprintf(sv, "\n%s\n  [::d]%s[-:-:-]", ascii, tview.Escape(link))
}

// Link returns the link currently shown.
func (sv *ShareView) Link() string {
	return sv.link
}

// renderQR converts a string to a compact ASCII QR code using Unicode
// half-block characters.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}
	qr.DisableBorder = false

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder

	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := 0; x < cols; x++ {
			top := bitmap[y][x]
			bot := false
			if y+1 < rows {
				bot = bitmap[y+1][x]
			}
			switch {
			case top && bot:
				sb.WriteRune('\u2588') // █
			case top && !bot:
				sb.WriteRune('\u2580') // ▀
			case !top && bot:
				sb.WriteRune('\u2584') // ▄
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}

	return sb.String()
}
