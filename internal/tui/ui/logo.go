package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

var logoArt = []string{
	"┏━╸╻ ╻┏━┓╺┳╸",
	"┃  ┣━┫┣━┫ ┃ ",
	"┗━╸╹ ╹╹ ╹ ╹ ",
}

// Logo is the header mark. Its caption turns into the unseen counter while
// there are unseen messages.
type Logo struct {
	*tview.TextView
	theme *Theme
	badge int
}

// NewLogo creates the logo with no unseen messages.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 1, 0)

	l := &Logo{TextView: tv, theme: theme}
	l.render()
	return l
}

// SetBadge updates the unseen counter. It redraws only on change.
func (l *Logo) SetBadge(n int) {
	if n == l.badge {
		return
	}
	l.badge = n
	l.render()
}

func (l *Logo) render() {
	l.Clear()
	var b strings.Builder
	art := ColorName(l.theme.TitleColor)
	for _, line := range logoArt {
		_, _ = fmt.Fprintf(&b, "[%s::b] %s[-:-:-]\n", art, line)
	}
	if l.badge > 0 {
		_, _ = fmt.Fprintf(&b, "[%s::b]● %d unseen[-:-:-]", ColorName(l.theme.UnreadColor), l.badge)
	} else {
		_, _ = fmt.Fprintf(&b, "[%s]study hall inbox[-:-:-]", ColorName(l.theme.FgColor))
	}
	_, _ = fmt.Fprint(l, b.String())
}
