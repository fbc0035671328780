package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	"github.com/rivo/uniseg"
)

// Menu lists the keys of the current page in the header, filling columns
// top to bottom.
type Menu struct {
	*tview.TextView
	theme *Theme
	rows  int
}

// NewMenu creates a menu that wraps into a new column every rows hints.
func NewMenu(theme *Theme, rows int) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)
	if rows < 1 {
		rows = 1
	}
	return &Menu{TextView: tv, theme: theme, rows: rows}
}

// Update redraws the menu for hints.
func (m *Menu) Update(hints []Hint) {
	m.Clear()
	_, _ = fmt.Fprint(m, m.layout(hints))
}

func (m *Menu) layout(hints []Hint) string {
	if len(hints) == 0 {
		return ""
	}
	cols := (len(hints) + m.rows - 1) / m.rows
	widths := make([]int, cols)
	for i, h := range hints {
		widths[i/m.rows] = max(widths[i/m.rows], cellWidth(h))
	}

	lines := make([]strings.Builder, min(m.rows, len(hints)))
	for i, h := range hints {
		col, row := i/m.rows, i%m.rows
		color := ColorName(m.theme.MenuKeyColor)
		if h.Jump {
			color = ColorName(m.theme.NumericKeyColor)
		}
		line := &lines[row]
		_, _ = fmt.Fprintf(line, "[%s::b]<%s>[-:-:-] %s", color, tview.Escape(h.Key), h.Description)
		if col < cols-1 {
			line.WriteString(strings.Repeat(" ", widths[col]-cellWidth(h)+3))
		}
	}

	out := make([]string, len(lines))
	for i := range lines {
		out[i] = lines[i].String()
	}
	return strings.Join(out, "\n")
}

func cellWidth(h Hint) int {
	return uniseg.StringWidth("<"+h.Key+"> ") + uniseg.StringWidth(h.Description)
}
