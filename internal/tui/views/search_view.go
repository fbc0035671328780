package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/studyhall/chatsync/internal/rpc"
	"github.com/studyhall/chatsync/internal/tui/ui"
)

// SearchView runs full-text queries against the local message mirror. Hits
// are listed newest first with the matched term highlighted.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	query   string
	hits    []rpc.SearchHit
	onQuery func(query string)
}

// NewSearchView creates an empty search page.
func NewSearchView(theme *ui.Theme) *SearchView {
	sv := &SearchView{
		theme: theme,
		input: tview.NewInputField().
			SetLabel(" Search: ").
			SetFieldWidth(0),
		results: tview.NewTable().
			SetSelectable(true, false).
			SetFixed(1, 0),
	}

	sv.input.SetBackgroundColor(theme.BgColor)
	sv.input.SetFieldBackgroundColor(theme.BgColor)
	sv.input.SetFieldTextColor(theme.FgColor)
	sv.input.SetLabelColor(theme.MenuKeyColor)
	sv.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			sv.Submit(sv.input.GetText())
		}
	})

	sv.results.SetBorder(true)
	sv.results.SetBorderColor(theme.BorderColor)
	sv.results.SetBackgroundColor(theme.BgColor)
	sv.results.SetTitleColor(theme.TitleColor)
	sv.results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	sv.results.SetTitle(" Results ")

	sv.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(sv.input, 1, 0, true).
		AddItem(sv.results, 0, 1, false)
	return sv
}

// Name implements ui.Page.
func (sv *SearchView) Name() string { return "Search" }

// FocusTarget implements ui.Page.
func (sv *SearchView) FocusTarget() tview.Primitive { return sv.input }

// Hints implements ui.Page.
func (sv *SearchView) Hints() []ui.Hint {
	return []ui.Hint{
		{Key: "Enter", Description: "Search/Open"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnQuery registers the callback that runs a query.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
}

// Submit runs query as if it had been typed. Blank queries are ignored.
func (sv *SearchView) Submit(query string) {
	query = strings.TrimSpace(query)
	sv.input.SetText(query)
	if query == "" || sv.onQuery == nil {
		return
	}
	sv.onQuery(query)
}

// Update shows hits for query.
func (sv *SearchView) Update(query string, hits []rpc.SearchHit) {
	sv.query, sv.hits = query, hits
	sv.results.Clear()

	for col, h := range []string{"PEER", "FROM", "MESSAGE", "WHEN"} {
		sv.results.SetCell(0, col, tview.NewTableCell(" "+h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetBackgroundColor(sv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}

	if len(hits) == 0 {
		sv.results.SetCell(1, 0, tview.NewTableCell(
			fmt.Sprintf(" no messages match %q", query)).
			SetSelectable(false).
			SetTextColor(sv.theme.FgColor))
		sv.results.SetTitle(" Results ")
		return
	}

	mark := ui.ColorName(sv.theme.UnreadColor)
	for i, h := range hits {
		row := i + 1
		cell := func(text string) *tview.TableCell {
			return tview.NewTableCell(" " + text).SetTextColor(sv.theme.FgColor)
		}
		sv.results.SetCell(row, 0, cell(tview.Escape(h.Peer)).SetMaxWidth(24))
		sv.results.SetCell(row, 1, cell(tview.Escape(h.Message.Sender)).SetMaxWidth(18))
		sv.results.SetCell(row, 2, cell(highlight(oneLine(h.Snippet), query, mark)).SetExpansion(1))
		sv.results.SetCell(row, 3, cell(formatAgo(h.Message.CreatedAtMs)).SetMaxWidth(16))
	}
	sv.results.SetTitle(fmt.Sprintf(" Results for %q (%d) ", tview.Escape(query), len(hits)))
	sv.results.Select(1, 0)
}

// SelectedPeer returns the peer of the selected hit.
func (sv *SearchView) SelectedPeer() string {
	row, _ := sv.results.GetSelection()
	if row < 1 || row > len(sv.hits) {
		return ""
	}
	return sv.hits[row-1].Peer
}

// Input returns the query field.
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the hit table.
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}

// highlight escapes s and colors every case-insensitive occurrence of term.
// Text whose lower-case form changes length is left unmarked.
func highlight(s, term, color string) string {
	lower, t := strings.ToLower(s), strings.ToLower(term)
	if t == "" || len(lower) != len(s) {
		return tview.Escape(s)
	}
	var b strings.Builder
	for {
		i := strings.Index(lower, t)
		if i < 0 {
			b.WriteString(tview.Escape(s))
			return b.String()
		}
		b.WriteString(tview.Escape(s[:i]))
		_, _ = fmt.Fprintf(&b, "[%s::b]%s[-:-:-]", color, tview.Escape(s[i:i+len(t)]))
		s, lower = s[i+len(t):], lower[i+len(t):]
	}
}
