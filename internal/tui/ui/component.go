package ui

import "github.com/rivo/tview"

// Hint is one key shown in the header menu.
type Hint struct {
	Key         string
	Description string
	Jump        bool // digit shortcuts, drawn in their own color
}

// Page is a view that can sit on the Pages stack.
type Page interface {
	tview.Primitive
	// Name is the label shown for the page.
	Name() string
	Hints() []Hint
	// FocusTarget is the primitive that takes focus when the page is shown.
	FocusTarget() tview.Primitive
}
