package ui

import (
	"fmt"
	"slices"

	"github.com/rivo/tview"
)

// Pages keeps a navigation stack of registered pages on top of tview.Pages.
// Only the top of the stack is visible.
type Pages struct {
	*tview.Pages
	byKey    map[string]Page
	stack    []string
	onChange func(stack []string, top Page)
}

// NewPages creates an empty stack.
func NewPages() *Pages {
	return &Pages{
		Pages: tview.NewPages(),
		byKey: make(map[string]Page),
	}
}

// Register adds a hidden page under key. Registering a key twice panics.
func (p *Pages) Register(key string, page Page) {
	if _, ok := p.byKey[key]; ok {
		panic(fmt.Sprintf("ui: page %q registered twice", key))
	}
	p.byKey[key] = page
	p.AddPage(key, page, true, false)
}

// SetOnChange is called with the new stack and its top page after every
// navigation.
func (p *Pages) SetOnChange(fn func(stack []string, top Page)) {
	p.onChange = fn
}

// Push shows key on top of the stack. Pushing the current page is a no-op
// and reports false, as does an unknown key.
func (p *Pages) Push(key string) bool {
	if _, ok := p.byKey[key]; !ok || p.Current() == key {
		return false
	}
	p.stack = append(p.stack, key)
	p.show()
	return true
}

// Pop removes the top page and returns its key, or "" on an empty stack.
func (p *Pages) Pop() string {
	if len(p.stack) == 0 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	if len(p.stack) == 0 {
		p.HidePage(top)
	}
	p.show()
	return top
}

// PopTo pops until key is on top. It returns false, leaving the stack
// alone, when key is not on it.
func (p *Pages) PopTo(key string) bool {
	i := slices.Index(p.stack, key)
	if i < 0 {
		return false
	}
	p.stack = p.stack[:i+1]
	p.show()
	return true
}

// Reset replaces the whole stack with key.
func (p *Pages) Reset(key string) {
	p.stack = append(p.stack[:0], key)
	p.show()
}

// Current returns the key on top of the stack.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Top returns the page on top of the stack, or nil.
func (p *Pages) Top() Page {
	return p.byKey[p.Current()]
}

// Contains reports whether key is anywhere on the stack.
func (p *Pages) Contains(key string) bool {
	return slices.Contains(p.stack, key)
}

// Stack returns a copy of the stack, bottom first.
func (p *Pages) Stack() []string {
	return slices.Clone(p.stack)
}

// Depth returns the stack size.
func (p *Pages) Depth() int {
	return len(p.stack)
}

func (p *Pages) show() {
	if key := p.Current(); key != "" {
		p.SwitchToPage(key)
	}
	if p.onChange != nil {
		p.onChange(p.Stack(), p.Top())
	}
}
