// Package editor holds the editing state of a letter: one PageEditor for the
// page being edited and a LetterEditor that paginates over a Document.
package editor

import (
	"sync"

	"github.com/jun/dijitalmektup/internal/markup"
)

// State of a PageEditor.
type State int

const (
	Editable State = iota
	Full
	ReadOnly
)

func (s State) String() string {
	switch s {
	case Editable:
		return "editable"
	case Full:
		return "full"
	case ReadOnly:
		return "readOnly"
	default:
		return "unknown"
	}
}

// DefaultCharLimit is the number of plain text characters a page holds.
const DefaultCharLimit = 1150

// Capacity decides whether a page can hold the given markup.
type Capacity interface {
	Overflows(html string) bool
}

// CharCeiling limits a page to Limit characters of plain text.
type CharCeiling struct {
	Limit int
}

func (c CharCeiling) Overflows(html string) bool {
	return markup.CharCount(html) > c.Limit
}

// Reconcile compares the authoritative content with what the surface last
// rendered. It returns the content to render and whether it differs.
func Reconcile(incoming, rendered string) (string, bool) {
	if incoming == rendered {
		return rendered, false
	}
	return incoming, true
}

// PageEditor holds the content of a single page.
type PageEditor struct {
	mu       sync.Mutex
	rendered string
	state    State
	capacity Capacity

	onChange func(html string)
	onFull   func()
}

type Option func(*PageEditor)

// AsReadOnly makes the editor permanently read-only.
func AsReadOnly() Option {
	return func(p *PageEditor) { p.state = ReadOnly }
}

// WithCapacity replaces the default CharCeiling. A nil capacity never overflows.
func WithCapacity(c Capacity) Option {
	return func(p *PageEditor) { p.capacity = c }
}

// OnChange registers the callback receiving every accepted content.
func OnChange(fn func(html string)) Option {
	return func(p *PageEditor) { p.onChange = fn }
}

// OnFull registers the callback fired when an edit is rejected.
func OnFull(fn func()) Option {
	return func(p *PageEditor) { p.onFull = fn }
}

func NewPageEditor(content string, opts ...Option) *PageEditor {
	p := &PageEditor{
		rendered: content,
		state:    Editable,
		capacity: CharCeiling{Limit: DefaultCharLimit},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PageEditor) Content() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rendered
}

func (p *PageEditor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Insert appends fragment at the end of the page. It returns false when the
// page is read-only or the result would overflow.
func (p *PageEditor) Insert(fragment string) bool {
	return p.apply(func(current string) string { return current + fragment })
}

// Input replaces the whole page with html, as after a paste or a deletion.
func (p *PageEditor) Input(html string) bool {
	return p.apply(func(string) string { return html })
}

// apply computes the next content from the current one and stores it, all
// under the lock. Callbacks run after the lock is released.
func (p *PageEditor) apply(edit func(current string) string) bool {
	p.mu.Lock()
	if p.state == ReadOnly {
		p.mu.Unlock()
		return false
	}

	next := edit(p.rendered)
	if p.capacity != nil && p.capacity.Overflows(next) {
		p.state = Full
		onFull := p.onFull
		p.mu.Unlock()
		if onFull != nil {
			onFull()
		}
		return false
	}

	p.state = Editable
	p.rendered = next
	onChange := p.onChange
	p.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
	return true
}

// SetContent mirrors externally owned content into the editor. The rendered
// content is only replaced when it diverges, and no callback fires.
func (p *PageEditor) SetContent(external string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, changed := Reconcile(external, p.rendered)
	if changed {
		p.rendered = next
	}
	return changed
}
