package editor

import "sync"

// Document is the page sequence owned by the application shell.
type Document interface {
	Pages() []string
	CurrentPage() int
	SetCurrentPage(i int)
	SetPageContent(i int, html string)
	AppendPage()
}

// LetterEditor paginates over a Document. Only the current page has a
// mounted PageEditor; the other pages exist as strings in the document.
type LetterEditor struct {
	mu          sync.Mutex
	doc         Document
	capacity    Capacity
	readOnly    bool
	feedback    *Feedback
	onPageFull  func(page int)
	active      *PageEditor
	activeIndex int
}

type LetterOption func(*LetterEditor)

// WithPageCapacity sets the capacity of every mounted page.
func WithPageCapacity(c Capacity) LetterOption {
	return func(e *LetterEditor) { e.capacity = c }
}

// ReadOnlyLetter mounts every page read-only, for viewing sent or received letters.
func ReadOnlyLetter() LetterOption {
	return func(e *LetterEditor) { e.readOnly = true }
}

func WithFeedback(f *Feedback) LetterOption {
	return func(e *LetterEditor) { e.feedback = f }
}

// OnPageFull is called with the page index whenever an edit is rejected.
func OnPageFull(fn func(page int)) LetterOption {
	return func(e *LetterEditor) { e.onPageFull = fn }
}

func NewLetterEditor(doc Document, opts ...LetterOption) *LetterEditor {
	e := &LetterEditor{
		doc:      doc,
		capacity: CharCeiling{Limit: DefaultCharLimit},
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(doc.Pages()) == 0 {
		doc.AppendPage()
		doc.SetCurrentPage(0)
	}
	e.mu.Lock()
	e.mount()
	e.mu.Unlock()
	return e
}

// mount builds the PageEditor for the document's current page. Callers hold mu.
func (e *LetterEditor) mount() {
	index := e.doc.CurrentPage()
	pages := e.doc.Pages()
	content := ""
	if index >= 0 && index < len(pages) {
		content = pages[index]
	}

	opts := []Option{WithCapacity(e.capacity)}
	if e.readOnly {
		opts = append(opts, AsReadOnly())
	} else {
		doc := e.doc
		opts = append(opts, OnChange(func(html string) {
			doc.SetPageContent(index, html)
		}))
		if e.onPageFull != nil {
			onPageFull := e.onPageFull
			opts = append(opts, OnFull(func() { onPageFull(index) }))
		}
	}

	e.active = NewPageEditor(content, opts...)
	e.activeIndex = index
}

// Active returns the editor of the current page, remounting it when the
// document moved to another page and reconciling its content otherwise.
func (e *LetterEditor) Active() *PageEditor {
	e.mu.Lock()
	defer e.mu.Unlock()

	index := e.doc.CurrentPage()
	if e.active == nil || e.activeIndex != index {
		e.mount()
		return e.active
	}
	pages := e.doc.Pages()
	if index < len(pages) {
		e.active.SetContent(pages[index])
	}
	return e.active
}

func (e *LetterEditor) CurrentPage() int {
	return e.doc.CurrentPage()
}

func (e *LetterEditor) TotalPages() int {
	return len(e.doc.Pages())
}

// ChangePage moves to page i. Out of range indexes are ignored.
func (e *LetterEditor) ChangePage(i int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= len(e.doc.Pages()) {
		return false
	}
	e.doc.SetCurrentPage(i)
	e.mount()
	return true
}

// AddPage appends an empty page and makes it current.
func (e *LetterEditor) AddPage() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.readOnly {
		return
	}
	e.doc.AppendPage()
	e.doc.SetCurrentPage(len(e.doc.Pages()) - 1)
	e.mount()
}

// GetAllPageContents returns a copy of every page's content.
func (e *LetterEditor) GetAllPageContents() []string {
	pages := e.doc.Pages()
	out := make([]string, len(pages))
	copy(out, pages)
	return out
}

// SendFeedback plays the send animation and returns immediately.
func (e *LetterEditor) SendFeedback() {
	if e.feedback == nil {
		return
	}
	e.feedback.Send(nil)
}

// DeleteFeedback plays the delete animation; onComplete runs when it ends or
// right away when the animation cannot be loaded.
func (e *LetterEditor) DeleteFeedback(onComplete func()) {
	if e.feedback == nil {
		if onComplete != nil {
			onComplete()
		}
		return
	}
	e.feedback.Delete(onComplete)
}
