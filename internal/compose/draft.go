// Package compose owns the letter a user is writing: its pages, paper, font
// and per-page settings, persisted between requests as a draft snapshot.
package compose

import (
	"sync"

	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/theme"
)

// Draft is the in-progress letter. It implements editor.Document.
type Draft struct {
	mu           sync.Mutex
	letters      []string
	currentTheme string
	currentFont  string
	currentPage  int
	pageSettings model.PageSettings
	revision     string
	updatedAt    int64
}

// NewDraft returns a draft with one empty page and the default paper and font.
func NewDraft() *Draft {
	d := &Draft{}
	d.reset()
	return d
}

func (d *Draft) reset() {
	d.letters = []string{""}
	d.currentTheme = theme.DefaultURL
	d.currentFont = model.DefaultFont
	d.currentPage = 0
	d.pageSettings = model.PageSettings{}
}

// Reset discards all content but keeps the revision.
func (d *Draft) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

func (d *Draft) Pages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.letters))
	copy(out, d.letters)
	return out
}

func (d *Draft) CurrentPage() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentPage
}

// SetCurrentPage ignores indexes outside the page range.
func (d *Draft) SetCurrentPage(i int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= 0 && i < len(d.letters) {
		d.currentPage = i
	}
}

func (d *Draft) SetPageContent(i int, html string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= 0 && i < len(d.letters) {
		d.letters[i] = html
	}
}

func (d *Draft) AppendPage() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.letters = append(d.letters, "")
}

// DeletePage removes the current page. The last remaining page is cleared
// instead, so a draft always has at least one page.
func (d *Draft) DeletePage() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.letters) <= 1 {
		d.letters = []string{""}
		d.currentPage = 0
		d.pageSettings = model.PageSettings{}
		return
	}

	removed := d.currentPage
	d.letters = append(d.letters[:removed:removed], d.letters[removed+1:]...)

	shifted := make(model.PageSettings, len(d.pageSettings))
	for i, s := range d.pageSettings {
		switch {
		case i < removed:
			shifted[i] = s
		case i > removed:
			shifted[i-1] = s
		}
	}
	d.pageSettings = shifted

	if d.currentPage >= len(d.letters) {
		d.currentPage = len(d.letters) - 1
	}
}

func (d *Draft) Theme() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentTheme
}

// SetTheme sets the letter-wide paper: a theme identifier, URL or data URL.
func (d *Draft) SetTheme(t string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.currentTheme = t
}

func (d *Draft) Font() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentFont
}

func (d *Draft) SetFont(font string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.currentFont = font
}

func (d *Draft) PageSettings() model.PageSettings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageSettings.Clone()
}

// SetPageSetting overrides font, paper and color of page i. A zero setting
// removes the override.
func (d *Draft) SetPageSetting(i int, s model.PageSetting) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.letters) {
		return
	}
	if s == (model.PageSetting{}) {
		delete(d.pageSettings, i)
		return
	}
	d.pageSettings[i] = s
}

func (d *Draft) Revision() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revision
}

// Snapshot captures the draft for storage.
func (d *Draft) Snapshot() model.DraftSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	letters := make([]string, len(d.letters))
	copy(letters, d.letters)
	return model.DraftSnapshot{
		Letters:      letters,
		CurrentTheme: d.currentTheme,
		Font:         d.currentFont,
		CurrentPage:  d.currentPage,
		PageSettings: d.pageSettings.Clone(),
		Revision:     d.revision,
		UpdatedAt:    d.updatedAt,
	}
}

// FromSnapshot restores a draft. Missing fields fall back to the defaults of
// NewDraft, which also covers snapshots holding only letters, theme and font.
func FromSnapshot(s model.DraftSnapshot) *Draft {
	d := NewDraft()
	if len(s.Letters) > 0 {
		d.letters = append([]string(nil), s.Letters...)
	}
	if s.CurrentTheme != "" {
		d.currentTheme = s.CurrentTheme
	}
	if s.Font != "" {
		d.currentFont = s.Font
	}
	if s.CurrentPage >= 0 && s.CurrentPage < len(d.letters) {
		d.currentPage = s.CurrentPage
	}
	for i, ps := range s.PageSettings {
		if i >= 0 && i < len(d.letters) {
			d.pageSettings[i] = ps
		}
	}
	d.revision = s.Revision
	d.updatedAt = s.UpdatedAt
	return d
}

// FromLetter opens a stored letter for editing. Per-page overrides that differ
// from the letter-wide font and paper become page settings.
func FromLetter(l *model.Letter) *Draft {
	d := NewDraft()
	if len(l.Content) > 0 {
		d.letters = l.HTMLPages()
	}
	if l.Theme != "" {
		d.currentTheme = l.Theme
	}
	if l.Font != "" {
		d.currentFont = l.Font
	}
	for i, p := range l.Content {
		var s model.PageSetting
		if p.Font != "" && p.Font != d.currentFont {
			s.Font = p.Font
		}
		if p.Theme != "" && p.Theme != d.currentTheme {
			s.Paper = p.Theme
		}
		if p.Color != "" && p.Color != model.DefaultColor {
			s.Color = p.Color
		}
		if s != (model.PageSetting{}) {
			d.pageSettings[i] = s
		}
	}
	return d
}

// LetterDraft converts the draft into letter creation input.
func (d *Draft) LetterDraft(owner string) model.LetterDraft {
	s := d.Snapshot()
	return model.LetterDraft{
		Content:      s.Letters,
		PageSettings: s.PageSettings,
		Theme:        s.CurrentTheme,
		Font:         s.Font,
		Owner:        owner,
	}
}
