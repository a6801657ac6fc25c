// Package export renders the pages of a letter to PNG images and packs them
// into a zip archive.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/markup"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/klauspost/compress/zip"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// A4 at 72 dpi.
const (
	PageWidth  = 595
	PageHeight = 842

	margin     = 48
	lineHeight = 18
	retryDelay = 500 * time.Millisecond
)

// ErrNotReady is returned when page backgrounds could not be loaded.
var ErrNotReady = errors.New("letter pages are not ready for export")

// Exporter captures letters.
type Exporter struct {
	loader     BackgroundLoader
	log        *logger.Logger
	retryDelay time.Duration
}

func NewExporter(loader BackgroundLoader, log *logger.Logger) *Exporter {
	return &Exporter{loader: loader, log: log, retryDelay: retryDelay}
}

// FileName is the archive entry name of page n (zero-based).
func FileName(n int) string {
	return fmt.Sprintf("page-%d.png", n+1)
}

// Export writes a zip archive with one PNG per page to w. All backgrounds are
// loaded before anything is written; a failed load is retried once.
func (e *Exporter) Export(ctx context.Context, l *model.Letter, w io.Writer) error {
	if len(l.Content) == 0 {
		return fmt.Errorf("%w: letter has no pages", ErrNotReady)
	}

	backgrounds, err := e.loadAll(ctx, l)
	if err != nil {
		e.log.With("letter", l.ID).Warn("backgrounds not loaded, retrying export")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.retryDelay):
		}
		backgrounds, err = e.loadAll(ctx, l)
	}
	if err != nil {
		e.log.With("letter", l.ID).Error(err, "export aborted")
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	zw := zip.NewWriter(w)
	for i, page := range l.Content {
		img := RenderPage(page, backgrounds[i], i, len(l.Content))
		hdr := &zip.FileHeader{Name: FileName(i), Method: zip.Store}
		if l.Timestamp > 0 {
			hdr.Modified = time.UnixMilli(l.Timestamp)
		}
		f, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if err := png.Encode(f, img); err != nil {
			return fmt.Errorf("encoding %s: %w", FileName(i), err)
		}
	}
	return zw.Close()
}

// loadAll fetches one background per page. Pages sharing a theme share the
// decoded image.
func (e *Exporter) loadAll(ctx context.Context, l *model.Letter) ([]image.Image, error) {
	loaded := make(map[string]image.Image)
	out := make([]image.Image, len(l.Content))
	for i, page := range l.Content {
		url := page.Theme
		if url == "" {
			url = l.Theme
		}
		if url == "" {
			continue
		}
		if img, ok := loaded[url]; ok {
			out[i] = img
			continue
		}
		img, err := e.loader.Load(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("page %d background: %w", i+1, err)
		}
		loaded[url] = img
		out[i] = img
	}
	return out, nil
}

// RenderPage draws one page: the background scaled to the page, the text in
// the page color and a page number badge. bg may be nil.
func RenderPage(page model.Page, bg image.Image, index, total int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, PageWidth, PageHeight))
	xdraw.Draw(dst, dst.Bounds(), image.White, image.Point{}, xdraw.Src)
	if bg != nil {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), bg, bg.Bounds(), xdraw.Over, nil)
	}

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(ParseColor(page.Color)), Face: face}

	maxChars := (PageWidth - 2*margin) / face.Advance
	y := margin + face.Ascent
	for _, line := range wrap(markup.TextLines(page.HTML), maxChars) {
		if y > PageHeight-margin-lineHeight {
			break
		}
		d.Dot = fixed.P(margin, y)
		d.DrawString(line)
		y += lineHeight
	}

	drawBadge(dst, face, fmt.Sprintf("%d / %d", index+1, total))
	return dst
}

func drawBadge(dst *image.RGBA, face *basicfont.Face, label string) {
	w := len(label)*face.Advance + 12
	h := face.Height + 8
	r := image.Rect(PageWidth-margin/2-w, PageHeight-margin/2-h, PageWidth-margin/2, PageHeight-margin/2)
	xdraw.Draw(dst, r, image.NewUniform(color.RGBA{R: 236, G: 72, B: 153, A: 230}), image.Point{}, xdraw.Over)

	d := &font.Drawer{Dst: dst, Src: image.White, Face: face}
	d.Dot = fixed.P(r.Min.X+6, r.Min.Y+4+face.Ascent)
	d.DrawString(label)
}

// wrap breaks lines on spaces so that none exceeds width characters. basicfont
// only covers Latin-1, other runes are drawn as its replacement glyph.
func wrap(lines []string, width int) []string {
	var out []string
	for _, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		var cur []rune
		for _, w := range words {
			word := []rune(w)
			for len(word) > width {
				if len(cur) > 0 {
					out = append(out, string(cur))
					cur = nil
				}
				out = append(out, string(word[:width]))
				word = word[width:]
			}
			switch {
			case len(cur) == 0:
				cur = word
			case len(cur)+1+len(word) <= width:
				cur = append(append(cur, ' '), word...)
			default:
				out = append(out, string(cur))
				cur = word
			}
		}
		out = append(out, string(cur))
	}
	return out
}

// ParseColor reads #rgb and #rrggbb colors. Anything else is the default ink.
func ParseColor(s string) color.RGBA {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if len(hex) != 6 || err != nil {
		return ParseColor(model.DefaultColor)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
