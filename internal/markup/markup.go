// Package markup works on the raw HTML fragments stored as letter pages.
package markup

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// EmptyPage is the canonical fragment of a page with no content.
const EmptyPage = "<p><br></p>"

var (
	strict = bluemonday.StrictPolicy()

	// blockBreak matches tags that end a visual line.
	blockBreak = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|li|h[1-6]|blockquote|pre)>`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Canonicalize trims the fragment and replaces an empty result with EmptyPage.
func Canonicalize(fragment string) string {
	trimmed := strings.TrimSpace(fragment)
	if trimmed == "" {
		return EmptyPage
	}
	return trimmed
}

// IsBlank reports whether the fragment is empty or the canonical empty page.
func IsBlank(fragment string) bool {
	trimmed := strings.TrimSpace(fragment)
	return trimmed == "" || trimmed == EmptyPage
}

// PlainText projects the fragment to the text a reader sees, one line per
// paragraph or line break.
func PlainText(fragment string) string {
	withBreaks := blockBreak.ReplaceAllString(fragment, "$0\n")
	text := html.UnescapeString(strict.Sanitize(withBreaks))
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimRight(text, "\n")
}

// CharCount is the number of characters in the plain text projection.
func CharCount(fragment string) int {
	return utf8.RuneCountInString(PlainText(fragment))
}

// TextLines splits the plain text into lines, dropping trailing blanks.
func TextLines(fragment string) []string {
	text := PlainText(fragment)
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Excerpt returns at most n characters of plain text on a single line.
func Excerpt(fragment string, n int) string {
	text := strings.Join(strings.Fields(PlainText(fragment)), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:n])) + "…"
}
