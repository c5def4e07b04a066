// Package changelog converts the raw HTML changelogs served by the ModDB
// into markdown suitable for terminal output and reports.
package changelog

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Converter turns a raw HTML changelog into markdown. The classifier takes
// one of these so tests can substitute a trivial implementation.
type Converter func(rawHTML string) string

// ToMarkdown is the default Converter. Conversion failures fall back to the
// raw input: a slightly ugly changelog beats a missing one.
func ToMarkdown(rawHTML string) string {
	trimmed := strings.TrimSpace(rawHTML)
	if trimmed == "" {
		return ""
	}

	markdown, err := htmltomarkdown.ConvertString(trimmed)
	if err != nil {
		return trimmed
	}
	return strings.TrimSpace(markdown)
}
