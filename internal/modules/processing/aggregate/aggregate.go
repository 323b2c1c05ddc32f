// Package aggregate merges contribution text into a note's canonical text.
package aggregate

import (
	"regexp"
	"strings"

	"github.com/mx-space/capture/internal/modules/processing/markdown"
	"github.com/mx-space/capture/internal/pkg/richdoc"
)

// Separator joins merged contributions.
const Separator = "\n\n"

const titleLimit = 100

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// MergeText appends addition to existing. A nil or blank existing text is an
// empty prefix; a blank addition leaves existing unchanged.
func MergeText(existing *string, addition string) string {
	addition = strings.TrimSpace(addition)
	prior := ""
	if existing != nil {
		prior = *existing
	}
	if addition == "" {
		return prior
	}
	if strings.TrimSpace(prior) == "" {
		return addition
	}
	return prior + Separator + addition
}

// Includes reports whether addition was already merged into existing: it
// appears as a whole part bounded by Separator or the ends of the text.
func Includes(existing *string, addition string) bool {
	addition = strings.TrimSpace(addition)
	if existing == nil || addition == "" {
		return false
	}
	text := strings.TrimSpace(*existing)
	return text == addition ||
		strings.HasPrefix(text, addition+Separator) ||
		strings.HasSuffix(text, Separator+addition) ||
		strings.Contains(text, Separator+addition+Separator)
}

// MergeAll merges additions in arrival order.
func MergeAll(existing *string, additions ...string) string {
	merged := existing
	for _, addition := range additions {
		next := MergeText(merged, addition)
		merged = &next
	}
	if merged == nil {
		return ""
	}
	return *merged
}

// Segments splits text on blank lines and returns the non-empty pieces.
func Segments(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := blankLine.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// FallbackTitle derives a title from the first segment of merged text that
// has readable content, limited to 100 characters.
func FallbackTitle(merged string) string {
	for _, segment := range Segments(merged) {
		title := strings.Join(strings.Fields(markdown.PlainText(segment)), " ")
		if title == "" {
			continue
		}
		runes := []rune(title)
		if len(runes) > titleLimit {
			title = strings.TrimSpace(string(runes[:titleLimit]))
		}
		return title
	}
	return ""
}

// ParagraphDoc renders text as one paragraph per blank-line separated segment.
func ParagraphDoc(text string) richdoc.Doc {
	segments := Segments(text)
	doc := richdoc.Doc{Content: make([]richdoc.Block, 0, len(segments))}
	for _, segment := range segments {
		doc.Content = append(doc.Content, richdoc.Paragraph{Text: segment})
	}
	return doc
}
