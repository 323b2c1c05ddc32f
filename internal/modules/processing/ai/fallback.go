package ai

import (
	"strings"

	"github.com/mx-space/capture/internal/models"
	"github.com/mx-space/capture/internal/pkg/richdoc"
)

const (
	fallbackTitle        = "Untitled note"
	languageUndetermined = "und"

	SectionHighlights    = "Highlights"
	SectionInsights      = "Insights"
	SectionOpenQuestions = "Open Questions"
	SectionNextSteps     = "Next Steps"
)

// FallbackOutline is the minimal outline used whenever structuring fails.
func FallbackOutline() models.Outline {
	return models.Outline{
		Title:         fallbackTitle,
		Highlights:    []string{},
		Insights:      []string{},
		OpenQuestions: []string{},
		NextSteps:     []models.NextStep{},
		Tags:          []string{},
		Language:      languageUndetermined,
	}
}

// FallbackRender builds the outline document locally. Section order is
// title, Highlights, Insights, Open Questions, Next Steps; empty sections
// are omitted.
func FallbackRender(outline models.Outline) richdoc.Doc {
	title := strings.TrimSpace(outline.Title)
	if title == "" {
		title = fallbackTitle
	}
	blocks := []richdoc.Block{richdoc.Heading{Level: 1, Text: title}}

	if items := nonEmpty(outline.Highlights); len(items) > 0 {
		blocks = append(blocks, sectionHeading(SectionHighlights), richdoc.Bullets(items...))
	}
	if items := nonEmpty(outline.Insights); len(items) > 0 {
		blocks = append(blocks, sectionHeading(SectionInsights), richdoc.Bullets(items...))
	}
	if items := nonEmpty(outline.OpenQuestions); len(items) > 0 {
		for i := range items {
			items[i] = asQuestion(items[i])
		}
		blocks = append(blocks, sectionHeading(SectionOpenQuestions), richdoc.Bullets(items...))
	}
	if steps := nextStepTexts(outline.NextSteps); len(steps) > 0 {
		blocks = append(blocks, sectionHeading(SectionNextSteps), richdoc.Tasks(steps...))
	}
	return richdoc.Doc{Content: blocks}
}

func sectionHeading(name string) richdoc.Heading {
	return richdoc.Heading{Level: 2, Text: name}
}

func nextStepTexts(steps []models.NextStep) []string {
	out := make([]string, 0, len(steps))
	for _, step := range steps {
		text := strings.TrimSpace(step.Text)
		if text == "" {
			continue
		}
		if step.Due != nil && strings.TrimSpace(*step.Due) != "" {
			text += " (due " + strings.TrimSpace(*step.Due) + ")"
		}
		out = append(out, text)
	}
	return out
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if t := strings.TrimSpace(item); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// asQuestion makes text end with a question mark, replacing trailing
// sentence punctuation.
func asQuestion(text string) string {
	t := strings.TrimSpace(text)
	t = strings.TrimRight(t, ".!;:,。！？?")
	t = strings.TrimSpace(t)
	return t + "?"
}
