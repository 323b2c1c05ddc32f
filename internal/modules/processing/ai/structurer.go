package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mx-space/capture/internal/models"
	"github.com/mx-space/capture/internal/pkg/richdoc"
	"go.uber.org/zap"
)

// Structurer derives outlines and outline documents from free text. Both
// operations are best effort: failures resolve to deterministic fallbacks
// and are only logged.
type Structurer struct {
	structurer Completer
	renderer   Completer
	logger     *zap.Logger
}

// NewStructurer takes one completer for outlining and one for rendering;
// either may be nil, in which case that step always falls back.
func NewStructurer(structurer, renderer Completer, logger *zap.Logger) *Structurer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Structurer{structurer: structurer, renderer: renderer, logger: logger}
}

type outlineResponse struct {
	Title         string             `json:"title"`
	Highlights    []string           `json:"highlights"`
	Insights      []string           `json:"insights"`
	OpenQuestions []string           `json:"open_questions"`
	NextSteps     []nextStepResponse `json:"next_steps"`
	Tags          []string           `json:"tags"`
	Language      string             `json:"language"`
}

type nextStepResponse struct {
	Text string  `json:"text"`
	Due  *string `json:"due"`
}

// Structure returns an outline of text. Only the first 8000 characters are
// submitted. ok is false when the fallback outline was used.
func (s *Structurer) Structure(ctx context.Context, text string) (outline models.Outline, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackOutline(), false
	}
	if s.structurer == nil {
		s.degraded("structure", errors.New("no AI provider configured"))
		return FallbackOutline(), false
	}

	systemPrompt, prompt := buildStructurePrompt(text)
	raw, err := s.structurer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		s.degraded("structure", err)
		return FallbackOutline(), false
	}

	var resp outlineResponse
	if err := unmarshalAIJSON(raw, &resp); err != nil {
		s.degraded("structure", err)
		return FallbackOutline(), false
	}
	outline, err = validateOutline(resp)
	if err != nil {
		s.degraded("structure", err)
		return FallbackOutline(), false
	}
	return outline, true
}

// Render turns outline into a document. The model's document is accepted only
// when it has the fixed section layout; otherwise FallbackRender is used.
func (s *Structurer) Render(ctx context.Context, outline models.Outline) (doc richdoc.Doc, ok bool) {
	if s.renderer == nil {
		return FallbackRender(outline), false
	}

	systemPrompt, prompt, err := buildRenderPrompt(outline)
	if err != nil {
		s.degraded("render", err)
		return FallbackRender(outline), false
	}
	raw, err := s.renderer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		s.degraded("render", err)
		return FallbackRender(outline), false
	}

	var rendered richdoc.Doc
	if err := unmarshalAIJSON(raw, &rendered); err != nil {
		s.degraded("render", err)
		return FallbackRender(outline), false
	}
	doc, err = conformDocument(rendered, outline)
	if err != nil {
		s.degraded("render", err)
		return FallbackRender(outline), false
	}
	return doc, true
}

func (s *Structurer) degraded(step string, err error) {
	s.logger.Warn("structuring degraded, using fallback",
		zap.String("step", step),
		zap.Error(err),
	)
}

func validateOutline(resp outlineResponse) (models.Outline, error) {
	title := strings.TrimSpace(resp.Title)
	if title == "" {
		return models.Outline{}, errors.New("outline title is empty")
	}

	tags := make([]string, 0, len(resp.Tags))
	seen := make(map[string]struct{}, len(resp.Tags))
	for _, raw := range resp.Tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		if !models.IsOutlineTag(tag) {
			return models.Outline{}, fmt.Errorf("outline tag %q is not in the vocabulary", raw)
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	steps := make([]models.NextStep, 0, len(resp.NextSteps))
	for _, step := range resp.NextSteps {
		text := strings.TrimSpace(step.Text)
		if text == "" {
			continue
		}
		next := models.NextStep{Text: text}
		if step.Due != nil {
			due := strings.TrimSpace(*step.Due)
			if due != "" {
				if _, err := time.Parse(time.DateOnly, due); err != nil {
					return models.Outline{}, fmt.Errorf("next step due %q is not a YYYY-MM-DD date", due)
				}
				next.Due = &due
			}
		}
		steps = append(steps, next)
	}

	return models.Outline{
		Title:         title,
		Highlights:    nonEmpty(resp.Highlights),
		Insights:      nonEmpty(resp.Insights),
		OpenQuestions: nonEmpty(resp.OpenQuestions),
		NextSteps:     steps,
		Tags:          tags,
		Language:      normalizeLanguage(resp.Language),
	}, nil
}

// conformDocument checks a model-rendered document against the section
// layout expected for outline and coerces open questions to end with "?".
func conformDocument(doc richdoc.Doc, outline models.Outline) (richdoc.Doc, error) {
	expected := expectedSections(outline)
	if len(doc.Content) != 1+2*len(expected) {
		return richdoc.Doc{}, fmt.Errorf("rendered document has %d blocks, want %d", len(doc.Content), 1+2*len(expected))
	}

	title, ok := doc.Content[0].(richdoc.Heading)
	if !ok || title.Level != 1 || strings.TrimSpace(title.Text) == "" {
		return richdoc.Doc{}, errors.New("rendered document does not start with a title heading")
	}

	out := richdoc.Doc{Content: make([]richdoc.Block, 0, len(doc.Content))}
	out.Content = append(out.Content, richdoc.Heading{Level: 1, Text: strings.TrimSpace(title.Text)})

	for i, section := range expected {
		heading, ok := doc.Content[1+2*i].(richdoc.Heading)
		if !ok || heading.Level != 2 || !strings.EqualFold(strings.TrimSpace(heading.Text), section) {
			return richdoc.Doc{}, fmt.Errorf("rendered section %d is not %q", i+1, section)
		}
		out.Content = append(out.Content, sectionHeading(section))

		list := doc.Content[2+2*i]
		switch section {
		case SectionNextSteps:
			tasks, ok := list.(richdoc.TaskList)
			if !ok || len(tasks.Items) == 0 {
				return richdoc.Doc{}, fmt.Errorf("section %q is not a task list", section)
			}
			for _, item := range tasks.Items {
				if strings.TrimSpace(richdoc.ItemText(item.Content)) == "" {
					return richdoc.Doc{}, fmt.Errorf("section %q has an empty item", section)
				}
			}
			out.Content = append(out.Content, tasks)
		default:
			bullets, ok := list.(richdoc.BulletList)
			if !ok || len(bullets.Items) == 0 {
				return richdoc.Doc{}, fmt.Errorf("section %q is not a bullet list", section)
			}
			items := make([]string, 0, len(bullets.Items))
			for _, item := range bullets.Items {
				text := strings.TrimSpace(richdoc.ItemText(item.Content))
				if text == "" {
					return richdoc.Doc{}, fmt.Errorf("section %q has an empty item", section)
				}
				if section == SectionOpenQuestions {
					text = asQuestion(text)
				}
				items = append(items, text)
			}
			out.Content = append(out.Content, richdoc.Bullets(items...))
		}
	}
	return out, nil
}

func expectedSections(outline models.Outline) []string {
	var sections []string
	if len(nonEmpty(outline.Highlights)) > 0 {
		sections = append(sections, SectionHighlights)
	}
	if len(nonEmpty(outline.Insights)) > 0 {
		sections = append(sections, SectionInsights)
	}
	if len(nonEmpty(outline.OpenQuestions)) > 0 {
		sections = append(sections, SectionOpenQuestions)
	}
	if len(nextStepTexts(outline.NextSteps)) > 0 {
		sections = append(sections, SectionNextSteps)
	}
	return sections
}
