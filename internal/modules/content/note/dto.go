package note

import (
	"time"

	"github.com/mx-space/capture/internal/models"
	"github.com/mx-space/capture/internal/pkg/richdoc"
)

type CreateNoteDTO struct {
	Title       string   `json:"title"`
	ContentText *string  `json:"content_text"`
	Tags        []string `json:"tags"`
}

type UpdateNoteDTO struct {
	Title       *string      `json:"title"`
	ContentText *string      `json:"content_text"`
	EditorDoc   *richdoc.Doc `json:"editor_doc"`
	Tags        *[]string    `json:"tags"`
}

// ListFilter narrows GET /notes.
type ListFilter struct {
	Query string
	Tag   string
}

type noteResponse struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	ContentText *string         `json:"content_text"`
	EditorDoc   richdoc.Doc     `json:"editor_doc"`
	Outline     *models.Outline `json:"outline"`
	Tags        []string        `json:"tags"`
	Version     int64           `json:"version"`
	Created     time.Time       `json:"created"`
	Modified    *time.Time      `json:"modified"`
}

type noteDetailResponse struct {
	noteResponse
	Audio []audioResponse                `json:"audio"`
	Texts []models.TextContributionModel `json:"texts"`
}

type audioResponse struct {
	ID              string                  `json:"id"`
	StorageKey      string                  `json:"storage_key"`
	DurationSeconds *float64                `json:"duration_seconds"`
	MediaType       string                  `json:"media_type"`
	Sequence        int                     `json:"sequence"`
	Created         time.Time               `json:"created"`
	Transcript      *models.TranscriptModel `json:"transcript"`
}

func nullableModified(t time.Time) *time.Time {
	if t.IsZero() || t.Year() <= 1 {
		return nil
	}
	modifiedAt := t
	return &modifiedAt
}

func toResponse(n *models.NoteModel) noteResponse {
	tags := []string(n.Tags)
	if tags == nil {
		tags = []string{}
	}
	doc := n.EditorDoc
	if doc.Content == nil {
		doc = richdoc.Empty()
	}
	return noteResponse{
		ID:          n.ID,
		Title:       n.Title,
		ContentText: n.ContentText,
		EditorDoc:   doc,
		Outline:     n.Outline,
		Tags:        tags,
		Version:     n.Version,
		Created:     n.CreatedAt,
		Modified:    nullableModified(n.UpdatedAt),
	}
}

func toDetailResponse(n *models.NoteModel) noteDetailResponse {
	out := noteDetailResponse{
		noteResponse: toResponse(n),
		Audio:        make([]audioResponse, 0, len(n.AudioContributions)),
		Texts:        n.TextContributions,
	}
	if out.Texts == nil {
		out.Texts = []models.TextContributionModel{}
	}
	for _, a := range n.AudioContributions {
		out.Audio = append(out.Audio, audioResponse{
			ID:              a.ID,
			StorageKey:      a.StorageKey,
			DurationSeconds: a.DurationSeconds,
			MediaType:       a.MediaType,
			Sequence:        a.Sequence,
			Created:         a.CreatedAt,
			Transcript:      a.Transcript,
		})
	}
	return out
}
