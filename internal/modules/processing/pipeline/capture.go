package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mx-space/capture/internal/models"
	"github.com/mx-space/capture/internal/modules/processing/aggregate"
	"github.com/mx-space/capture/internal/modules/storage/blob"
	"github.com/mx-space/capture/internal/pkg/apperr"
	"github.com/mx-space/capture/internal/pkg/richdoc"
	"go.uber.org/zap"
)

// DegradedHeading labels a note whose structuring could not be completed.
const DegradedHeading = "Processing Failed"

// CaptureRequest is a single uploaded recording that becomes a new note.
type CaptureRequest struct {
	OwnerID         string
	Bucket          string
	Key             string
	MediaType       string
	DurationSeconds *float64
	Title           string
	Tags            []string
}

// Capture is the single-capture flow: transcribe one recording, create a
// note holding it, then structure and persist. Once the transcript is saved,
// a failure to structure or persist falls back to a degraded note holding
// the raw transcript; only when that also fails is PERSIST_FAILED returned.
func (p *Pipeline) Capture(ctx context.Context, req CaptureRequest) (*Result, error) {
	ref := ContributionRef{OwnerID: req.OwnerID}
	runID := p.beginRun(ctx, "pipeline.capture", map[string]string{"owner_id": req.OwnerID, "key": req.Key}, "")

	res, err := p.capture(ctx, &ref, req)
	if err != nil {
		p.stage(ref, blob.KindAudio, StageFailed, zap.Error(err))
		p.finishRun(ctx, runID, nil, err)
		return nil, err
	}
	res.RunID = runID
	p.stage(ref, blob.KindAudio, StageDone, zap.Bool("degraded", res.Degraded))
	p.finishRun(ctx, runID, res, nil)
	return res, nil
}

func (p *Pipeline) capture(ctx context.Context, ref *ContributionRef, req CaptureRequest) (*Result, error) {
	p.stage(*ref, blob.KindAudio, StageExtracting)
	data, err := p.download(ctx, req.Bucket, req.Key, p.transcriber.MaxBytes())
	if err != nil {
		return nil, err
	}
	result, err := p.transcriber.Transcribe(ctx, data, req.MediaType)
	if err != nil {
		return nil, transcriptionFailed(err)
	}
	mediaType := strings.TrimSpace(req.MediaType)
	if result.Format.MediaType != "" {
		mediaType = result.Format.MediaType
	}

	note := &models.NoteModel{
		OwnerID:   req.OwnerID,
		Title:     strings.TrimSpace(req.Title),
		EditorDoc: richdoc.Empty(),
		Tags:      models.StringArray{}.Union(req.Tags),
	}
	if err := p.store.CreateNote(ctx, note); err != nil {
		return nil, apperr.PersistFailed(fmt.Errorf("create note: %w", err))
	}
	audio := &models.AudioContributionModel{
		NoteID:          note.ID,
		OwnerID:         req.OwnerID,
		Bucket:          req.Bucket,
		StorageKey:      req.Key,
		DurationSeconds: req.DurationSeconds,
		MediaType:       mediaType,
	}
	if err := p.store.CreateAudio(ctx, audio); err != nil {
		return nil, apperr.PersistFailed(fmt.Errorf("create audio contribution: %w", err))
	}
	ref.NoteID, ref.ContributionID = note.ID, audio.ID

	transcript, err := p.store.SaveTranscript(ctx, &models.TranscriptModel{
		AudioID:  audio.ID,
		Text:     result.Text,
		Segments: toSegments(result.Segments),
		Language: result.Language,
	})
	if err != nil {
		return nil, apperr.PersistFailed(fmt.Errorf("save transcript: %w", err))
	}

	p.stage(*ref, blob.KindAudio, StageMerging)
	merged := aggregate.MergeText(nil, transcript.Text)

	p.stage(*ref, blob.KindAudio, StageStructuring)
	patch, structured, rendered, err := p.structureCapture(ctx, note, merged)
	if err == nil {
		p.stage(*ref, blob.KindAudio, StagePersisting)
		var updated *models.NoteModel
		updated, err = p.store.ApplyContent(ctx, req.OwnerID, note.ID, patch)
		if err == nil && updated != nil {
			return &Result{
				Kind:           blob.KindAudio,
				NoteID:         note.ID,
				ContributionID: audio.ID,
				Note:           updated,
				Transcript:     transcript,
				Structured:     structured,
				Rendered:       rendered,
			}, nil
		}
		if err == nil {
			err = errors.New("note vanished before persisting")
		}
	}

	p.logger.Warn("capture failed after transcription, persisting degraded note",
		zap.String("note_id", note.ID),
		zap.String("contribution_id", audio.ID),
		zap.Error(err),
	)
	updated, recoverErr := p.store.ApplyContent(ctx, req.OwnerID, note.ID, degradedPatch(note, merged))
	if recoverErr != nil || updated == nil {
		if recoverErr == nil {
			recoverErr = errors.New("note vanished before degraded persist")
		}
		return nil, apperr.PersistFailed(errors.Join(err, recoverErr))
	}
	return &Result{
		Kind:           blob.KindAudio,
		NoteID:         note.ID,
		ContributionID: audio.ID,
		Note:           updated,
		Transcript:     transcript,
		Degraded:       true,
	}, nil
}

// structureCapture runs structuring and rendering, turning a panic in
// either into an error so the caller can fall back to a degraded note.
func (p *Pipeline) structureCapture(ctx context.Context, note *models.NoteModel, merged string) (patch models.ContentPatch, structured, rendered bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("structuring panicked: %v", r)
		}
	}()

	var (
		outline models.Outline
		doc     richdoc.Doc
	)
	outline, structured = p.structurer.Structure(ctx, merged)
	doc, rendered = p.structurer.Render(ctx, outline)
	patch = models.ContentPatch{
		ContentText: merged,
		EditorDoc:   doc,
		Outline:     &outline,
		Tags:        note.Tags.Union(outline.Tags),
	}
	if note.Title == "" {
		title := audioTitle(merged, outline, structured)
		patch.Title = &title
	}
	return patch, structured, rendered, nil
}

// DegradedDoc is the document persisted when structuring could not finish:
// a "Processing Failed" heading followed by the raw text as paragraphs.
func DegradedDoc(text string) richdoc.Doc {
	doc := richdoc.Doc{Content: []richdoc.Block{richdoc.Heading{Level: 2, Text: DegradedHeading}}}
	doc.Content = append(doc.Content, aggregate.ParagraphDoc(text).Content...)
	return doc
}

func degradedPatch(note *models.NoteModel, merged string) models.ContentPatch {
	patch := models.ContentPatch{
		ContentText: merged,
		EditorDoc:   DegradedDoc(merged),
	}
	if note.Title == "" {
		title := aggregate.FallbackTitle(merged)
		if title == "" {
			title = DegradedHeading
		}
		patch.Title = &title
	}
	return patch
}
