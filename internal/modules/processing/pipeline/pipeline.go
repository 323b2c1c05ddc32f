// Package pipeline runs one contribution through fetch, extraction, merge,
// structuring and persistence, and exposes the commit endpoints that
// trigger it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mx-space/capture/internal/models"
	"github.com/mx-space/capture/internal/modules/processing/aggregate"
	"github.com/mx-space/capture/internal/modules/processing/transcribe"
	"github.com/mx-space/capture/internal/modules/storage/blob"
	"github.com/mx-space/capture/internal/pkg/apperr"
	"github.com/mx-space/capture/internal/pkg/richdoc"
	"github.com/mx-space/capture/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

// DefaultTextMaxBytes bounds text contributions when no limit is configured.
const DefaultTextMaxBytes int64 = 5 << 20

// Stage names one step of a run.
type Stage string

const (
	StageFetching    Stage = "fetching"
	StageExtracting  Stage = "extracting"
	StageMerging     Stage = "merging"
	StageStructuring Stage = "structuring"
	StagePersisting  Stage = "persisting"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Store is the ownership-scoped row store. Lookups that miss, including rows
// owned by someone else, return (nil, nil).
type Store interface {
	GetNote(ctx context.Context, ownerID, id string) (*models.NoteModel, error)
	GetAudio(ctx context.Context, ownerID, noteID, id string) (*models.AudioContributionModel, error)
	GetText(ctx context.Context, ownerID, noteID, id string) (*models.TextContributionModel, error)
	SaveTranscript(ctx context.Context, t *models.TranscriptModel) (*models.TranscriptModel, error)
	ApplyContent(ctx context.Context, ownerID, noteID string, patch models.ContentPatch) (*models.NoteModel, error)
	CreateNote(ctx context.Context, note *models.NoteModel) error
	CreateAudio(ctx context.Context, audio *models.AudioContributionModel) error
}

type Blobs interface {
	Download(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, declaredType string) (transcribe.Result, error)
	MaxBytes() int64
}

// Structurer never fails: ok reports whether the model output was used.
type Structurer interface {
	Structure(ctx context.Context, text string) (models.Outline, bool)
	Render(ctx context.Context, outline models.Outline) (richdoc.Doc, bool)
}

// RunLog records runs; it is optional.
type RunLog interface {
	Enqueue(ctx context.Context, taskType string, payload interface{}, groupKey string) (*taskqueue.Task, error)
	UpdateStatus(ctx context.Context, id string, status taskqueue.TaskStatus, result interface{}, errMsg string) error
}

// Contribution is either an AudioRef or a TextRef.
type Contribution interface {
	ref() ContributionRef
	kind() blob.Kind
}

// ContributionRef addresses one contribution of a note on behalf of its owner.
type ContributionRef struct {
	OwnerID        string `json:"owner_id"`
	NoteID         string `json:"note_id"`
	ContributionID string `json:"contribution_id"`
}

type AudioRef ContributionRef

type TextRef ContributionRef

func (r AudioRef) ref() ContributionRef { return ContributionRef(r) }
func (AudioRef) kind() blob.Kind         { return blob.KindAudio }
func (r TextRef) ref() ContributionRef  { return ContributionRef(r) }
func (TextRef) kind() blob.Kind          { return blob.KindText }

// Result is what a completed run reports back.
type Result struct {
	RunID          string                  `json:"run_id,omitempty"`
	Kind           blob.Kind               `json:"kind"`
	NoteID         string                  `json:"note_id"`
	ContributionID string                  `json:"contribution_id"`
	Note           *models.NoteModel       `json:"note"`
	Transcript     *models.TranscriptModel `json:"transcript,omitempty"`
	Structured     bool                    `json:"structured"`
	Rendered       bool                    `json:"rendered"`
	Degraded       bool                    `json:"degraded"`
}

type Deps struct {
	Store       Store
	Blobs       Blobs
	Transcriber Transcriber
	Structurer  Structurer
	Runs        RunLog
}

type Options struct {
	TextMaxBytes int64
}

type Pipeline struct {
	store        Store
	blobs        Blobs
	transcriber  Transcriber
	structurer   Structurer
	runs         RunLog
	textMaxBytes int64
	logger       *zap.Logger
}

func New(deps Deps, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	textMax := opts.TextMaxBytes
	if textMax <= 0 {
		textMax = DefaultTextMaxBytes
	}
	return &Pipeline{
		store:        deps.Store,
		blobs:        deps.Blobs,
		transcriber:  deps.Transcriber,
		structurer:   deps.Structurer,
		runs:         deps.Runs,
		textMaxBytes: textMax,
		logger:       logger,
	}
}

// RunAudio runs the audio pipeline for one contribution.
func (p *Pipeline) RunAudio(ctx context.Context, ref AudioRef) (*Result, error) {
	return p.Run(ctx, ref)
}

// RunText runs the text pipeline for one contribution.
func (p *Pipeline) RunText(ctx context.Context, ref TextRef) (*Result, error) {
	return p.Run(ctx, ref)
}

// Run dispatches c to its pipeline and records the run. Errors are
// *apperr.Error with code NOT_FOUND, EXTRACTION_FAILED or PERSIST_FAILED.
func (p *Pipeline) Run(ctx context.Context, c Contribution) (*Result, error) {
	ref := c.ref()
	runID := p.beginRun(ctx, "pipeline."+string(c.kind()), ref, ref.NoteID)

	var (
		res *Result
		err error
	)
	switch c := c.(type) {
	case AudioRef:
		res, err = p.runAudio(ctx, ContributionRef(c))
	case TextRef:
		res, err = p.runText(ctx, ContributionRef(c))
	default:
		err = apperr.Internal(fmt.Errorf("unsupported contribution %T", c))
	}

	if err != nil {
		p.stage(ref, c.kind(), StageFailed, zap.Error(err))
		p.finishRun(ctx, runID, nil, err)
		return nil, err
	}
	res.RunID = runID
	p.stage(ref, c.kind(), StageDone)
	p.finishRun(ctx, runID, res, nil)
	return res, nil
}

func (p *Pipeline) runAudio(ctx context.Context, ref ContributionRef) (*Result, error) {
	p.stage(ref, blob.KindAudio, StageFetching)
	audio, err := p.store.GetAudio(ctx, ref.OwnerID, ref.NoteID, ref.ContributionID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load audio contribution: %w", err))
	}
	if audio == nil {
		return nil, apperr.NotFound("audio contribution", ref.ContributionID)
	}

	p.stage(ref, blob.KindAudio, StageExtracting)
	transcript := audio.Transcript
	reused := transcript != nil
	if !reused {
		transcript, err = p.transcribeAudio(ctx, audio)
		if err != nil {
			return nil, err
		}
	}

	p.stage(ref, blob.KindAudio, StageMerging)
	note, err := p.currentNote(ctx, ref)
	if err != nil {
		return nil, err
	}
	// A re-run whose transcript already reached the note restructures it
	// without appending the text a second time.
	merged := aggregate.MergeText(note.ContentText, transcript.Text)
	if reused && aggregate.Includes(note.ContentText, transcript.Text) {
		merged = *note.ContentText
	}

	p.stage(ref, blob.KindAudio, StageStructuring)
	outline, structured := p.structurer.Structure(ctx, merged)
	doc, rendered := p.structurer.Render(ctx, outline)

	p.stage(ref, blob.KindAudio, StagePersisting)
	patch := models.ContentPatch{
		ContentText: merged,
		EditorDoc:   doc,
		Outline:     &outline,
		Tags:        note.Tags.Union(outline.Tags),
	}
	if strings.TrimSpace(note.Title) == "" {
		title := audioTitle(merged, outline, structured)
		patch.Title = &title
	}
	updated, err := p.persist(ctx, ref, patch)
	if err != nil {
		return nil, err
	}

	return &Result{
		Kind:           blob.KindAudio,
		NoteID:         ref.NoteID,
		ContributionID: ref.ContributionID,
		Note:           updated,
		Transcript:     transcript,
		Structured:     structured,
		Rendered:       rendered,
	}, nil
}

func (p *Pipeline) runText(ctx context.Context, ref ContributionRef) (*Result, error) {
	p.stage(ref, blob.KindText, StageFetching)
	text, err := p.store.GetText(ctx, ref.OwnerID, ref.NoteID, ref.ContributionID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load text contribution: %w", err))
	}
	if text == nil {
		return nil, apperr.NotFound("text contribution", ref.ContributionID)
	}

	p.stage(ref, blob.KindText, StageExtracting)
	data, err := p.download(ctx, text.Bucket, text.StorageKey, p.textMaxBytes)
	if err != nil {
		return nil, err
	}
	body, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	p.stage(ref, blob.KindText, StageMerging)
	note, err := p.currentNote(ctx, ref)
	if err != nil {
		return nil, err
	}
	merged := aggregate.MergeText(note.ContentText, body)

	p.stage(ref, blob.KindText, StageStructuring)
	patch := models.ContentPatch{
		ContentText: merged,
		EditorDoc:   aggregate.ParagraphDoc(merged),
	}
	if strings.TrimSpace(note.Title) == "" {
		if title := aggregate.FallbackTitle(merged); title != "" {
			patch.Title = &title
		}
	}

	p.stage(ref, blob.KindText, StagePersisting)
	updated, err := p.persist(ctx, ref, patch)
	if err != nil {
		return nil, err
	}

	return &Result{
		Kind:           blob.KindText,
		NoteID:         ref.NoteID,
		ContributionID: ref.ContributionID,
		Note:           updated,
	}, nil
}

// transcribeAudio downloads and transcribes audio, then stores the
// transcript. The stored transcript is kept even if a later stage fails.
func (p *Pipeline) transcribeAudio(ctx context.Context, audio *models.AudioContributionModel) (*models.TranscriptModel, error) {
	data, err := p.download(ctx, audio.Bucket, audio.StorageKey, p.transcriber.MaxBytes())
	if err != nil {
		return nil, err
	}
	result, err := p.transcriber.Transcribe(ctx, data, audio.MediaType)
	if err != nil {
		return nil, transcriptionFailed(err)
	}

	saved, err := p.store.SaveTranscript(ctx, &models.TranscriptModel{
		AudioID:  audio.ID,
		Text:     result.Text,
		Segments: toSegments(result.Segments),
		Language: result.Language,
	})
	if err != nil {
		return nil, apperr.PersistFailed(fmt.Errorf("save transcript: %w", err))
	}
	return saved, nil
}

// transcriptionFailed maps a transcription error onto EXTRACTION_FAILED and
// marks whether the same audio may succeed on a later attempt.
func transcriptionFailed(err error) *apperr.Error {
	xerr := apperr.ExtractionFailed(string(transcribe.KindOf(err)), err)
	var te *transcribe.Error
	xerr.Details["retryable"] = errors.As(err, &te) && te.Retryable()
	return xerr
}

func (p *Pipeline) download(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error) {
	data, err := p.blobs.Download(ctx, bucket, key, maxBytes)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, blob.ErrTooLarge):
		return nil, apperr.ExtractionFailed(string(transcribe.KindTooLarge), err)
	case errors.Is(err, blob.ErrNotFound):
		return nil, apperr.ExtractionFailed("object_missing", err)
	default:
		return nil, apperr.ExtractionFailed("download_failed", err)
	}
}

// currentNote re-reads the note right before merging. Nothing is locked
// between this read and the write in persist.
func (p *Pipeline) currentNote(ctx context.Context, ref ContributionRef) (*models.NoteModel, error) {
	note, err := p.store.GetNote(ctx, ref.OwnerID, ref.NoteID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load note: %w", err))
	}
	if note == nil {
		return nil, apperr.NotFound("note", ref.NoteID)
	}
	return note, nil
}

func (p *Pipeline) persist(ctx context.Context, ref ContributionRef, patch models.ContentPatch) (*models.NoteModel, error) {
	updated, err := p.store.ApplyContent(ctx, ref.OwnerID, ref.NoteID, patch)
	if err != nil {
		return nil, apperr.PersistFailed(err)
	}
	if updated == nil {
		return nil, apperr.NotFound("note", ref.NoteID)
	}
	return updated, nil
}

func (p *Pipeline) stage(ref ContributionRef, kind blob.Kind, stage Stage, fields ...zap.Field) {
	p.logger.Debug("pipeline stage",
		append([]zap.Field{
			zap.String("note_id", ref.NoteID),
			zap.String("contribution_id", ref.ContributionID),
			zap.String("kind", string(kind)),
			zap.String("stage", string(stage)),
		}, fields...)...,
	)
}

// audioTitle picks the title of an untitled note: the outline title when
// the model produced one, else the first readable line of the merged text.
func audioTitle(merged string, outline models.Outline, structured bool) string {
	if !structured {
		if title := aggregate.FallbackTitle(merged); title != "" {
			return title
		}
	}
	return outline.Title
}

// decodeText reads data as UTF-8, dropping a leading byte order mark.
func decodeText(data []byte) (string, error) {
	text := strings.TrimPrefix(string(data), "\ufeff")
	if !utf8.ValidString(text) {
		return "", apperr.ExtractionFailed("invalid_encoding", errors.New("text contribution is not valid UTF-8"))
	}
	return text, nil
}

func toSegments(in []transcribe.Segment) []models.Segment {
	out := make([]models.Segment, len(in))
	for i, s := range in {
		out[i] = models.Segment{Start: s.Start, End: s.End, Text: s.Text}
	}
	return out
}
