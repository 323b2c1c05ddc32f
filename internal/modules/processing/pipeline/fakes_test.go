package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mx-space/capture/internal/models"
	"github.com/mx-space/capture/internal/modules/processing/ai"
	"github.com/mx-space/capture/internal/modules/processing/transcribe"
	"github.com/mx-space/capture/internal/modules/storage/blob"
	"github.com/mx-space/capture/internal/pkg/richdoc"
	"go.uber.org/zap"
)

// memStore is an in-memory Store and NoteStore. Reads return copies, like
// rows loaded from a database.
type memStore struct {
	mu          sync.Mutex
	notes       map[string]*models.NoteModel
	audio       map[string]*models.AudioContributionModel
	texts       map[string]*models.TextContributionModel
	transcripts map[string]*models.TranscriptModel

	applyErrs  []error
	applyCalls int

	// afterGetNote runs once a GetNote read has been taken, outside the lock.
	afterGetNote func()
}

func newMemStore() *memStore {
	return &memStore{
		notes:       map[string]*models.NoteModel{},
		audio:       map[string]*models.AudioContributionModel{},
		texts:       map[string]*models.TextContributionModel{},
		transcripts: map[string]*models.TranscriptModel{},
	}
}

func copyNote(n *models.NoteModel) *models.NoteModel {
	out := *n
	if n.ContentText != nil {
		text := *n.ContentText
		out.ContentText = &text
	}
	out.Tags = append(models.StringArray{}, n.Tags...)
	return &out
}

func (s *memStore) addNote(owner, title string, content *string) *models.NoteModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := &models.NoteModel{OwnerID: owner, Title: title, ContentText: content, EditorDoc: richdoc.Empty(), Tags: models.StringArray{}}
	n.ID = uuid.NewString()
	s.notes[n.ID] = n
	return copyNote(n)
}

func (s *memStore) note(id string) *models.NoteModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyNote(s.notes[id])
}

func (s *memStore) GetNote(_ context.Context, ownerID, id string) (*models.NoteModel, error) {
	s.mu.Lock()
	n, ok := s.notes[id]
	var out *models.NoteModel
	if ok && n.OwnerID == ownerID {
		out = copyNote(n)
	}
	after := s.afterGetNote
	s.mu.Unlock()

	if after != nil {
		after()
	}
	return out, nil
}

func (s *memStore) GetAudio(_ context.Context, ownerID, noteID, id string) (*models.AudioContributionModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audio[id]
	if !ok || a.OwnerID != ownerID || a.NoteID != noteID {
		return nil, nil
	}
	out := *a
	if t, ok := s.transcripts[id]; ok {
		tc := *t
		out.Transcript = &tc
	}
	return &out, nil
}

func (s *memStore) GetText(_ context.Context, ownerID, noteID, id string) (*models.TextContributionModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.texts[id]
	if !ok || t.OwnerID != ownerID || t.NoteID != noteID {
		return nil, nil
	}
	out := *t
	return &out, nil
}

func (s *memStore) SaveTranscript(_ context.Context, t *models.TranscriptModel) (*models.TranscriptModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.transcripts[t.AudioID]; ok {
		out := *existing
		return &out, nil
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	stored := *t
	s.transcripts[t.AudioID] = &stored
	return t, nil
}

func (s *memStore) ApplyContent(_ context.Context, ownerID, noteID string, patch models.ContentPatch) (*models.NoteModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyCalls++
	if len(s.applyErrs) > 0 {
		err := s.applyErrs[0]
		s.applyErrs = s.applyErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	n, ok := s.notes[noteID]
	if !ok || n.OwnerID != ownerID {
		return nil, nil
	}
	if strings.TrimSpace(patch.ContentText) == "" {
		n.ContentText = nil
	} else {
		text := patch.ContentText
		n.ContentText = &text
	}
	n.EditorDoc = patch.EditorDoc
	if patch.Outline != nil {
		outline := *patch.Outline
		n.Outline = &outline
	}
	if patch.Tags != nil {
		n.Tags = patch.Tags
	}
	if patch.Title != nil {
		n.Title = *patch.Title
	}
	n.Version++
	return copyNote(n), nil
}

func (s *memStore) CreateNote(_ context.Context, note *models.NoteModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	s.notes[note.ID] = copyNote(note)
	return nil
}

func (s *memStore) CreateAudio(_ context.Context, audio *models.AudioContributionModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if audio.ID == "" {
		audio.ID = uuid.NewString()
	}
	seq := 0
	for _, a := range s.audio {
		if a.NoteID == audio.NoteID && a.Sequence > seq {
			seq = a.Sequence
		}
	}
	audio.Sequence = seq + 1
	stored := *audio
	s.audio[audio.ID] = &stored
	return nil
}

func (s *memStore) CreateText(_ context.Context, text *models.TextContributionModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text.ID == "" {
		text.ID = uuid.NewString()
	}
	stored := *text
	s.texts[text.ID] = &stored
	return nil
}

func (s *memStore) transcriptFor(audioID string) *models.TranscriptModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcripts[audioID]
}

// memBlobs serves objects from memory with the blob store's error contract.
type memBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	downloads int
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (b *memBlobs) put(bucket, key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[bucket+"/"+key] = data
}

func (b *memBlobs) Download(_ context.Context, bucket, key string, maxBytes int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.downloads++
	data, ok := b.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", blob.ErrNotFound, bucket, key)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", blob.ErrTooLarge, len(data))
	}
	return append([]byte(nil), data...), nil
}

// speechBackend is a transcription backend returning a fixed result.
type speechBackend struct {
	mu     sync.Mutex
	calls  int
	paths  []string
	result transcribe.Result
	err    error
}

func (b *speechBackend) Transcribe(_ context.Context, req transcribe.Request) (transcribe.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.paths = append(b.paths, req.Path)
	if _, err := os.Stat(req.Path); err != nil {
		return transcribe.Result{}, err
	}
	if b.err != nil {
		return transcribe.Result{}, b.err
	}
	return b.result, nil
}

type replyCompleter struct {
	reply string
	err   error
}

func (c replyCompleter) Complete(context.Context, string, string) (string, error) {
	return c.reply, c.err
}

type panicStructurer struct{}

func (panicStructurer) Structure(context.Context, string) (models.Outline, bool) {
	panic("structurer exploded")
}

func (panicStructurer) Render(context.Context, models.Outline) (richdoc.Doc, bool) {
	return richdoc.Empty(), false
}

const outlineReply = `{
  "title": "Beta launch",
  "highlights": ["We agreed to ship the beta on Friday"],
  "insights": [],
  "open_questions": ["Who writes the release notes"],
  "next_steps": [{"text": "Tag the release", "due": "2024-06-07"}],
  "tags": ["meeting", "decision"],
  "language": "en"
}`

type fixture struct {
	store   *memStore
	blobs   *memBlobs
	speech  *speechBackend
	adapter *transcribe.Adapter
	p       *Pipeline
}

type fixtureOption func(*Deps, *Options)

func withStructurer(s Structurer) fixtureOption {
	return func(d *Deps, _ *Options) { d.Structurer = s }
}

func withRunLog(r RunLog) fixtureOption {
	return func(d *Deps, _ *Options) { d.Runs = r }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		blobs: newMemBlobs(),
		speech: &speechBackend{result: transcribe.Result{
			Text:     "We agreed to ship the beta on Friday.",
			Segments: []transcribe.Segment{{Start: 0, End: 4.2, Text: "We agreed to ship the beta on Friday."}},
			Language: "en",
		}},
	}
	f.adapter = transcribe.NewAdapter(f.speech, transcribe.Options{TempDir: t.TempDir(), MaxBytes: 1 << 20}, zap.NewNop())

	deps := Deps{
		Store:       f.store,
		Blobs:       f.blobs,
		Transcriber: f.adapter,
		Structurer:  ai.NewStructurer(replyCompleter{reply: outlineReply}, nil, zap.NewNop()),
	}
	options := Options{TextMaxBytes: 1 << 10}
	for _, opt := range opts {
		opt(&deps, &options)
	}
	f.p = New(deps, options, zap.NewNop())
	return f
}

func (f *fixture) addAudio(owner, noteID, mediaType string, data []byte) *models.AudioContributionModel {
	key := blob.ObjectKey(owner, noteID, blob.KindAudio, blob.ExtensionFor(blob.KindAudio, mediaType))
	f.blobs.put("audio", key, data)
	a := &models.AudioContributionModel{NoteID: noteID, OwnerID: owner, Bucket: "audio", StorageKey: key, MediaType: mediaType}
	if err := f.store.CreateAudio(context.Background(), a); err != nil {
		panic(err)
	}
	return a
}

func (f *fixture) addText(owner, noteID, body string) *models.TextContributionModel {
	key := blob.ObjectKey(owner, noteID, blob.KindText, "md")
	f.blobs.put("text", key, []byte(body))
	t := &models.TextContributionModel{NoteID: noteID, OwnerID: owner, Bucket: "text", StorageKey: key, MediaType: "text/markdown"}
	if err := f.store.CreateText(context.Background(), t); err != nil {
		panic(err)
	}
	return t
}

// m4aBytes is an ISO base media prefix with the M4A brand.
func m4aBytes() []byte {
	b := []byte{0x00, 0x00, 0x00, 0x1C}
	b = append(b, "ftypM4A "...)
	return append(b, make([]byte, 64)...)
}

func strPtr(s string) *string { return &s }

var errDiskFull = errors.New("disk full")
