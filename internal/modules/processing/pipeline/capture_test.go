package pipeline

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/mx-space/capture/internal/modules/processing/ai"
	"github.com/mx-space/capture/internal/modules/storage/blob"
	"github.com/mx-space/capture/internal/pkg/apperr"
	pkgredis "github.com/mx-space/capture/internal/pkg/redis"
	"github.com/mx-space/capture/internal/pkg/richdoc"
	"github.com/mx-space/capture/internal/pkg/taskqueue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) captureRequest(owner string) CaptureRequest {
	key := blob.CaptureKey(owner, "webm")
	f.blobs.put("audio", key, m4aBytes())
	return CaptureRequest{OwnerID: owner, Bucket: "audio", Key: key, MediaType: "audio/webm"}
}

func TestCaptureCreatesStructuredNote(t *testing.T) {
	f := newFixture(t)
	req := f.captureRequest("alice")
	req.Tags = []string{"Work"}

	res, err := f.p.Capture(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.True(t, res.Structured)

	got := f.store.note(res.NoteID)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, "Beta launch", got.Title)
	assert.Equal(t, "We agreed to ship the beta on Friday.", *got.ContentText)
	assert.Contains(t, headings(got.EditorDoc), ai.SectionHighlights)
	assert.Equal(t, []string{"Work", "meeting", "decision"}, []string(got.Tags))

	audio := f.store.audio[res.ContributionID]
	require.NotNil(t, audio)
	assert.Equal(t, "audio/mp4", audio.MediaType)
	assert.Equal(t, 1, audio.Sequence)
	require.NotNil(t, f.store.transcriptFor(audio.ID))
}

func TestCaptureRecoversFromPersistFailure(t *testing.T) {
	f := newFixture(t)
	f.store.applyErrs = []error{errDiskFull}

	res, err := f.p.Capture(context.Background(), f.captureRequest("alice"))
	require.NoError(t, err)
	assert.True(t, res.Degraded)

	got := f.store.note(res.NoteID)
	assert.Equal(t, DegradedDoc("We agreed to ship the beta on Friday."), got.EditorDoc)
	assert.Equal(t, richdoc.Heading{Level: 2, Text: DegradedHeading}, got.EditorDoc.Content[0])
	assert.Equal(t, "We agreed to ship the beta on Friday.", *got.ContentText)
	assert.Equal(t, "We agreed to ship the beta on Friday.", got.Title)
	assert.Nil(t, got.Outline)
	assert.Equal(t, 2, f.store.applyCalls)
}

func TestCaptureRecoversFromStructuringPanic(t *testing.T) {
	f := newFixture(t, withStructurer(panicStructurer{}))
	req := f.captureRequest("alice")
	req.Title = "Voice memo"

	res, err := f.p.Capture(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Degraded)

	got := f.store.note(res.NoteID)
	assert.Equal(t, "Voice memo", got.Title)
	assert.Equal(t, []string{DegradedHeading}, headings(got.EditorDoc))
	assert.Equal(t, 1, f.store.applyCalls)
}

func TestCaptureSurfacesPersistFailedWhenRecoveryFails(t *testing.T) {
	f := newFixture(t)
	f.store.applyErrs = []error{errDiskFull, errDiskFull}

	_, err := f.p.Capture(context.Background(), f.captureRequest("alice"))
	require.True(t, apperr.Is(err, apperr.CodePersistFailed))
	assert.ErrorIs(t, err, errDiskFull)
	assert.Len(t, f.store.transcripts, 1)
}

func TestCaptureExtractionFailureCreatesNothing(t *testing.T) {
	f := newFixture(t)
	req := f.captureRequest("alice")
	req.Key = blob.CaptureKey("alice", "webm")

	_, err := f.p.Capture(context.Background(), req)
	require.True(t, apperr.Is(err, apperr.CodeExtractionFailed))
	assert.Empty(t, f.store.notes)
	assert.Empty(t, f.store.audio)
}

func TestDegradedDoc(t *testing.T) {
	doc := DegradedDoc("first\n\nsecond")
	assert.Equal(t, richdoc.Doc{Content: []richdoc.Block{
		richdoc.Heading{Level: 2, Text: DegradedHeading},
		richdoc.Paragraph{Text: "first"},
		richdoc.Paragraph{Text: "second"},
	}}, doc)

	assert.Equal(t, richdoc.Doc{Content: []richdoc.Block{richdoc.Heading{Level: 2, Text: DegradedHeading}}}, DegradedDoc(""))
}

func newRunLog(t *testing.T) (*taskqueue.Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return taskqueue.NewService(pkgredis.New(rdb)), mr
}

func TestRunsAreRecorded(t *testing.T) {
	runs, _ := newRunLog(t)
	f := newFixture(t, withRunLog(runs))
	note := f.store.addNote("alice", "", nil)
	text := f.addText("alice", note.ID, "hello")
	ctx := context.Background()

	res, err := f.p.RunText(ctx, TextRef{OwnerID: "alice", NoteID: note.ID, ContributionID: text.ID})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	task, err := runs.GetByID(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskCompleted, task.Status)
	assert.Equal(t, "pipeline.text", task.Type)
	assert.Equal(t, note.ID, task.GroupKey)
	assert.JSONEq(t, `{"owner_id":"alice","note_id":"`+note.ID+`","contribution_id":"`+text.ID+`"}`, string(task.Payload))
	assert.Contains(t, string(task.Result), `"version":1`)

	_, err = f.p.RunText(ctx, TextRef{OwnerID: "alice", NoteID: note.ID, ContributionID: "missing"})
	require.Error(t, err)
	tasks, total, err := runs.ListByGroup(ctx, note.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	var failed *taskqueue.Task
	for _, task := range tasks {
		if task.Status == taskqueue.TaskFailed {
			failed = task
		}
	}
	require.NotNil(t, failed)
	assert.Contains(t, failed.Error, "NOT_FOUND")
}

func TestRunLogOutageDoesNotFailRuns(t *testing.T) {
	runs, mr := newRunLog(t)
	f := newFixture(t, withRunLog(runs))
	mr.Close()

	note := f.store.addNote("alice", "", nil)
	text := f.addText("alice", note.ID, "hello")
	res, err := f.p.RunText(context.Background(), TextRef{OwnerID: "alice", NoteID: note.ID, ContributionID: text.ID})
	require.NoError(t, err)
	assert.Empty(t, res.RunID)
}
