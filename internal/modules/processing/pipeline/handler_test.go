package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/capture/internal/middleware"
	"github.com/mx-space/capture/internal/modules/storage/blob"
	"github.com/mx-space/capture/internal/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUploader struct{ buckets []string }

func (u *fakeUploader) SignedUploadURL(_ context.Context, bucket, key, _ string) (blob.SignedURL, error) {
	u.buckets = append(u.buckets, bucket)
	return blob.SignedURL{URL: "https://s3.test/" + bucket + "/" + key + "?X-Amz-Signature=abc", ExpiresAt: time.Unix(1700000000, 0).UTC()}, nil
}

// counter counts every increment as one request, whatever the window key.
type counter struct{ n int64 }

func (c *counter) IncrWindow(context.Context, string, time.Duration) (int64, error) {
	c.n++
	return c.n, nil
}

type handlerFixture struct {
	*fixture
	router   *gin.Engine
	uploader *fakeUploader
}

func newHandlerFixture(t *testing.T, limits map[ratelimit.Class]int) *handlerFixture {
	t.Helper()
	runs, _ := newRunLog(t)
	f := newFixture(t, withRunLog(runs))
	uploader := &fakeUploader{}
	guard := ratelimit.NewGuard(&counter{}, time.Minute, limits, zap.NewNop())
	h := NewHandler(f.p, f.store, uploader, runs, guard, HandlerOptions{
		AudioBucket:             "audio",
		TextBucket:              "text",
		QueuedDurationThreshold: 300,
	})

	fakeAuth := func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, c.GetHeader("X-User"))
		c.Next()
	}
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"), fakeAuth)
	return &handlerFixture{fixture: f, router: r, uploader: uploader}
}

func (hf *handlerFixture) do(method, path, user string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", user)
	w := httptest.NewRecorder()
	hf.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestUploadURL(t *testing.T) {
	hf := newHandlerFixture(t, nil)
	note := hf.store.addNote("alice", "", nil)

	w := hf.do(http.MethodPost, "/api/v1/notes/"+note.ID+"/audio/upload-url", "alice", gin.H{"media_type": "audio/webm"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	key := body["key"].(string)
	assert.NoError(t, blob.ValidateKey(key, "alice", note.ID, blob.KindAudio))
	assert.True(t, strings.HasSuffix(key, ".webm"))
	assert.Contains(t, body["url"], key)
	assert.Equal(t, "audio", body["bucket"])

	w = hf.do(http.MethodPost, "/api/v1/notes/"+note.ID+"/text/upload-url", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasSuffix(decode(t, w)["key"].(string), ".txt"))
	assert.Equal(t, []string{"audio", "text"}, hf.uploader.buckets)

	w = hf.do(http.MethodPost, "/api/v1/notes/"+note.ID+"/audio/upload-url", "mallory", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommitAudioStatusLabel(t *testing.T) {
	hf := newHandlerFixture(t, nil)
	note := hf.store.addNote("alice", "", nil)

	commit := func(duration float64) *httptest.ResponseRecorder {
		key := blob.ObjectKey("alice", note.ID, blob.KindAudio, "webm")
		hf.blobs.put("audio", key, m4aBytes())
		return hf.do(http.MethodPost, "/api/v1/notes/"+note.ID+"/audio", "alice", gin.H{
			"key": key, "media_type": "audio/webm", "duration_seconds": duration,
		})
	}

	w := commit(60)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "completed", body["status"])
	assert.NotEmpty(t, body["run_id"])
	assert.Equal(t, "We agreed to ship the beta on Friday.", body["note"].(map[string]interface{})["content_text"])

	w = commit(900)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "queued", decode(t, w)["status"])

	got := hf.store.note(note.ID)
	assert.Equal(t, "We agreed to ship the beta on Friday.\n\nWe agreed to ship the beta on Friday.", *got.ContentText)
}

func TestCommitRejectsForeignKeys(t *testing.T) {
	hf := newHandlerFixture(t, nil)
	note := hf.store.addNote("alice", "", nil)
	other := hf.store.addNote("alice", "", nil)

	cases := map[string]string{
		"other note": blob.ObjectKey("alice", other.ID, blob.KindAudio, "webm"),
		"other kind": blob.ObjectKey("alice", note.ID, blob.KindText, "md"),
		"traversal":  "notes/alice/" + note.ID + "/audio/../../x.webm",
	}
	for name, key := range cases {
		t.Run(name, func(t *testing.T) {
			w := hf.do(http.MethodPost, "/api/v1/notes/"+note.ID+"/audio", "alice", gin.H{"key": key})
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	w := hf.do(http.MethodPost, "/api/v1/notes/"+note.ID+"/audio", "alice", gin.H{
		"key": blob.ObjectKey("alice", note.ID, blob.KindAudio, "webm"), "duration_seconds": -1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, hf.store.audio)
}

func TestCommitTextMapsErrors(t *testing.T) {
	hf := newHandlerFixture(t, nil)
	note := hf.store.addNote("alice", "", nil)

	key := blob.ObjectKey("alice", note.ID, blob.KindText, "md")
	w := hf.do(http.MethodPost, "/api/v1/notes/"+note.ID+"/text", "alice", gin.H{"key": key})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, "EXTRACTION_FAILED", decode(t, w)["code"])

	hf.blobs.put("text", key, []byte("hello there"))
	w = hf.do(http.MethodPost, "/api/v1/notes/"+note.ID+"/text", "alice", gin.H{"key": key})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", decode(t, w)["status"])

	w = hf.do(http.MethodPost, "/api/v1/notes/missing/text", "alice", gin.H{"key": blob.ObjectKey("alice", "missing", blob.KindText, "md")})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommitIsRateLimited(t *testing.T) {
	hf := newHandlerFixture(t, map[ratelimit.Class]int{ratelimit.ClassCommit: 1})
	note := hf.store.addNote("alice", "", nil)
	key := blob.ObjectKey("alice", note.ID, blob.KindText, "md")
	hf.blobs.put("text", key, []byte("hello"))

	w := hf.do(http.MethodPost, "/api/v1/notes/"+note.ID+"/text", "alice", gin.H{"key": key})
	require.Equal(t, http.StatusOK, w.Code)

	w = hf.do(http.MethodPost, "/api/v1/notes/"+note.ID+"/text", "alice", gin.H{"key": key})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 1, hf.store.applyCalls)
	assert.Len(t, hf.store.texts, 1)
}

func TestCaptureEndpointAndRunLookup(t *testing.T) {
	hf := newHandlerFixture(t, nil)

	w := hf.do(http.MethodPost, "/api/v1/captures/upload-url", "alice", gin.H{"media_type": "audio/webm"})
	require.Equal(t, http.StatusOK, w.Code)
	key := decode(t, w)["key"].(string)
	require.NoError(t, blob.ValidateCaptureKey(key, "alice"))
	hf.blobs.put("audio", key, m4aBytes())

	w = hf.do(http.MethodPost, "/api/v1/captures", "bob", gin.H{"key": key})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = hf.do(http.MethodPost, "/api/v1/captures", "alice", gin.H{"key": key, "media_type": "audio/webm", "duration_seconds": 42})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, false, body["degraded"])
	runID := body["run_id"].(string)

	w = hf.do(http.MethodGet, "/api/v1/runs/"+runID, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", decode(t, w)["status"])

	w = hf.do(http.MethodGet, "/api/v1/runs/"+runID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = hf.do(http.MethodGet, "/api/v1/runs/unknown", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListNoteRuns(t *testing.T) {
	hf := newHandlerFixture(t, nil)
	note := hf.store.addNote("alice", "", nil)
	for _, body := range []string{"first", "second", "third"} {
		key := blob.ObjectKey("alice", note.ID, blob.KindText, "md")
		hf.blobs.put("text", key, []byte(body))
		w := hf.do(http.MethodPost, "/api/v1/notes/"+note.ID+"/text", "alice", gin.H{"key": key})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := hf.do(http.MethodGet, "/api/v1/notes/"+note.ID+"/runs?size=2", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	runs := body["data"].([]interface{})
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, "pipeline.text", run.(map[string]interface{})["type"])
		assert.Equal(t, "completed", run.(map[string]interface{})["status"])
	}
	meta := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(3), meta["total"])
	assert.Equal(t, true, meta["has_next_page"])

	w = hf.do(http.MethodGet, "/api/v1/notes/"+note.ID+"/runs", "mallory", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
