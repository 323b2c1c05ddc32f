package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/capture/internal/middleware"
	"github.com/mx-space/capture/internal/models"
	"github.com/mx-space/capture/internal/modules/storage/blob"
	"github.com/mx-space/capture/internal/pkg/apperr"
	"github.com/mx-space/capture/internal/pkg/pagination"
	"github.com/mx-space/capture/internal/pkg/ratelimit"
	"github.com/mx-space/capture/internal/pkg/response"
	"github.com/mx-space/capture/internal/pkg/taskqueue"
)

const (
	statusCompleted = "completed"
	statusQueued    = "queued"
)

// NoteStore is what the commit endpoints need besides the pipeline.
type NoteStore interface {
	GetNote(ctx context.Context, ownerID, id string) (*models.NoteModel, error)
	CreateAudio(ctx context.Context, audio *models.AudioContributionModel) error
	CreateText(ctx context.Context, text *models.TextContributionModel) error
}

type Uploader interface {
	SignedUploadURL(ctx context.Context, bucket, key, contentType string) (blob.SignedURL, error)
}

type RunReader interface {
	GetByID(ctx context.Context, id string) (*taskqueue.Task, error)
	ListByGroup(ctx context.Context, groupKey string, page, size int) ([]*taskqueue.Task, int64, error)
}

type HandlerOptions struct {
	AudioBucket string
	TextBucket  string
	// QueuedDurationThreshold is in seconds; audio declared longer is
	// answered with 202 "queued". Zero or less disables the label.
	QueuedDurationThreshold float64
}

type Handler struct {
	pipeline *Pipeline
	notes    NoteStore
	uploader Uploader
	runs     RunReader
	guard    *ratelimit.Guard
	opts     HandlerOptions
}

func NewHandler(p *Pipeline, notes NoteStore, uploader Uploader, runs RunReader, guard *ratelimit.Guard, opts HandlerOptions) *Handler {
	return &Handler{pipeline: p, notes: notes, uploader: uploader, runs: runs, guard: guard, opts: opts}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	upload := middleware.RateLimit(h.guard, ratelimit.ClassUpload)
	commit := middleware.RateLimit(h.guard, ratelimit.ClassCommit)
	capture := middleware.RateLimit(h.guard, ratelimit.ClassCapture)

	notes := rg.Group("/notes/:id", authMW)
	notes.POST("/audio/upload-url", upload, h.uploadURL(blob.KindAudio))
	notes.POST("/text/upload-url", upload, h.uploadURL(blob.KindText))
	notes.POST("/audio", commit, h.commitAudio)
	notes.POST("/text", commit, h.commitText)
	notes.GET("/runs", h.listRuns)

	captures := rg.Group("/captures", authMW)
	captures.POST("/upload-url", upload, h.captureUploadURL)
	captures.POST("", capture, h.capture)

	rg.GET("/runs/:id", authMW, h.getRun)
}

type uploadURLRequest struct {
	MediaType string `json:"media_type"`
}

type uploadURLResponse struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type commitAudioRequest struct {
	Key             string   `json:"key" binding:"required"`
	MediaType       string   `json:"media_type"`
	DurationSeconds *float64 `json:"duration_seconds"`
}

type commitTextRequest struct {
	Key       string `json:"key" binding:"required"`
	MediaType string `json:"media_type"`
}

type captureRequest struct {
	Key             string   `json:"key" binding:"required"`
	MediaType       string   `json:"media_type"`
	DurationSeconds *float64 `json:"duration_seconds"`
	Title           string   `json:"title"`
	Tags            []string `json:"tags"`
}

type commitResponse struct {
	Status string `json:"status"`
	*Result
}

func (h *Handler) uploadURL(kind blob.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req uploadURLRequest
		if err := bindOptionalJSON(c, &req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		owner := middleware.CurrentUserID(c)
		noteID := c.Param("id")
		if !h.requireNote(c, owner, noteID) {
			return
		}

		bucket := h.bucketFor(kind)
		key := blob.ObjectKey(owner, noteID, kind, blob.ExtensionFor(kind, req.MediaType))
		h.sign(c, bucket, key, req.MediaType)
	}
}

func (h *Handler) captureUploadURL(c *gin.Context) {
	var req uploadURLRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	owner := middleware.CurrentUserID(c)
	key := blob.CaptureKey(owner, blob.ExtensionFor(blob.KindAudio, req.MediaType))
	h.sign(c, h.opts.AudioBucket, key, req.MediaType)
}

func (h *Handler) sign(c *gin.Context, bucket, key, mediaType string) {
	signed, err := h.uploader.SignedUploadURL(c.Request.Context(), bucket, key, strings.TrimSpace(mediaType))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, uploadURLResponse{Bucket: bucket, Key: key, URL: signed.URL, ExpiresAt: signed.ExpiresAt})
}

func (h *Handler) commitAudio(c *gin.Context) {
	var req commitAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.DurationSeconds != nil && *req.DurationSeconds < 0 {
		response.BadRequest(c, "duration_seconds must not be negative")
		return
	}
	owner := middleware.CurrentUserID(c)
	noteID := c.Param("id")
	if err := blob.ValidateKey(req.Key, owner, noteID, blob.KindAudio); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !h.requireNote(c, owner, noteID) {
		return
	}

	audio := &models.AudioContributionModel{
		NoteID:          noteID,
		OwnerID:         owner,
		Bucket:          h.opts.AudioBucket,
		StorageKey:      req.Key,
		DurationSeconds: req.DurationSeconds,
		MediaType:       strings.TrimSpace(req.MediaType),
	}
	if err := h.notes.CreateAudio(c.Request.Context(), audio); err != nil {
		response.Error(c, apperr.PersistFailed(err))
		return
	}

	res, err := h.pipeline.RunAudio(c.Request.Context(), AudioRef{OwnerID: owner, NoteID: noteID, ContributionID: audio.ID})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, res, req.DurationSeconds)
}

func (h *Handler) commitText(c *gin.Context) {
	var req commitTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	owner := middleware.CurrentUserID(c)
	noteID := c.Param("id")
	if err := blob.ValidateKey(req.Key, owner, noteID, blob.KindText); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !h.requireNote(c, owner, noteID) {
		return
	}

	mediaType := strings.TrimSpace(req.MediaType)
	if mediaType == "" {
		mediaType = "text/plain"
	}
	text := &models.TextContributionModel{
		NoteID:     noteID,
		OwnerID:    owner,
		Bucket:     h.opts.TextBucket,
		StorageKey: req.Key,
		MediaType:  mediaType,
	}
	if err := h.notes.CreateText(c.Request.Context(), text); err != nil {
		response.Error(c, apperr.PersistFailed(err))
		return
	}

	res, err := h.pipeline.RunText(c.Request.Context(), TextRef{OwnerID: owner, NoteID: noteID, ContributionID: text.ID})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, res, nil)
}

func (h *Handler) capture(c *gin.Context) {
	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.DurationSeconds != nil && *req.DurationSeconds < 0 {
		response.BadRequest(c, "duration_seconds must not be negative")
		return
	}
	owner := middleware.CurrentUserID(c)
	if err := blob.ValidateCaptureKey(req.Key, owner); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.pipeline.Capture(c.Request.Context(), CaptureRequest{
		OwnerID:         owner,
		Bucket:          h.opts.AudioBucket,
		Key:             req.Key,
		MediaType:       req.MediaType,
		DurationSeconds: req.DurationSeconds,
		Title:           req.Title,
		Tags:            req.Tags,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, res, req.DurationSeconds)
}

func (h *Handler) getRun(c *gin.Context) {
	id := c.Param("id")
	if h.runs == nil {
		response.Error(c, apperr.NotFound("run", id))
		return
	}
	task, err := h.runs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, taskqueue.ErrNotFound) {
			response.Error(c, apperr.NotFound("run", id))
			return
		}
		response.InternalError(c, err)
		return
	}

	var payload struct {
		OwnerID string `json:"owner_id"`
	}
	if err := json.Unmarshal(task.Payload, &payload); err != nil || payload.OwnerID != middleware.CurrentUserID(c) {
		response.Error(c, apperr.NotFound("run", id))
		return
	}
	response.OK(c, task)
}

// listRuns pages through a note's runs, newest first. Without a run log the
// list is empty.
func (h *Handler) listRuns(c *gin.Context) {
	owner := middleware.CurrentUserID(c)
	noteID := c.Param("id")
	if !h.requireNote(c, owner, noteID) {
		return
	}

	q := pagination.FromContext(c)
	if h.runs == nil {
		response.Paged(c, []*taskqueue.Task{}, q.Meta(0))
		return
	}
	tasks, total, err := h.runs.ListByGroup(c.Request.Context(), noteID, q.Page, q.Size)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, tasks, q.Meta(total))
}

// respond labels long audio as queued. The run has already finished either
// way; only the status code differs.
func (h *Handler) respond(c *gin.Context, res *Result, duration *float64) {
	if h.isQueued(duration) {
		c.JSON(http.StatusAccepted, commitResponse{Status: statusQueued, Result: res})
		return
	}
	c.JSON(http.StatusOK, commitResponse{Status: statusCompleted, Result: res})
}

func (h *Handler) isQueued(duration *float64) bool {
	return duration != nil && h.opts.QueuedDurationThreshold > 0 && *duration > h.opts.QueuedDurationThreshold
}

func (h *Handler) requireNote(c *gin.Context, owner, noteID string) bool {
	note, err := h.notes.GetNote(c.Request.Context(), owner, noteID)
	if err != nil {
		response.InternalError(c, err)
		return false
	}
	if note == nil {
		response.Error(c, apperr.NotFound("note", noteID))
		return false
	}
	return true
}

func (h *Handler) bucketFor(kind blob.Kind) string {
	if kind == blob.KindText {
		return h.opts.TextBucket
	}
	return h.opts.AudioBucket
}

// bindOptionalJSON binds the body when there is one.
func bindOptionalJSON(c *gin.Context, out interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(out)
}
