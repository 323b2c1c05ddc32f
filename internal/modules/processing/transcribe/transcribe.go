// Package transcribe turns raw audio bytes into text with time-aligned
// segments using a pluggable speech-to-text backend.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mx-space/capture/internal/modules/processing/audioformat"
	"go.uber.org/zap"
)

// DefaultMaxBytes is the largest payload the speech-to-text API accepts.
const DefaultMaxBytes int64 = 25 << 20

// Segment is one time-aligned span of the transcript, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Result struct {
	Text     string
	Segments []Segment
	Language string
	Format   audioformat.Format
}

// Request is what a backend receives: a staged file whose name carries the
// resolved extension.
type Request struct {
	Path      string
	MediaType string
	Language  string
}

// Backend is a speech-to-text capability.
type Backend interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// StagingPrefix starts the name of every staging file written to TempDir.
const StagingPrefix = "capture-audio-"

type Options struct {
	MaxBytes int64
	TempDir  string
	Language string
}

type Adapter struct {
	backend  Backend
	maxBytes int64
	tempDir  string
	language string
	logger   *zap.Logger
}

func NewAdapter(backend Backend, opts Options, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Adapter{
		backend:  backend,
		maxBytes: maxBytes,
		tempDir:  opts.TempDir,
		language: strings.TrimSpace(opts.Language),
		logger:   logger,
	}
}

// MaxBytes returns the payload ceiling enforced before any backend call.
func (a *Adapter) MaxBytes() int64 { return a.maxBytes }

// Transcribe resolves the real format of data, stages it to a temporary file
// and hands it to the backend. The staged file is removed on every return
// path. Failures are always *Error and are never retried here.
func (a *Adapter) Transcribe(ctx context.Context, data []byte, declaredType string) (Result, error) {
	size := int64(len(data))
	if size > a.maxBytes {
		return Result{}, &Error{
			Kind: KindTooLarge,
			Err:  fmt.Errorf("audio is %d bytes, the limit is %d bytes", size, a.maxBytes),
		}
	}
	if size == 0 {
		return Result{}, &Error{Kind: KindInvalidFormat, Err: errors.New("audio is empty")}
	}
	if a.backend == nil {
		return Result{}, &Error{Kind: KindUpstream, Err: errors.New("no transcription backend configured")}
	}

	format := audioformat.Resolve(data, declaredType)
	if format.Sniffed && !strings.EqualFold(format.MediaType, strings.TrimSpace(declaredType)) {
		a.logger.Debug("audio media type corrected",
			zap.String("declared", declaredType),
			zap.String("resolved", format.MediaType),
		)
	}

	path, err := a.stage(data, format.Extension)
	if err != nil {
		return Result{}, &Error{Kind: KindStaging, Err: err}
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			a.logger.Warn("failed to remove staged audio", zap.String("path", path), zap.Error(rmErr))
		}
	}()

	if err := ctx.Err(); err != nil {
		return Result{}, classify(err)
	}

	res, err := a.backend.Transcribe(ctx, Request{
		Path:      path,
		MediaType: format.MediaType,
		Language:  a.language,
	})
	if err != nil {
		return Result{}, classify(err)
	}

	res.Text = strings.TrimSpace(res.Text)
	if res.Text == "" && len(res.Segments) > 0 {
		res.Text = joinSegments(res.Segments)
	}
	res.Format = format
	return res, nil
}

func (a *Adapter) stage(data []byte, ext string) (string, error) {
	f, err := os.CreateTemp(a.tempDir, StagingPrefix+"*"+ext)
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close staging file: %w", err)
	}
	return path, nil
}

func joinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
