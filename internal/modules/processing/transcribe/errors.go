package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a transcription failure for logging and error details.
type Kind string

const (
	KindInvalidFormat Kind = "invalid_format"
	KindTooLarge      Kind = "too_large"
	KindAuth          Kind = "auth"
	KindRateLimited   Kind = "rate_limited"
	KindConnection    Kind = "connection"
	KindUpstream      Kind = "upstream"
	KindStaging       Kind = "staging"
)

// Error is the single failure type returned by the adapter.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transcription failed (%s)", e.Kind)
	}
	return fmt.Sprintf("transcription failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same request could succeed later. Nothing in
// the adapter retries; callers decide.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindConnection, KindUpstream:
		return true
	}
	return false
}

// KindOf returns the classification of err, or "" if err is not a
// transcription error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

func classify(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindConnection, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Kind: KindConnection, Err: err}
	}
	return &Error{Kind: KindUpstream, Err: err}
}
