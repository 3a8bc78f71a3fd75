package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationExists   = errors.New("conversation already exists")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrPersonaNotFound      = errors.New("persona not found")
	ErrNoUserParticipant    = errors.New("conversation has no user participant")
	ErrEmptyMessage         = errors.New("message content is empty")
	ErrNotAPersona          = errors.New("participant is not a persona")
	ErrUserImmutable        = errors.New("the user participant cannot be added or removed")
	ErrDuplicateParticipant = errors.New("participant already exists")
	ErrInvalidParticipant   = errors.New("participant name is required")
)

// ErrorKind classifies generation failures for the retry policy.
type ErrorKind string

const (
	KindRateLimited     ErrorKind = "rate_limited"
	KindTransientServer ErrorKind = "transient_server"
	KindEmptyResponse   ErrorKind = "empty_response"
	KindOther           ErrorKind = "other"
)

// GenerationError is returned by LLM backends and the reply gateway.
type GenerationError struct {
	Kind       ErrorKind
	StatusCode int // backend status code, 0 if unknown
	Err        error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generation failed (%s)", e.Kind)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation failed (%s, status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("generation failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt.
func (e *GenerationError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransientServer
}

// KindOf extracts the classification of err. Unclassified errors are KindOther.
func KindOf(err error) ErrorKind {
	var gerr *GenerationError
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindOther
}

// IsRetryable reports whether err is a retryable generation failure.
func IsRetryable(err error) bool {
	var gerr *GenerationError
	return errors.As(err, &gerr) && gerr.Retryable()
}
