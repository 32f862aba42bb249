package tutor

import (
	"errors"
	"fmt"
)

// UserMessage is shown to the student for every failed turn.
const UserMessage = "Something went wrong, please try again."

// Kind classifies a failed turn so transports can tell client mistakes
// from dependency failures.
type Kind string

const (
	KindInput      Kind = "input"
	KindStore      Kind = "store"
	KindContent    Kind = "content"
	KindGeneration Kind = "generation"
)

var (
	// ErrInvalidRequest marks a request rejected before any store access.
	ErrInvalidRequest = errors.New("invalid turn request")

	// ErrTopicMismatch is returned when a session id is reused for a
	// different subtopic.
	ErrTopicMismatch = errors.New("session belongs to a different topic")

	// ErrContentUnavailable is returned when no curriculum content can be
	// produced for the session's path. There is no fallback content.
	ErrContentUnavailable = errors.New("curriculum content unavailable")

	// ErrGenerationFailure is returned when the model errors, times out or
	// replies with something that is not a usable turn.
	ErrGenerationFailure = errors.New("tutor reply generation failed")
)

// Error is a failed turn.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tutor %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of a turn error, or "" for other errors.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

func inputError(format string, args ...any) error {
	return &Error{Kind: KindInput, Err: fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))}
}

func storeError(op string, err error) error {
	return &Error{Kind: KindStore, Err: fmt.Errorf("%s: %w", op, err)}
}

func contentError(err error) error {
	return &Error{Kind: KindContent, Err: fmt.Errorf("%w: %w", ErrContentUnavailable, err)}
}

func generationError(err error) error {
	return &Error{Kind: KindGeneration, Err: fmt.Errorf("%w: %w", ErrGenerationFailure, err)}
}
