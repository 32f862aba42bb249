package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
)

var (
	// ErrSessionNotFound is returned when no session exists for an id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStoreUnavailable wraps failures to reach the backing store.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrSessionOwnership is returned when a session id belongs to another user.
	ErrSessionOwnership = errors.New("session belongs to another user")
)

// ProgressUpdate overwrites the mutable mastery fields of a session.
type ProgressUpdate struct {
	MasteryScore       float64
	CurrentMasteryStep int
	StepProgress       []StepProgress
}

// Store persists tutoring sessions. Implementations must make AppendTurn
// atomic per session: the turn number is derived from the persisted turn
// count at write time and two appends never receive the same number.
// Progress updates are last-writer-wins.
type Store interface {
	// Get returns the session or an error wrapping ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*TutorSession, error)

	// CreateIfAbsent inserts s unless a session with the same id exists.
	// It returns the stored session and whether it was created.
	CreateIfAbsent(ctx context.Context, s *TutorSession) (*TutorSession, bool, error)

	// AppendTurn assigns the next turn number, stamps the timestamp, sets
	// LastActivity and CurrentHintLevel, increments FrustratedTurns for a
	// frustrated turn, and returns the updated session.
	AppendTurn(ctx context.Context, sessionID string, t Turn) (*TutorSession, error)

	// ApplyProgressUpdate overwrites score, current step and step progress.
	ApplyProgressUpdate(ctx context.Context, sessionID string, u ProgressUpdate) error

	// MarkCompleted latches the completed flag. Idempotent.
	MarkCompleted(ctx context.Context, sessionID string) error
}

// GetOrCreate loads the session or creates a zeroed one for uid.
func GetOrCreate(ctx context.Context, st Store, uid, sessionID string, path curriculum.Path, now time.Time) (*TutorSession, bool, error) {
	s, err := st.Get(ctx, sessionID)
	switch {
	case err == nil:
		if s.UID != uid {
			return nil, false, fmt.Errorf("%w: %s", ErrSessionOwnership, sessionID)
		}
		return s, false, nil
	case !errors.Is(err, ErrSessionNotFound):
		return nil, false, err
	}

	s, created, err := st.CreateIfAbsent(ctx, New(uid, sessionID, path, now))
	if err != nil {
		return nil, false, err
	}
	if s.UID != uid {
		return nil, false, fmt.Errorf("%w: %s", ErrSessionOwnership, sessionID)
	}
	return s, created, nil
}
