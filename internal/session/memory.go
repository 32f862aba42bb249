package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. Sessions are copied in and out so
// callers never share memory with the map.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*TutorSession
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*TutorSession),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (*TutorSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) CreateIfAbsent(_ context.Context, s *TutorSession) (*TutorSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[s.SessionID]; ok {
		return existing.Clone(), false, nil
	}
	m.sessions[s.SessionID] = s.Clone()
	return s.Clone(), true, nil
}

func (m *MemoryStore) AppendTurn(_ context.Context, sessionID string, t Turn) (*TutorSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	now := m.now()
	t = t.clone()
	t.TurnNumber = len(s.Turns) + 1
	t.Timestamp = now
	s.Turns = append(s.Turns, t)
	s.LastActivity = now
	s.CurrentHintLevel = t.HintLevel
	if t.StudentFrustrated {
		s.FrustratedTurns++
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ApplyProgressUpdate(_ context.Context, sessionID string, u ProgressUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.MasteryScore = u.MasteryScore
	s.CurrentMasteryStep = u.CurrentMasteryStep
	s.StepProgress = CloneProgress(u.StepProgress)
	s.LastActivity = m.now()
	return nil
}

func (m *MemoryStore) MarkCompleted(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.Completed = true
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
