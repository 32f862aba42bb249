// Package session holds the tutoring session aggregate and the capability
// interface used to persist it.
package session

import (
	"time"

	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
)

// Hint level bounds.
const (
	MinHintLevel = 0
	MaxHintLevel = 3
)

// StepProgress tracks one mastery step inside a session. Entries are keyed
// by StepNumber; ConceptName is a display label copied from the progression.
type StepProgress struct {
	StepNumber         int    `json:"step"`
	ConceptName        string `json:"concept"`
	QuestionsAsked     int    `json:"questions_asked"`
	QuestionsCompleted int    `json:"questions_completed"`
	Completed          bool   `json:"completed"`
}

// Turn is one student/tutor exchange. Turns are immutable once appended.
// AnswerCredited marks the turn that counted a correct answer to the open
// question; each question is credited at most once.
type Turn struct {
	TurnNumber        int       `json:"turn_number"`
	StudentMessage    string    `json:"student_message"`
	TutorMessage      string    `json:"tutor_message"`
	Intent            string    `json:"intent"`
	ConceptTags       []string  `json:"concept_tags"`
	HintLevel         int       `json:"hint_level"`
	Timestamp         time.Time `json:"timestamp"`
	MasteryGained     []string  `json:"mastery_gained,omitempty"`
	StudentFrustrated bool      `json:"student_frustrated"`
	AnswerCredited    bool      `json:"answer_credited,omitempty"`
}

// TutorSession is the root aggregate for one student working one subtopic.
type TutorSession struct {
	UID                string              `json:"uid"`
	SessionID          string              `json:"session_id"`
	TopicKey           curriculum.TopicKey `json:"topic_key"`
	Path               curriculum.Path     `json:"path"`
	Turns              []Turn              `json:"turns"`
	CreatedAt          time.Time           `json:"created_at"`
	LastActivity       time.Time           `json:"last_activity"`
	MasteryScore       float64             `json:"mastery_score"`
	FrustratedTurns    int                 `json:"frustrated_turns"`
	CurrentHintLevel   int                 `json:"current_hint_level"`
	Completed          bool                `json:"completed"`
	CurrentMasteryStep int                 `json:"current_mastery_step"`
	StepProgress       []StepProgress      `json:"step_progress"`
}

// New returns a zeroed session positioned at the first mastery step.
func New(uid, sessionID string, path curriculum.Path, now time.Time) *TutorSession {
	return &TutorSession{
		UID:                uid,
		SessionID:          sessionID,
		TopicKey:           curriculum.PathToKey(path),
		Path:               path,
		CreatedAt:          now,
		LastActivity:       now,
		CurrentMasteryStep: 1,
	}
}

// LastTurns returns up to n of the most recent turns, oldest first.
func (s *TutorSession) LastTurns(n int) []Turn {
	if n <= 0 || len(s.Turns) == 0 {
		return nil
	}
	if n > len(s.Turns) {
		n = len(s.Turns)
	}
	return s.Turns[len(s.Turns)-n:]
}

// Clone returns a deep copy.
func (s *TutorSession) Clone() *TutorSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		out.Turns[i] = t.clone()
	}
	out.StepProgress = CloneProgress(s.StepProgress)
	return &out
}

// CloneProgress copies a progress slice, preserving nil.
func CloneProgress(p []StepProgress) []StepProgress {
	if p == nil {
		return nil
	}
	return append([]StepProgress(nil), p...)
}

func (t Turn) clone() Turn {
	t.ConceptTags = append([]string(nil), t.ConceptTags...)
	t.MasteryGained = append([]string(nil), t.MasteryGained...)
	return t
}
