package tutor

import (
	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
	"github.com/fpachisa/TutorAI-sub000/internal/mastery"
	"github.com/fpachisa/TutorAI-sub000/internal/session"
)

// RequestIntentStart opens a session. It is the only request intent that
// may carry an empty message.
const RequestIntentStart = "start"

// Intents the model may attach to a tutor reply.
const (
	IntentGreeting    = "greeting"
	IntentNewQuestion = mastery.IntentNewQuestion
	IntentGuide       = "guide"
	IntentHint        = "hint"
	IntentFeedback    = "feedback"
	IntentCelebrate   = "celebrate"
)

var modelIntents = []string{
	IntentGreeting, IntentNewQuestion, IntentGuide, IntentHint, IntentFeedback, IntentCelebrate,
}

// Assessment is the model's judgment of the student's latest answer.
type Assessment string

const (
	AssessmentCorrect   Assessment = "correct"
	AssessmentIncorrect Assessment = "incorrect"
	// AssessmentNone means the message was not an answer.
	AssessmentNone Assessment = "none"
)

// TurnRequest is one inbound student message. Path is canonical; TopicKey
// is accepted when Path is absent and decoded best-effort.
type TurnRequest struct {
	UID       string              `json:"uid"`
	SessionID string              `json:"session_id"`
	Path      *curriculum.Path    `json:"path,omitempty"`
	TopicKey  curriculum.TopicKey `json:"topic_key,omitempty"`
	Message   string              `json:"message"`
	Intent    string              `json:"intent,omitempty"`
}

// IsStart reports whether the request opens the session.
func (r TurnRequest) IsStart() bool {
	return r.Intent == RequestIntentStart
}

// TurnResponse is the result of one turn. On failure Success is false,
// Error carries the user-facing message, and the progress fields hold
// whatever was last persisted.
type TurnResponse struct {
	Success            bool                   `json:"success"`
	TutorMessage       string                 `json:"tutor_message,omitempty"`
	Intent             string                 `json:"intent,omitempty"`
	ConceptTags        []string               `json:"concept_tags"`
	HintLevel          int                    `json:"hint_level"`
	SessionID          string                 `json:"session_id"`
	TurnNumber         int                    `json:"turn_number,omitempty"`
	MasteryScore       float64                `json:"mastery_score"`
	CurrentMasteryStep int                    `json:"current_mastery_step"`
	StepProgress       []session.StepProgress `json:"step_progress"`
	StudentFrustrated  bool                   `json:"student_frustrated"`
	TopicCompleted     bool                   `json:"topic_completed"`
	Error              string                 `json:"error,omitempty"`
}

// modelTurn is the structured reply requested from the model.
type modelTurn struct {
	TutorMessage string     `json:"tutor_message"`
	Intent       string     `json:"intent"`
	ConceptTags  []string   `json:"concept_tags"`
	Assessment   Assessment `json:"answer_assessment"`
}
