// Package mastery turns the concepts touched in a tutoring turn into step
// progress, a mastery score and a current-step pointer, and decides when a
// subtopic is complete.
package mastery

import (
	"errors"
	"fmt"
	"math"

	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
	"github.com/fpachisa/TutorAI-sub000/internal/session"
)

// IntentNewQuestion is the model intent for "the tutor asked a new question".
const IntentNewQuestion = "new_question"

// degradedStep is the score gained per concept when a session has no
// progression to account against.
const degradedStep = 0.1

// ErrProgressMismatch is returned when a session's persisted step progress
// does not line up with the progression it is being accounted against.
var ErrProgressMismatch = errors.New("step progress does not match progression")

// Event names an accounting event.
type Event string

const (
	EventStudentCompletion Event = "student-completion"
	EventTutorQuestion     Event = "tutor-question"
)

// StepTransition records a step that became completed during an event.
type StepTransition struct {
	StepNumber  int
	ConceptName string
	Trigger     Event
}

// Outcome reports what one accounting event changed.
type Outcome struct {
	Event Event

	// Touched lists the step numbers the concepts resolved to, in the
	// order the concepts were given. Duplicates are collapsed.
	Touched []int

	// Unmatched lists concepts that resolved to no step.
	Unmatched []string

	// Completed lists steps that transitioned to completed.
	Completed []StepTransition

	// Advanced is true when CurrentMasteryStep moved forward.
	Advanced bool

	// Degraded is true when the session had no progression and the score
	// was bumped without step semantics.
	Degraded bool
}

// CompletedConcepts returns the concept names of newly completed steps.
func (o Outcome) CompletedConcepts() []string {
	if len(o.Completed) == 0 {
		return nil
	}
	out := make([]string, len(o.Completed))
	for i, t := range o.Completed {
		out[i] = t.ConceptName
	}
	return out
}

// RecordStudentCompletion accounts for the student finishing the question
// that was in flight for concepts. Only a correct answer counts: each
// matched step gains one completed question, may transition to completed,
// and a fresh transition advances the current-step pointer to the next step
// unless it is already past it.
//
// s is modified in place.
func RecordStudentCompletion(s *session.TutorSession, progression []curriculum.MasteryStep, concepts []string, correct bool) (Outcome, error) {
	out := Outcome{Event: EventStudentCompletion}

	if len(progression) == 0 {
		if correct {
			applyDegraded(s, concepts, &out)
		}
		return out, nil
	}
	if err := EnsureProgress(s, progression); err != nil {
		return out, err
	}

	indexes := resolve(progression, concepts, &out)
	if !correct {
		return out, nil
	}

	for _, idx := range indexes {
		step := &s.StepProgress[idx]
		step.QuestionsCompleted++

		if step.Completed || step.QuestionsCompleted < progression[idx].RequiredQuestions {
			continue
		}
		step.Completed = true
		out.Completed = append(out.Completed, StepTransition{
			StepNumber:  step.StepNumber,
			ConceptName: step.ConceptName,
			Trigger:     EventStudentCompletion,
		})

		// 1-based: the step after idx is idx+2, clamped to the last step.
		next := min(idx+2, len(progression))
		if s.CurrentMasteryStep < next {
			s.CurrentMasteryStep = next
			out.Advanced = true
		}
	}

	s.MasteryScore = Score(s.StepProgress, progression)
	return out, nil
}

// RecordTutorQuestion accounts for the tutor's reply. When the tutor asked
// a new question, each matched step gains one asked question. Other intents
// only resolve the concepts.
//
// s is modified in place.
func RecordTutorQuestion(s *session.TutorSession, progression []curriculum.MasteryStep, concepts []string, intent string) (Outcome, error) {
	out := Outcome{Event: EventTutorQuestion}

	if len(progression) == 0 {
		return out, nil
	}
	if err := EnsureProgress(s, progression); err != nil {
		return out, err
	}

	indexes := resolve(progression, concepts, &out)
	if intent == IntentNewQuestion {
		for _, idx := range indexes {
			s.StepProgress[idx].QuestionsAsked++
		}
	}

	s.MasteryScore = Score(s.StepProgress, progression)
	return out, nil
}

// EnsureProgress lazily creates one zeroed StepProgress per step, or checks
// that existing progress lines up with progression step for step.
func EnsureProgress(s *session.TutorSession, progression []curriculum.MasteryStep) error {
	if len(s.StepProgress) == 0 {
		s.StepProgress = make([]session.StepProgress, len(progression))
		for i, step := range progression {
			s.StepProgress[i] = session.StepProgress{
				StepNumber:  step.StepNumber,
				ConceptName: step.ConceptName,
			}
		}
		return nil
	}

	if len(s.StepProgress) != len(progression) {
		return fmt.Errorf("%w: session has %d steps, progression has %d",
			ErrProgressMismatch, len(s.StepProgress), len(progression))
	}
	for i, step := range progression {
		if s.StepProgress[i].StepNumber != step.StepNumber {
			return fmt.Errorf("%w: position %d is step %d, want %d",
				ErrProgressMismatch, i+1, s.StepProgress[i].StepNumber, step.StepNumber)
		}
	}
	return nil
}

// Score is Σ min(completed, required) / Σ required, clamped to [0, 1].
// Each step's contribution is capped at its own requirement.
func Score(progress []session.StepProgress, progression []curriculum.MasteryStep) float64 {
	total := curriculum.TotalRequired(progression)
	if total <= 0 {
		return 0
	}

	done := 0
	for i, p := range progress {
		if i >= len(progression) {
			break
		}
		done += max(0, min(p.QuestionsCompleted, progression[i].RequiredQuestions))
	}
	return clamp01(float64(done) / float64(total))
}

// resolve maps concept names to step indexes, first match wins. Unmatched
// concepts and duplicate hits are recorded on out.
func resolve(progression []curriculum.MasteryStep, concepts []string, out *Outcome) []int {
	seen := make(map[int]bool, len(concepts))
	var indexes []int
	for _, c := range concepts {
		idx := curriculum.StepIndexByConcept(progression, c)
		if idx < 0 {
			out.Unmatched = append(out.Unmatched, c)
			continue
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		indexes = append(indexes, idx)
		out.Touched = append(out.Touched, progression[idx].StepNumber)
	}
	return indexes
}

func applyDegraded(s *session.TutorSession, concepts []string, out *Outcome) {
	out.Degraded = true
	if len(concepts) == 0 {
		return
	}
	s.MasteryScore = math.Min(1, clamp01(s.MasteryScore)+degradedStep*float64(len(concepts)))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
