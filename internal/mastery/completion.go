package mastery

import (
	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
	"github.com/fpachisa/TutorAI-sub000/internal/session"
)

// IsTopicComplete evaluates the completion policy against the session's
// step progress. A policy with neither criterion set never completes.
func IsTopicComplete(s *session.TutorSession, policy curriculum.CompletionPolicy) bool {
	switch {
	case policy.RequiresAllSteps:
		if len(s.StepProgress) == 0 {
			return false
		}
		for _, p := range s.StepProgress {
			if !p.Completed {
				return false
			}
		}
		return true

	case policy.TotalQuestionsThreshold != nil:
		return TotalAsked(s.StepProgress) >= *policy.TotalQuestionsThreshold

	default:
		return false
	}
}

// TotalAsked sums QuestionsAsked across steps.
func TotalAsked(progress []session.StepProgress) int {
	total := 0
	for _, p := range progress {
		total += p.QuestionsAsked
	}
	return total
}

// StepSummary is a display-friendly view of one step's progress.
type StepSummary struct {
	StepNumber int    `json:"step"`
	Concept    string `json:"concept"`
	Completed  int    `json:"questions_completed"`
	Required   int    `json:"required_questions"`
	Asked      int    `json:"questions_asked"`
	Done       bool   `json:"completed"`
	Current    bool   `json:"current"`
}

// Summarize pairs each step of progression with the session's progress.
// Steps without progress yet are reported as zero.
func Summarize(s *session.TutorSession, progression []curriculum.MasteryStep) []StepSummary {
	out := make([]StepSummary, len(progression))
	for i, step := range progression {
		sum := StepSummary{
			StepNumber: step.StepNumber,
			Concept:    step.ConceptName,
			Required:   step.RequiredQuestions,
			Current:    step.StepNumber == s.CurrentMasteryStep,
		}
		if i < len(s.StepProgress) && s.StepProgress[i].StepNumber == step.StepNumber {
			p := s.StepProgress[i]
			sum.Completed = p.QuestionsCompleted
			sum.Asked = p.QuestionsAsked
			sum.Done = p.Completed
		}
		out[i] = sum
	}
	return out
}
