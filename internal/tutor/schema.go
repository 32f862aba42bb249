package tutor

import "github.com/fpachisa/TutorAI-sub000/internal/llm"

// TurnSchema defines the JSON schema for a tutor reply.
var TurnSchema = &llm.Schema{
	Name:        "tutor-turn",
	Description: "One Socratic tutoring reply with the tutor's judgment of the student's last answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tutor_message": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "What the tutor says to the student. Never states the final answer.",
			},
			"intent": map[string]any{
				"type":        "string",
				"enum":        toAny(modelIntents),
				"description": "new_question when the message poses a fresh question for the student",
			},
			"concept_tags": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"maxItems":    4,
				"description": "Progression concept names this message is about, copied exactly",
			},
			"answer_assessment": map[string]any{
				"type":        "string",
				"enum":        []any{string(AssessmentCorrect), string(AssessmentIncorrect), string(AssessmentNone)},
				"description": "Judgment of the student's latest message; none if it was not an answer",
			},
		},
		"required":             []any{"tutor_message", "intent", "concept_tags", "answer_assessment"},
		"additionalProperties": false,
	},
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
