package tutor

import (
	"fmt"
	"strings"

	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
	"github.com/fpachisa/TutorAI-sub000/internal/llm"
	"github.com/fpachisa/TutorAI-sub000/internal/mastery"
	"github.com/fpachisa/TutorAI-sub000/internal/session"
)

const turnSystemPrompt = `You are a patient Socratic math coach for primary school students.

Rules:
- Never give the final answer or a complete worked solution, even if asked directly.
- Ask one guiding question at a time and let the student do the thinking.
- Work through the mastery progression in order. Stay on the current step until it is complete.
- Match the hint level: 0 is a light nudge, 3 is a detailed step-by-step scaffold that still stops before the answer.
- If the student seems frustrated, acknowledge it briefly and make the next step smaller.
- Judge only the student's latest message in answer_assessment. Use none when it was not an answer to your question.
- In concept_tags use concept names exactly as written in the progression.
- Use plain ASCII text for all math. Use / for fractions and * for multiplication.`

// openedTopicMessage stands in for the empty student side of a start turn
// so replayed history always alternates user and assistant.
const openedTopicMessage = "(opened the topic)"

// turnInput is everything the prompt needs to know about one turn.
type turnInput struct {
	Session    *session.TutorSession
	Content    *curriculum.Content
	InFlight   []string
	HintLevel  int
	Frustrated bool
	Message    string
	Start      bool
}

// buildTurnRequest replays recent history as alternating messages and puts
// the tutoring context in front of the student's latest message.
func buildTurnRequest(in turnInput, cfg Config) llm.Request {
	history := in.Session.LastTurns(cfg.HistoryTurns)
	msgs := make([]llm.Message, 0, 2*len(history)+1)
	for _, t := range history {
		student := t.StudentMessage
		if student == "" {
			student = openedTopicMessage
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: student})
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: t.TutorMessage})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: buildTurnUserMessage(in)})

	return llm.Request{
		System:      turnSystemPrompt,
		Messages:    msgs,
		Schema:      TurnSchema,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}

func buildTurnUserMessage(in turnInput) string {
	var b strings.Builder
	c := in.Content
	s := in.Session

	fmt.Fprintf(&b, "Topic: %s (%s)\n", c.Title, s.Path)

	b.WriteString("\nMastery progression:\n")
	summary := mastery.Summarize(s, c.Progression)
	for i, step := range c.Progression {
		sum := summary[i]
		marker := " "
		switch {
		case sum.Done:
			marker = "x"
		case sum.Current:
			marker = ">"
		}
		fmt.Fprintf(&b, "[%s] Step %d: %s (%d/%d questions completed)\n",
			marker, step.StepNumber, step.ConceptName, min(sum.Completed, sum.Required), sum.Required)
		if sum.Current {
			if step.MasteryCriteria != "" {
				fmt.Fprintf(&b, "    Mastery criteria: %s\n", step.MasteryCriteria)
			}
			if step.SampleQuestion != "" {
				fmt.Fprintf(&b, "    Sample question: %s\n", step.SampleQuestion)
			}
		}
	}

	fmt.Fprintf(&b, "\nCurrent step: %d\n", s.CurrentMasteryStep)
	if len(in.InFlight) > 0 {
		fmt.Fprintf(&b, "Question in flight is about: %s\n", strings.Join(in.InFlight, ", "))
	} else {
		b.WriteString("Question in flight: none\n")
	}
	fmt.Fprintf(&b, "Hint level: %d of %d\n", in.HintLevel, session.MaxHintLevel)
	if in.Frustrated {
		b.WriteString("The student seems frustrated or disengaged.\n")
	}

	if in.Start {
		b.WriteString("\nThe student has just opened this topic. Greet them and ask the first question for the current step.\n")
		return b.String()
	}

	b.WriteString("\nStudent's latest message:\n")
	b.WriteString(in.Message)
	b.WriteString("\n")
	return b.String()
}
