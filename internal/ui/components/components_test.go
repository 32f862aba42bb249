package components

import (
	"strings"
	"testing"

	"charm.land/lipgloss/v2"

	"github.com/fpachisa/TutorAI-sub000/internal/mastery"
	"github.com/fpachisa/TutorAI-sub000/internal/tutor"
)

func TestProgressBar_Width(t *testing.T) {
	for _, pct := range []float64{-1, 0, 0.5, 1, 2} {
		view := NewProgressBar("", pct, false, 20).View()
		if got := lipgloss.Width(view); got != 20 {
			t.Errorf("pct %v: width %d, want 20", pct, got)
		}
	}

	half := NewProgressBar("", 0.5, false, 10).View()
	if strings.Count(half, "█") != 5 {
		t.Errorf("half bar = %q", half)
	}
	if !strings.Contains(NewProgressBar("x", 0.6, true, 30).View(), "60%") {
		t.Error("percent label missing")
	}
}

func TestStepList(t *testing.T) {
	out := StepList([]mastery.StepSummary{
		{StepNumber: 1, Concept: "reciprocals", Completed: 3, Required: 2, Asked: 3, Done: true},
		{StepNumber: 2, Concept: "fraction by whole number", Required: 3, Asked: 1, Current: true},
	}, 40)

	for _, want := range []string{"✓ 1. reciprocals", "› 2. fraction by whole number", "2/2", "0/3", "asked 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
}

func TestTurnView(t *testing.T) {
	out := TurnView(&tutor.TurnResponse{
		Success:            true,
		TutorMessage:       "What is 3/4 divided by 2?",
		ConceptTags:        []string{"fraction by whole number"},
		TurnNumber:         4,
		CurrentMasteryStep: 2,
		HintLevel:          1,
		MasteryScore:       0.4,
		TopicCompleted:     true,
	}, 50)

	for _, want := range []string{"3/4 divided by 2", "turn 4", "step 2", "hint 1/3", "40%", "Topic complete"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}

	failed := TurnView(&tutor.TurnResponse{Error: tutor.UserMessage}, 50)
	if !strings.Contains(failed, tutor.UserMessage) {
		t.Errorf("failure view = %q", failed)
	}
}
