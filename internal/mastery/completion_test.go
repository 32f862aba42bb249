package mastery

import (
	"testing"

	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
	"github.com/fpachisa/TutorAI-sub000/internal/session"
)

func TestIsTopicComplete_RequiresAllSteps(t *testing.T) {
	prog := progression(1, 1)
	policy := curriculum.CompletionPolicy{RequiresAllSteps: true}
	s := newSession()

	if IsTopicComplete(s, policy) {
		t.Fatal("empty progress must never be complete")
	}

	if _, err := RecordStudentCompletion(s, prog, []string{"reciprocals"}, true); err != nil {
		t.Fatal(err)
	}
	if IsTopicComplete(s, policy) {
		t.Fatal("complete with step 2 unfinished")
	}

	if _, err := RecordStudentCompletion(s, prog, []string{"fraction by whole number"}, true); err != nil {
		t.Fatal(err)
	}
	if !IsTopicComplete(s, policy) {
		t.Fatal("expected complete once both steps are done")
	}
}

func TestIsTopicComplete_Threshold(t *testing.T) {
	threshold := 3
	policy := curriculum.CompletionPolicy{TotalQuestionsThreshold: &threshold}
	s := newSession()
	s.StepProgress = []session.StepProgress{
		{StepNumber: 1, QuestionsAsked: 1, QuestionsCompleted: 5},
		{StepNumber: 2, QuestionsAsked: 1},
	}

	if IsTopicComplete(s, policy) {
		t.Fatal("threshold counts asked questions, not completed ones")
	}
	s.StepProgress[1].QuestionsAsked = 2
	if !IsTopicComplete(s, policy) {
		t.Fatal("expected complete at threshold")
	}
}

func TestIsTopicComplete_Underspecified(t *testing.T) {
	s := newSession()
	s.StepProgress = []session.StepProgress{{StepNumber: 1, QuestionsAsked: 99, Completed: true}}
	if IsTopicComplete(s, curriculum.CompletionPolicy{}) {
		t.Fatal("a policy with no criteria never completes")
	}
}

func TestSummarize(t *testing.T) {
	prog := progression(2, 3)
	s := newSession()
	if _, err := RecordTutorQuestion(s, prog, []string{"reciprocals"}, IntentNewQuestion); err != nil {
		t.Fatal(err)
	}

	got := Summarize(s, prog)
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if !got[0].Current || got[0].Asked != 1 || got[0].Required != 2 {
		t.Errorf("step 1 = %+v", got[0])
	}
	if got[1].Current || got[1].Required != 3 {
		t.Errorf("step 2 = %+v", got[1])
	}

	if got := Summarize(newSession(), prog); got[0].Asked != 0 {
		t.Errorf("fresh session summary = %+v", got[0])
	}
}
