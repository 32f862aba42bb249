package components

import (
	"fmt"
	"strings"

	"github.com/fpachisa/TutorAI-sub000/internal/mastery"
	"github.com/fpachisa/TutorAI-sub000/internal/tutor"
	"github.com/fpachisa/TutorAI-sub000/internal/ui/theme"
)

// StepList renders a mastery progression with per-step progress.
func StepList(steps []mastery.StepSummary, width int) string {
	var b strings.Builder
	for _, s := range steps {
		marker, style := "○", theme.Body
		switch {
		case s.Done:
			marker, style = "✓", theme.Done
		case s.Current:
			marker, style = "›", theme.Current
		}

		pct := 0.0
		if s.Required > 0 {
			pct = float64(min(s.Completed, s.Required)) / float64(s.Required)
		}
		label := fmt.Sprintf("%s %d. %s", marker, s.StepNumber, s.Concept)
		b.WriteString(style.Render(label))
		b.WriteString("\n   ")
		b.WriteString(NewProgressBar(fmt.Sprintf("%d/%d", min(s.Completed, s.Required), s.Required), pct, false, width-3).View())
		b.WriteString(theme.Label.Render(fmt.Sprintf("  asked %d", s.Asked)))
		b.WriteString("\n")
	}
	return b.String()
}

// TurnView renders one tutor reply with its status line.
func TurnView(resp *tutor.TurnResponse, width int) string {
	if !resp.Success {
		return theme.Failed.Render(resp.Error)
	}

	var b strings.Builder
	b.WriteString(theme.Tutor.Width(width).Render(resp.TutorMessage))
	b.WriteString("\n")

	status := fmt.Sprintf("turn %d · step %d · hint %d/3", resp.TurnNumber, resp.CurrentMasteryStep, resp.HintLevel)
	if len(resp.ConceptTags) > 0 {
		status += " · " + strings.Join(resp.ConceptTags, ", ")
	}
	b.WriteString(theme.Hint.Render(status))
	b.WriteString("\n")
	b.WriteString(NewProgressBar("mastery", resp.MasteryScore, true, width).View())
	b.WriteString("\n")

	if resp.StudentFrustrated {
		b.WriteString(theme.Warning.Render("Take a breath. We'll go one small step at a time."))
		b.WriteString("\n")
	}
	if resp.TopicCompleted {
		b.WriteString(theme.Done.Render("Topic complete! Great work."))
		b.WriteString("\n")
	}
	return b.String()
}
