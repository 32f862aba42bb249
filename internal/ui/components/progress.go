package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/fpachisa/TutorAI-sub000/internal/ui/theme"
)

// ProgressBar renders a horizontal bar for a fraction in [0, 1].
type ProgressBar struct {
	Label       string
	Percent     float64
	ShowPercent bool
	Width       int
}

func NewProgressBar(label string, percent float64, showPercent bool, width int) ProgressBar {
	return ProgressBar{
		Label:       label,
		Percent:     percent,
		ShowPercent: showPercent,
		Width:       width,
	}
}

func (p ProgressBar) View() string {
	var b strings.Builder

	if p.Label != "" {
		b.WriteString(theme.Body.Render(p.Label))
		b.WriteString("  ")
	}

	percentWidth := 0
	if p.ShowPercent {
		percentWidth = 6
	}
	barWidth := max(4, p.Width-lipgloss.Width(b.String())-percentWidth)

	pct := max(0, min(1, p.Percent))
	filled := int(float64(barWidth) * pct)

	b.WriteString(theme.ProgressFilled.Render(strings.Repeat("█", filled)))
	b.WriteString(theme.ProgressEmpty.Render(strings.Repeat("░", barWidth-filled)))

	if p.ShowPercent {
		b.WriteString(theme.Label.Render(fmt.Sprintf("  %d%%", int(pct*100))))
	}
	return b.String()
}
