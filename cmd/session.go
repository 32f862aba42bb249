package cmd

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/fpachisa/TutorAI-sub000/internal/mastery"
	"github.com/fpachisa/TutorAI-sub000/internal/ui/components"
	"github.com/fpachisa/TutorAI-sub000/internal/ui/theme"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect stored tutoring sessions",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's mastery progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		s, err := d.sessions.Get(ctx, args[0])
		if err != nil {
			return err
		}
		content, err := d.content.Content(ctx, s.Path)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		status := "in progress"
		if s.Completed {
			status = "completed"
		}
		lipgloss.Fprintln(out, theme.Title.Render(content.Title))
		lipgloss.Fprintf(out, "%s %s   %s %d   %s %d   %s %s\n",
			theme.Label.Render("student"), s.UID,
			theme.Label.Render("turns"), len(s.Turns),
			theme.Label.Render("hint"), s.CurrentHintLevel,
			theme.Label.Render("status"), status)
		lipgloss.Fprintln(out, components.NewProgressBar("mastery", s.MasteryScore, true, chatWidth).View())
		lipgloss.Fprintln(out)
		lipgloss.Fprint(out, components.StepList(mastery.Summarize(s, content.Progression), chatWidth))

		if transcript, _ := cmd.Flags().GetBool("transcript"); transcript {
			lipgloss.Fprintln(out)
			for _, t := range s.Turns {
				if t.StudentMessage != "" {
					lipgloss.Fprintf(out, "%s %s\n", theme.Student.Render("student ›"), t.StudentMessage)
				}
				lipgloss.Fprintf(out, "%s %s %s\n", theme.Current.Render("tutor   ›"), t.TutorMessage,
					theme.Hint.Render(fmt.Sprintf("[%s, hint %d]", t.Intent, t.HintLevel)))
				if len(t.MasteryGained) > 0 {
					lipgloss.Fprintln(out, theme.Done.Render("  mastered: "+strings.Join(t.MasteryGained, ", ")))
				}
			}
		}
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list <uid>",
	Short: "List a student's sessions, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		if d.db == nil {
			return fmt.Errorf("listing sessions needs the SQLite store")
		}

		limit, _ := cmd.Flags().GetInt("limit")
		sessions, err := d.db.SessionRepo().ListByUser(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			lipgloss.Fprintln(out, "No sessions found.")
			return nil
		}

		lipgloss.Fprintf(out, "%-36s  %-40s  %7s  %4s  %-16s\n", "Session", "Topic", "Mastery", "Step", "Last activity")
		lipgloss.Fprintln(out, strings.Repeat("─", 111))
		for _, s := range sessions {
			topic := string(s.TopicKey)
			if s.Completed {
				topic += " ✓"
			}
			lipgloss.Fprintf(out, "%-36s  %-40s  %6.0f%%  %4d  %-16s\n",
				truncate(s.SessionID, 36), truncate(topic, 40), s.MasteryScore*100,
				s.CurrentMasteryStep, s.LastActivity.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	sessionShowCmd.Flags().Bool("transcript", false, "Print every turn")
	sessionListCmd.Flags().IntP("limit", "n", 20, "Number of sessions to show")

	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionListCmd)
}
