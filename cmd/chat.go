package cmd

import (
	"bufio"
	"io"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
	"github.com/fpachisa/TutorAI-sub000/internal/tutor"
	"github.com/fpachisa/TutorAI-sub000/internal/ui/components"
	"github.com/fpachisa/TutorAI-sub000/internal/ui/theme"
)

const chatWidth = 72

var chatCmd = &cobra.Command{
	Use:   "chat <topic-key>",
	Short: "Work through a subtopic with the tutor in the terminal",
	Long: "Start (or resume with --session) a tutoring session for a subtopic key such as\n" +
		"p6_math_fractions_dividing_fractions. Type your answers; an empty line or 'quit' exits.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		svc, err := d.tutorService(ctx)
		if err != nil {
			return err
		}

		uid, _ := cmd.Flags().GetString("uid")
		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		key := curriculum.TopicKey(args[0])
		out := cmd.OutOrStdout()

		content, err := d.content.Content(ctx, curriculum.KeyToPath(key))
		if err != nil {
			return err
		}
		lipgloss.Fprintln(out, theme.Title.Render(content.Title))
		lipgloss.Fprintln(out, theme.Label.Render("session "+sessionID))
		lipgloss.Fprintln(out)

		req := tutor.TurnRequest{UID: uid, SessionID: sessionID, TopicKey: key, Intent: tutor.RequestIntentStart}
		in := bufio.NewScanner(cmd.InOrStdin())
		for {
			resp, err := svc.ProcessTurn(ctx, req)
			lipgloss.Fprintln(out, components.TurnView(resp, chatWidth))
			if err != nil {
				d.log.Debug("turn failed", "error", err)
			}
			if resp.TopicCompleted && err == nil && !req.IsStart() {
				lipgloss.Fprintln(out, theme.Hint.Render("Keep practising, or type 'quit' to leave."))
			}

			msg, ok := prompt(in, out)
			if !ok {
				lipgloss.Fprintln(out, theme.Hint.Render("Resume later with --session "+sessionID))
				return nil
			}
			req = tutor.TurnRequest{UID: uid, SessionID: sessionID, TopicKey: key, Message: msg}
		}
	},
}

// prompt reads the student's next line. It reports false on EOF, an empty
// line, or "quit".
func prompt(in *bufio.Scanner, out io.Writer) (string, bool) {
	lipgloss.Fprint(out, theme.Student.Render("you › "))
	if !in.Scan() {
		return "", false
	}
	msg := strings.TrimSpace(in.Text())
	if msg == "" || strings.EqualFold(msg, "quit") || strings.EqualFold(msg, "exit") {
		return "", false
	}
	return msg, true
}

func init() {
	chatCmd.Flags().String("uid", "cli", "Student id that owns the session")
	chatCmd.Flags().String("session", "", "Resume an existing session id")
}
