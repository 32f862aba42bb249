package cmd

import (
	"fmt"
	"strconv"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"

	"github.com/fpachisa/TutorAI-sub000/internal/llm"
	"github.com/fpachisa/TutorAI-sub000/internal/store"
	"github.com/fpachisa/TutorAI-sub000/internal/ui/theme"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect the LLM request log",
}

// openEventLog opens the SQLite store that holds the request log.
func openEventLog(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dsn := cfg.Store.DSN
	if dsn == "" {
		if dsn, err = store.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	}
	s, err := store.OpenContext(cmd.Context(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.Border)).
		BorderColumn(false).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.Label.Bold(true).Padding(0, 1)
			}
			return theme.Body.Padding(0, 1)
		})
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent LLM requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		purpose, _ := cmd.Flags().GetString("purpose")
		since, _ := cmd.Flags().GetDuration("since")

		s, err := openEventLog(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		opts := store.QueryOpts{Limit: limit, Purpose: purpose}
		if since > 0 {
			opts.From = time.Now().Add(-since)
		}
		events, err := s.EventRepo().QueryLLMEvents(cmd.Context(), opts)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(events) == 0 {
			lipgloss.Fprintln(out, "No LLM requests recorded.")
			return nil
		}

		t := newTable("ID", "Time", "Purpose", "Model", "In", "Out", "Ms", "Cost", "OK")
		for _, e := range events {
			ok := theme.Done.Render("✓")
			if !e.Success {
				ok = theme.Failed.Render("✗")
			}
			cost := "?"
			if c, known := llm.EstimateCost(e.Model, llm.Usage{InputTokens: e.InputTokens, OutputTokens: e.OutputTokens}); known {
				cost = formatCost(c)
			}
			t.Row(
				strconv.Itoa(e.ID),
				e.Timestamp.Local().Format("01-02 15:04:05"),
				e.Purpose,
				truncate(e.Model, 28),
				strconv.Itoa(e.InputTokens),
				strconv.Itoa(e.OutputTokens),
				strconv.FormatInt(e.LatencyMs, 10),
				cost,
				ok,
			)
		}
		lipgloss.Fprintln(out, t.String())
		return nil
	},
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show the full request and response of one LLM call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", args[0], err)
		}

		s, err := openEventLog(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		e, err := s.EventRepo().GetLLMEvent(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		if e == nil {
			return fmt.Errorf("event %d not found", id)
		}

		out := cmd.OutOrStdout()
		field := func(name, value string) {
			lipgloss.Fprintf(out, "%s %s\n", theme.Label.Render(fmt.Sprintf("%-9s", name)), value)
		}
		field("Time", e.Timestamp.Local().Format(time.DateTime))
		field("Provider", e.Provider)
		field("Model", e.Model)
		field("Purpose", e.Purpose)
		field("Tokens", fmt.Sprintf("%d in / %d out", e.InputTokens, e.OutputTokens))
		field("Latency", fmt.Sprintf("%dms", e.LatencyMs))
		field("Success", strconv.FormatBool(e.Success))
		if e.ErrorMessage != "" {
			field("Error", theme.Failed.Render(e.ErrorMessage))
		}

		body := func(title, content string) {
			if content == "" {
				content = theme.Hint.Render("(not captured)")
			}
			lipgloss.Fprintf(out, "\n%s\n%s\n", theme.Title.Render(title), content)
		}
		body("Request", e.RequestBody)
		body("Response", e.ResponseBody)
		return nil
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show token usage by purpose and estimated cost by model",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openEventLog(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		byPurpose, err := s.EventRepo().LLMUsageByPurpose(ctx)
		if err != nil {
			return fmt.Errorf("query usage: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(byPurpose) == 0 {
			lipgloss.Fprintln(out, "No LLM usage recorded yet.")
			return nil
		}

		usage := newTable("Purpose", "Calls", "Input", "Output", "Avg ms")
		for _, u := range byPurpose {
			usage.Row(u.Purpose, strconv.Itoa(u.Calls), strconv.Itoa(u.InputTokens),
				strconv.Itoa(u.OutputTokens), strconv.FormatInt(u.AvgLatencyMs, 10))
		}
		lipgloss.Fprintln(out, theme.Title.Render("Usage by purpose"))
		lipgloss.Fprintln(out, usage.String())

		byModel, err := s.EventRepo().LLMUsageByModel(ctx)
		if err != nil {
			return fmt.Errorf("query model usage: %w", err)
		}
		costs := newTable("Model", "Calls", "Input", "Output", "Cost")
		var total float64
		partial := false
		for _, m := range byModel {
			cost := "?"
			if c, ok := llm.EstimateCost(m.Model, llm.Usage{InputTokens: m.InputTokens, OutputTokens: m.OutputTokens}); ok {
				total += c
				cost = formatCost(c)
			} else {
				partial = true
			}
			costs.Row(truncate(m.Model, 32), strconv.Itoa(m.Calls), strconv.Itoa(m.InputTokens),
				strconv.Itoa(m.OutputTokens), cost)
		}
		label := "Total"
		if partial {
			label = "Total (models without pricing excluded)"
		}
		costs.Row(label, "", "", "", formatCost(total))

		lipgloss.Fprintln(out, theme.Title.Render("Estimated cost (USD)"))
		lipgloss.Fprintln(out, costs.String())
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of requests to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Only show one purpose (e.g. tutor-turn)")
	llmListCmd.Flags().Duration("since", 0, "Only show requests newer than this (e.g. 24h)")

	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmViewCmd)
	llmCmd.AddCommand(llmStatsCmd)
}
