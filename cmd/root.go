package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "tutor",
	Short:         "Socratic math tutoring service",
	Long:          "tutor runs a Socratic math tutor that guides students through a curriculum's mastery steps one question at a time.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides TUTOR_DB env var)")
	rootCmd.PersistentFlags().Bool("memory", false, "Keep sessions in memory instead of SQLite")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(curriculumCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}
