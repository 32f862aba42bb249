package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
)

var curriculumCmd = &cobra.Command{
	Use:   "curriculum",
	Short: "Inspect and validate curriculum content",
}

var curriculumListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the subtopics the tutor can teach",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fsys := curriculum.Builtin()
		if cfg.Curriculum != "" {
			fsys = os.DirFS(cfg.Curriculum)
		}
		st, err := curriculum.NewFileStore(fsys)
		if err != nil {
			return err
		}
		all, err := st.List(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-44s  %-8s  %5s  %s\n", "Key", "Version", "Steps", "Title")
		for _, c := range all {
			fmt.Fprintf(out, "%-44s  %-8s  %5d  %s\n", c.Key(), c.Version, len(c.Progression), c.Title)
		}
		return nil
	},
}

var curriculumValidateCmd = &cobra.Command{
	Use:   "validate <dir>",
	Short: "Validate every content document in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := curriculum.NewFileStore(os.DirFS(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d subtopics OK\n", st.Len())
		return nil
	},
}

func init() {
	curriculumCmd.AddCommand(curriculumListCmd)
	curriculumCmd.AddCommand(curriculumValidateCmd)
}
