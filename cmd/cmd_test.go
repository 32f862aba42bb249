package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tutor (devel)")
}

func TestCurriculumList(t *testing.T) {
	t.Setenv("TUTOR_LOG_LEVEL", "error")
	out, err := run(t, "", "curriculum", "list", "--memory=true")
	require.NoError(t, err)
	assert.Contains(t, out, "p6_math_fractions_dividing_fractions")
	assert.Contains(t, out, "Dividing Fractions")
}

func TestCurriculumValidate(t *testing.T) {
	dir := t.TempDir()
	doc := `version: v1.0.0
title: Angles
path: {grade: p5, subject: math, topic: geometry, subtopic: angles}
mastery_progression:
  - {step: 2, concept: angles on a line, required_questions: 1}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "angles.yaml"), []byte(doc), 0o600))

	_, err := run(t, "", "curriculum", "validate", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 1")
}

func TestSessionList_Empty(t *testing.T) {
	t.Setenv("TUTOR_LOG_LEVEL", "error")
	db := filepath.Join(t.TempDir(), "tutor.db")

	out, err := run(t, "", "session", "list", "nobody", "--memory=false", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found.")
}

func TestChat_FailedTurnDoesNotAbort(t *testing.T) {
	t.Setenv("TUTOR_LOG_LEVEL", "error")
	t.Setenv("TUTOR_LLM_PROVIDER", "mock")

	out, err := run(t, "", "chat", "p6_math_fractions_dividing_fractions", "--memory=true", "--session", "s-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Dividing Fractions")
	assert.Contains(t, out, "Something went wrong, please try again.")
	assert.Contains(t, out, "--session s-1")
}
