package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	require.NotNil(t, root)
	assert.Equal(t, "meetbrief", root.Use)

	// Check subcommands exist.
	expected := []string{"worker", "submit", "status", "jobs", "edit", "retry", "delete", "version"}
	for _, name := range expected {
		found := false
		for _, sub := range root.Commands() {
			if strings.HasPrefix(sub.Use, name) {
				found = true
				break
			}
		}
		assert.True(t, found, "expected subcommand %q not found", name)
	}
}

func TestRootCommandPersistentFlags(t *testing.T) {
	root := NewRootCommand()

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestSubmitCommandFlags(t *testing.T) {
	cmd := newSubmitCmd()

	for _, name := range []string{"title", "mode", "language", "num-speakers", "skip-diarization", "json"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "expected flag %q", name)
	}
}

func TestRetryCommandFlags(t *testing.T) {
	cmd := newRetryCmd()

	assert.NotNil(t, cmd.Flags().Lookup("analysis-only"))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&out)

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, out.String(), "meetbrief")
	assert.Contains(t, out.String(), "dev")
}

func TestSubmitRequiresAudioRef(t *testing.T) {
	cmd := newSubmitCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	assert.Error(t, err)
}
