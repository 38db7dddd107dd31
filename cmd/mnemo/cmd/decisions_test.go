package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionsRatifyCmd_UnknownIDFails(t *testing.T) {
	// Given: a project root with no decisions ingested
	dir := t.TempDir()
	t.Chdir(dir)

	cmd := newDecisionsRatifyCmd()
	cmd.SetArgs([]string{"nonexistent-id", "--valid-to", "2026-01-01"})
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)

	// When: ratifying an id that was never ingested
	err := cmd.Execute()

	// Then: it fails rather than silently no-oping
	assert.Error(t, err)
}

func TestDecisionsRatifyCmd_RejectsBadDate(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cmd := newDecisionsRatifyCmd()
	cmd.SetArgs([]string{"some-id", "--valid-from", "not-a-date"})
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)

	err := cmd.Execute()
	assert.Error(t, err)
}

func TestDecisionsCmd_HasRatifySubcommand(t *testing.T) {
	root := NewRootCmd()
	found, _, err := root.Find([]string{"decisions", "ratify"})
	require.NoError(t, err)
	assert.Equal(t, "ratify", found.Name())
}
