package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_RegistersEverySubcommand(t *testing.T) {
	// Given: the root command
	root := NewRootCmd()

	// When/Then: every external-interface subcommand is findable
	for _, name := range []string{
		"serve", "ingest", "ask", "fetch", "jobs", "decisions",
		"watch", "status", "doctor", "config", "stats", "version",
	} {
		found, _, err := root.Find([]string{name})
		require.NoError(t, err, "subcommand %q should be registered", name)
		assert.Equal(t, name, found.Name())
	}
}

func TestResolveProjectRoot_FallsBackToCwdWithoutProjectMarkers(t *testing.T) {
	// Given: a directory with neither .git nor .mnemo.yaml
	dir := t.TempDir()
	t.Chdir(dir)

	// When: resolving the project root
	root := resolveProjectRoot()

	// Then: it falls back to the current directory
	assert.NotEmpty(t, root)
}
