package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunServe_UnknownTransportErrors(t *testing.T) {
	// Given: a project root
	dir := t.TempDir()
	t.Chdir(dir)

	// When: serving with an unsupported transport
	err := runServe(context.Background(), dir, "carrier-pigeon", "127.0.0.1:8420")

	// Then: it fails before starting anything
	assert.Error(t, err)
}

func TestServeCmd_AddedToRoot(t *testing.T) {
	root := NewRootCmd()
	found, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", found.Name())
}
