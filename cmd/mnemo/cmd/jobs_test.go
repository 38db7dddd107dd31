package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-dev/mnemo/internal/types"
)

func TestPrintJob_WritesIDTypeStatusProgress(t *testing.T) {
	// Given: a job with a result
	job := &types.Job{ID: "j1", Type: "ingest", Status: "completed", Progress: 100, Result: "ok"}

	// When: printing it
	buf := &bytes.Buffer{}
	printJob(buf, job)

	// Then: every field appears
	out := buf.String()
	assert.Contains(t, out, "j1")
	assert.Contains(t, out, "ingest")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "ok")
}

func TestJobsRecoverCmd_NoStuckJobsReportsZero(t *testing.T) {
	// Given: a project root with a fresh job queue
	dir := t.TempDir()
	t.Chdir(dir)

	cmd := newJobsRecoverCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)

	// When: running jobs recover with nothing stuck
	err := cmd.Execute()

	// Then: it reports zero recovered jobs, not an error
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "recovered 0 stuck job(s)")
}

func TestJobsCmd_HasRecoverSubcommand(t *testing.T) {
	root := NewRootCmd()
	found, _, err := root.Find([]string{"jobs", "recover"})
	require.NoError(t, err)
	assert.Equal(t, "recover", found.Name())
}

func TestJobsCleanupCmd_NoOldJobsReportsZero(t *testing.T) {
	// Given: a project root with a fresh job queue
	dir := t.TempDir()
	t.Chdir(dir)

	cmd := newJobsCleanupCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)

	// When: running jobs cleanup with nothing to delete
	err := cmd.Execute()

	// Then: it reports zero deleted jobs, not an error
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "deleted 0 job(s) older than 30 day(s)")
}

func TestJobsCmd_HasCleanupSubcommand(t *testing.T) {
	root := NewRootCmd()
	found, _, err := root.Find([]string{"jobs", "cleanup"})
	require.NoError(t, err)
	assert.Equal(t, "cleanup", found.Name())
}
