package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-dev/mnemo/internal/jobqueue"
)

type fakeStatsSource struct {
	stats jobqueue.Stats
	err   error
}

func (f fakeStatsSource) StatsSnapshot(ctx context.Context) (jobqueue.Stats, error) {
	return f.stats, f.err
}

func TestWatchModel_InitialView(t *testing.T) {
	// Given: a fresh model
	model := NewWatchModel(context.Background(), fakeStatsSource{}, "/tmp/project", "demo")

	// When: rendering before any stats arrive
	view := model.View()

	// Then: it shows the watched path and project tag
	assert.Contains(t, view, "/tmp/project")
	assert.Contains(t, view, "project=demo")
	assert.Contains(t, view, "q to stop watching")
}

func TestWatchModel_StatsMsgUpdatesCounts(t *testing.T) {
	// Given: a model and a statsMsg carrying queue counts
	model := NewWatchModel(context.Background(), fakeStatsSource{}, "/tmp/project", "")
	stats := jobqueue.Stats{CountsByStatus: map[string]int{"pending": 2, "running": 1, "completed": 5, "failed": 1}}

	// When: applying the message
	updated, cmd := model.Update(statsMsg(stats))

	// Then: the view reflects the new counts, including the failed line
	require.Nil(t, cmd)
	view := updated.(WatchModel).View()
	assert.Contains(t, view, "pending")
	assert.Contains(t, view, "failed 1")
}

func TestWatchModel_ErrMsgSurfacesError(t *testing.T) {
	// Given: a model
	model := NewWatchModel(context.Background(), fakeStatsSource{}, "/tmp/project", "")

	// When: a stats fetch fails
	updated, _ := model.Update(errMsg{errors.New("db closed")})

	// Then: the error is rendered instead of counts
	view := updated.(WatchModel).View()
	assert.Contains(t, view, "stats unavailable")
	assert.Contains(t, view, "db closed")
}

func TestWatchModel_QuitOnKey(t *testing.T) {
	// Given: a model
	model := NewWatchModel(context.Background(), fakeStatsSource{}, "/tmp/project", "")

	// When: the user presses q
	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	// Then: it requests quit and the view reports stopped
	require.NotNil(t, cmd)
	assert.Contains(t, updated.(WatchModel).View(), "stopped watching")
}

func TestWatchModel_TickStopsWhenContextCancelled(t *testing.T) {
	// Given: a model whose context is already cancelled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := NewWatchModel(ctx, fakeStatsSource{}, "/tmp/project", "")

	// When: a tick arrives
	updated, cmd := model.Update(tickMsg(time.Time{}))

	// Then: it quits rather than scheduling another tick
	require.NotNil(t, cmd)
	assert.Contains(t, updated.(WatchModel).View(), "stopped watching")
}
