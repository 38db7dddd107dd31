// Package tui provides a minimal bubbletea view for `mnemo watch`: a
// live job-queue status line, refreshed on a tick. It deliberately
// stops at that — no progress bars, sparklines, or multi-panel layout
// — since watch has no bounded total to show progress against, only
// a running queue.
//
// Grounded on the teacher's internal/ui/tui.go spinner+lipgloss idiom
// and internal/ui/styles.go's palette, generalized from indexing
// progress to a live counts display.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mnemo-dev/mnemo/internal/jobqueue"
)

const (
	colorLime = "154"
	colorGray = "245"
	colorRed  = "196"
	colorDark = "238"
)

type styles struct {
	header lipgloss.Style
	label  lipgloss.Style
	value  lipgloss.Style
	errs   lipgloss.Style
	dim    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorLime)),
		label:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		value:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorLime)),
		errs:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorDark)),
	}
}

// StatsSource is the subset of *jobqueue.Queue the watch model polls.
type StatsSource interface {
	StatsSnapshot(ctx context.Context) (jobqueue.Stats, error)
}

type tickMsg time.Time
type statsMsg jobqueue.Stats
type errMsg struct{ err error }

// WatchModel renders a watched path's job-queue counts, refreshed
// once per second until the user quits or the context is cancelled.
type WatchModel struct {
	ctx     context.Context
	jobs    StatsSource
	path    string
	project string

	spinner spinner.Model
	styles  styles
	stats   jobqueue.Stats
	err     error
	quit    bool
}

// NewWatchModel builds a watch status model polling jobs for path.
func NewWatchModel(ctx context.Context, jobs StatsSource, path, project string) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(colorLime))
	return WatchModel{ctx: ctx, jobs: jobs, path: path, project: project, spinner: s, styles: defaultStyles()}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd(), fetchStatsCmd(m.ctx, m.jobs))
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetchStatsCmd(ctx context.Context, jobs StatsSource) tea.Cmd {
	return func() tea.Msg {
		stats, err := jobs.StatsSnapshot(ctx)
		if err != nil {
			return errMsg{err}
		}
		return statsMsg(stats)
	}
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quit = true
			return m, tea.Quit
		}
	case tickMsg:
		if m.ctx.Err() != nil {
			m.quit = true
			return m, tea.Quit
		}
		return m, tea.Batch(tickCmd(), fetchStatsCmd(m.ctx, m.jobs))
	case statsMsg:
		m.stats = jobqueue.Stats(msg)
		return m, nil
	case errMsg:
		m.err = msg.err
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m WatchModel) View() string {
	if m.quit {
		return "stopped watching.\n"
	}

	title := fmt.Sprintf("%s watching %s", m.spinner.View(), m.path)
	if m.project != "" {
		title += fmt.Sprintf(" (project=%s)", m.project)
	}

	lines := []string{m.styles.header.Render(title)}
	if m.err != nil {
		lines = append(lines, m.styles.errs.Render("stats unavailable: "+m.err.Error()))
	} else {
		lines = append(lines, fmt.Sprintf("%s %s  %s %s  %s %s",
			m.styles.label.Render("pending"), m.styles.value.Render(fmt.Sprint(m.stats.CountsByStatus["pending"])),
			m.styles.label.Render("running"), m.styles.value.Render(fmt.Sprint(m.stats.CountsByStatus["running"])),
			m.styles.label.Render("completed"), m.styles.value.Render(fmt.Sprint(m.stats.CountsByStatus["completed"])),
		))
		if failed := m.stats.CountsByStatus["failed"]; failed > 0 {
			lines = append(lines, m.styles.errs.Render(fmt.Sprintf("failed %d", failed)))
		}
	}
	lines = append(lines, m.styles.dim.Render("q to stop watching"))
	return strings.Join(lines, "\n") + "\n"
}
