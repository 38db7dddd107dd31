package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/tui"
)

func newWatchCmd() *cobra.Command {
	var project string
	var name string
	var useTUI bool

	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Watch a directory and enqueue debounced ingest batches",
		Long: `watch observes path for file creates/modifies, debouncing changes
into ingest_batch jobs on mnemo's job queue (spec.md §4.12). It never
ingests inline; run alongside a worker ('mnemo serve' or the watcher's
own embedded worker here) for batches to actually process.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runWatch(c.Context(), c.OutOrStdout(), args[0], name, project, useTUI)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project name to tag ingested chunks with")
	cmd.Flags().StringVar(&name, "name", "default", "watcher instance name")
	cmd.Flags().BoolVar(&useTUI, "tui", isatty.IsTerminal(os.Stdout.Fd()), "show a live job-queue status view instead of plain log lines")

	return cmd
}

func runWatch(ctx context.Context, w io.Writer, path, name, project string, useTUI bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, _, err := loadEngine(resolveProjectRoot())
	if err != nil {
		return err
	}
	defer eng.Close()

	eng.StartWorker(ctx)
	defer eng.StopWorker()

	var program *tea.Program
	if useTUI {
		model := tui.NewWatchModel(ctx, eng.Jobs, path, project)
		program = tea.NewProgram(model)
		go func() {
			_, _ = program.Run()
			stop()
		}()
	} else {
		fmt.Fprintf(w, "watching %s (project=%q)\n", path, project)
	}

	// Watch blocks until ctx is cancelled or StopWatch is called.
	err = eng.Watch(ctx, name, path, project)
	eng.StopWatch(name)
	if program != nil {
		program.Quit()
	}
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
