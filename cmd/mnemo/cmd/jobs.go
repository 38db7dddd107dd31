package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/engine"
	"github.com/mnemo-dev/mnemo/internal/types"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage mnemo's job queue",
	}
	cmd.AddCommand(newJobsGetCmd())
	cmd.AddCommand(newJobsCancelCmd())
	cmd.AddCommand(newJobsStatsCmd())
	cmd.AddCommand(newJobsRecoverCmd())
	cmd.AddCommand(newJobsCleanupCmd())
	return cmd
}

func newJobsCleanupCmd() *cobra.Command {
	var days int
	c := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete terminal jobs older than --days (spec.md §4.11 cleanup_old)",
		RunE: func(c *cobra.Command, args []string) error {
			eng, _, err := loadEngine(resolveProjectRoot())
			if err != nil {
				return err
			}
			defer eng.Close()
			n, err := eng.Jobs.CleanupOld(c.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "deleted %d job(s) older than %d day(s)\n", n, days)
			return nil
		},
	}
	c.Flags().IntVar(&days, "days", 30, "delete completed/failed/cancelled jobs older than this many days")
	return c
}

func newJobsRecoverCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Reset jobs stuck in 'running' back to 'pending'",
		Long: `recover guards against a crashed worker leaving jobs wedged in
'running' forever: any running job started more than --max-age ago is
reset to 'pending' so the next worker poll picks it back up. The
engine already runs this once at startup; this command exposes it for
manual use.`,
		RunE: func(c *cobra.Command, args []string) error {
			eng, _, err := loadEngine(resolveProjectRoot())
			if err != nil {
				return err
			}
			defer eng.Close()
			n, err := eng.Jobs.RecoverStuck(c.Context(), maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "recovered %d stuck job(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 30*time.Minute, "only reset running jobs started more than this long ago; 0 resets all")
	return cmd
}

func newJobsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one job's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			eng, _, err := loadEngine(resolveProjectRoot())
			if err != nil {
				return err
			}
			defer eng.Close()
			job, err := eng.Jobs.Get(c.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(c.OutOrStdout(), job)
			return nil
		},
	}
}

func newJobsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			eng, _, err := loadEngine(resolveProjectRoot())
			if err != nil {
				return err
			}
			defer eng.Close()
			ok, err := eng.Jobs.Cancel(c.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("job %s is not pending or running", args[0])
			}
			fmt.Fprintf(c.OutOrStdout(), "cancelled %s\n", args[0])
			return nil
		},
	}
}

func newJobsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the job queue's aggregate statistics",
		RunE: func(c *cobra.Command, args []string) error {
			eng, _, err := loadEngine(resolveProjectRoot())
			if err != nil {
				return err
			}
			defer eng.Close()
			stats, err := eng.Jobs.StatsSnapshot(c.Context())
			if err != nil {
				return err
			}
			w := c.OutOrStdout()
			fmt.Fprintf(w, "total: %d  success_rate: %.1f%%  avg_latency: %.2fs\n",
				stats.Total, stats.SuccessRate, stats.AvgLatencySeconds)
			for status, n := range stats.CountsByStatus {
				fmt.Fprintf(w, "  %-10s %d\n", status, n)
			}
			return nil
		},
	}
}

func printJob(w io.Writer, job *types.Job) {
	fmt.Fprintf(w, "id:       %s\n", job.ID)
	fmt.Fprintf(w, "type:     %s\n", job.Type)
	fmt.Fprintf(w, "status:   %s\n", job.Status)
	fmt.Fprintf(w, "progress: %d%%\n", job.Progress)
	if job.Result != "" {
		fmt.Fprintf(w, "result:   %s\n", job.Result)
	}
	if job.Error != "" {
		fmt.Fprintf(w, "error:    %s\n", job.Error)
	}
}

// waitForJob polls a job's status every 250ms until it reaches a
// terminal state, printing its progress as it changes. Used by `mnemo
// ingest --wait`.
func waitForJob(ctx context.Context, w io.Writer, eng *engine.Engine, id string) error {
	lastProgress := -1
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := eng.Jobs.Get(ctx, id)
		if err != nil {
			return err
		}
		if job.Progress != lastProgress {
			fmt.Fprintf(w, "  %d%%\n", job.Progress)
			lastProgress = job.Progress
		}
		switch job.Status {
		case types.JobCompleted:
			fmt.Fprintf(w, "done: %s\n", job.Result)
			return nil
		case types.JobFailed:
			return fmt.Errorf("job failed: %s", job.Error)
		case types.JobCancelled:
			return fmt.Errorf("job was cancelled")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
