package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/api"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print row counts, job stats, and health for this project",
		RunE: func(c *cobra.Command, args []string) error {
			root := resolveProjectRoot()
			eng, cfg, err := loadEngine(root)
			if err != nil {
				return err
			}
			defer eng.Close()

			w := c.OutOrStdout()
			fmt.Fprintf(w, "project root: %s\n", root)
			fmt.Fprintf(w, "data dir:     %s\n", cfg.Paths.DataDir)

			counts, err := eng.Meta.RowCounts(c.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "metadata store:")
			for table, n := range counts {
				fmt.Fprintf(w, "  %-10s %d\n", table, n)
			}

			fmt.Fprintf(w, "vector store: %d vectors\n", eng.Vectors.Count())

			jobStats, err := eng.Jobs.StatsSnapshot(c.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "jobs: total=%d success_rate=%.1f%% avg_latency=%.2fs\n",
				jobStats.Total, jobStats.SuccessRate, jobStats.AvgLatencySeconds)

			a := api.New(eng)
			health := a.HealthSnapshot()
			fmt.Fprintf(w, "health_score: %.1f (successes=%d failures=%d)\n",
				health.HealthScore, health.Successes, health.Failures)
			return nil
		},
	}
}
