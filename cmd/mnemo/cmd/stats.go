package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/composer"
	"github.com/mnemo-dev/mnemo/internal/config"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Report mnemo's accumulated savings and usage statistics",
	}
	cmd.AddCommand(newStatsSavingsCmd())
	return cmd
}

func newStatsSavingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "savings",
		Short: "Print the cumulative token and cost savings from every 'ask' query",
		Long: `savings replays the savings ledger (every Composer efficiency
report, persisted as a compose_savings archive event) and prints the
running totals: queries answered, tokens saved versus a full context
dump, and the estimated USD saved at the configured price table.`,
		RunE: func(c *cobra.Command, args []string) error {
			root := resolveProjectRoot()
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			dataDir := cfg.Paths.DataDir
			if !filepath.IsAbs(dataDir) {
				dataDir = filepath.Join(root, dataDir)
			}

			sum, err := composer.Summarize(filepath.Join(dataDir, "archive.jsonl"))
			if err != nil {
				return err
			}

			w := c.OutOrStdout()
			fmt.Fprintf(w, "queries:           %d\n", sum.Queries)
			fmt.Fprintf(w, "potential tokens:  %d\n", sum.PotentialTokens)
			fmt.Fprintf(w, "delivered tokens:  %d\n", sum.CurrentTokens)
			fmt.Fprintf(w, "saved tokens:      %d\n", sum.SavedTokens)
			fmt.Fprintf(w, "saved USD:         $%.4f\n", sum.SavedUSD)
			return nil
		},
	}
}
