package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/api"
)

func newAskCmd() *cobra.Command {
	var mode string
	var limit int
	var currentFile string
	var stackTrace string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer a natural-language query with a token-budgeted context",
		Long: `ask runs the full retrieve -> classify -> compose pipeline (spec.md
§4) over the ingested project and prints the assembled context, plus
a one-line efficiency summary.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			query := args[0]
			for _, a := range args[1:] {
				query += " " + a
			}
			return runAsk(c.Context(), c.OutOrStdout(), query, mode, limit, currentFile, stackTrace, jsonOut)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "auto", "composer profile: light, auto, extra, or budget")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum candidates considered before composing")
	cmd.Flags().StringVar(&currentFile, "current-file", "", "path of the file the caller is currently viewing")
	cmd.Flags().StringVar(&stackTrace, "stack-trace", "", "a stack trace or error output driving this query")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the full Query API response as JSON")

	return cmd
}

func runAsk(ctx context.Context, w io.Writer, query, mode string, limit int, currentFile, stackTrace string, jsonOut bool) error {
	root := resolveProjectRoot()
	eng, _, err := loadEngine(root)
	if err != nil {
		return err
	}
	defer eng.Close()

	a := api.New(eng)
	resp, apiErr := a.Query(ctx, api.QueryRequest{
		Text: query, Mode: mode, Limit: limit,
		CurrentFilePath: currentFile, StackTrace: stackTrace,
	})
	if apiErr != nil {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}

	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if resp.Type == api.TypeEmpty {
		if resp.Message != "" {
			fmt.Fprintln(w, resp.Message)
		} else {
			fmt.Fprintln(w, "no matching context found")
		}
		return nil
	}

	fmt.Fprintln(w, resp.Context)
	if resp.EfficiencyReport != nil {
		fmt.Fprintf(w, "\n[%d tokens used, %.0f%% saved vs. full dump, ~$%.4f saved]\n",
			resp.Stats.UsedTokens, resp.EfficiencyReport.Efficiency*100, resp.EfficiencyReport.SavedUSD)
	}
	return nil
}
