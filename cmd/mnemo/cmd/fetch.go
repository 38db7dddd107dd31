package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/api"
)

func newFetchCmd() *cobra.Command {
	var start, end int
	var contentHash string

	cmd := &cobra.Command{
		Use:   "fetch <path>",
		Short: "Fetch the authoritative content for a file and line range",
		Long: `fetch serves spec.md §6's Exact-fetch API locally: validate the
path and range, take a read lock, and print the requested lines. Use
it to dereference a Pointer returned by 'mnemo ask'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runFetch(c.Context(), c.OutOrStdout(), args[0], start, end, contentHash)
		},
	}

	cmd.Flags().IntVar(&start, "start", 1, "1-based inclusive start line")
	cmd.Flags().IntVar(&end, "end", 1, "1-based inclusive end line")
	cmd.Flags().StringVar(&contentHash, "content-hash", "", "expected content hash; mismatch prints a stale-pointer warning")

	return cmd
}

func runFetch(ctx context.Context, w io.Writer, path string, start, end int, contentHash string) error {
	root := resolveProjectRoot()
	eng, _, err := loadEngine(root)
	if err != nil {
		return err
	}
	defer eng.Close()

	a := api.New(eng)
	resp, apiErr := a.FetchExact(ctx, api.FetchRequest{
		FilePath: path, StartLine: start, EndLine: end, ContentHash: contentHash,
	})
	if apiErr != nil {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}

	if resp.Warning != "" {
		fmt.Fprintf(w, "warning: %s\n", resp.Warning)
	}
	fmt.Fprintln(w, resp.Content)
	return nil
}
