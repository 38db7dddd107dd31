package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var project string
	var priority int
	var wait bool

	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest a file or directory into mnemo's stores",
		Long: `ingest submits one ingest (single file) or ingest_batch (directory
scan) job to mnemo's job queue. Ingestion always runs on the worker's
goroutine, never inline on this command, so --wait is needed to block
until it finishes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runIngest(c.Context(), c.OutOrStdout(), args[0], project, priority, wait)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project name to tag ingested chunks and entities with")
	cmd.Flags().IntVar(&priority, "priority", 5, "job priority, 1 (lowest) to 10 (highest)")
	cmd.Flags().BoolVar(&wait, "wait", true, "block until the ingest job finishes")

	return cmd
}

func runIngest(ctx context.Context, w io.Writer, path, project string, priority int, wait bool) error {
	root := resolveProjectRoot()
	eng, _, err := loadEngine(root)
	if err != nil {
		return err
	}
	defer eng.Close()

	eng.StartWorker(ctx)
	defer eng.StopWorker()

	id, err := eng.IngestPath(ctx, path, project, priority)
	if err != nil {
		return fmt.Errorf("submit ingest: %w", err)
	}
	fmt.Fprintf(w, "submitted job %s\n", id)

	if !wait {
		return nil
	}
	return waitForJob(ctx, w, eng, id)
}
