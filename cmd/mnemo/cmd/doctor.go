package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/config"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose mnemo's configuration and data directory",
		Long: `doctor checks that the project's config loads, its data
directory is writable, and its persisted stores (spec.md §6) are
present and readable. It creates the data directory if it is missing,
writes and removes a probe file there, and opens the stores to compare
their row counts.`,
		RunE: func(c *cobra.Command, args []string) error {
			return runDoctor(c.OutOrStdout())
		},
	}
	cmd.AddCommand(newDoctorRebuildCmd())
	return cmd
}

func newDoctorRebuildCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Wipe the Metadata and Vector stores and replay archive.jsonl",
		Long: `rebuild is mnemo's disaster-recovery path (spec.md §8 invariant
8): it wipes the Metadata and Vector stores, then replays
archive.jsonl, re-ingesting every recorded file from disk and
reapplying every decision-supersede mutation. The source files
referenced by the archive must still be on disk. Requires --yes.`,
		RunE: func(c *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("this wipes the metadata and vector stores; rerun with --yes to confirm")
			}
			eng, _, err := loadEngine(resolveProjectRoot())
			if err != nil {
				return err
			}
			defer eng.Close()

			n, err := eng.RebuildFromArchive(c.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "replayed %d archive event(s)\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the destructive wipe-and-replay")
	return cmd
}

func runDoctor(w io.Writer) error {
	root := resolveProjectRoot()
	fmt.Fprintf(w, "project root: %s\n", root)

	cfg, err := config.Load(root)
	if err != nil {
		fmt.Fprintf(w, "[FAIL] config: %v\n", err)
		return err
	}
	fmt.Fprintln(w, "[ OK ] config loaded")

	dataDir := cfg.Paths.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(root, dataDir)
	}
	fmt.Fprintf(w, "data dir: %s\n", dataDir)

	checkPath := func(label, path string, required bool) {
		if _, err := os.Stat(path); err != nil {
			if required {
				fmt.Fprintf(w, "[WARN] %s missing: %s (run 'mnemo ingest' first)\n", label, path)
			} else {
				fmt.Fprintf(w, "[ OK ] %s not yet created: %s\n", label, path)
			}
			return
		}
		fmt.Fprintf(w, "[ OK ] %s present: %s\n", label, path)
	}

	checkPath("metadata store", filepath.Join(dataDir, "metadata.db"), false)
	checkPath("vector store", filepath.Join(dataDir, "store"), false)
	checkPath("archive log", filepath.Join(dataDir, "archive.jsonl"), false)
	checkPath("job queue", filepath.Join(dataDir, "jobs.db"), false)

	probe := filepath.Join(dataDir, ".doctor-write-probe")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		fmt.Fprintf(w, "[FAIL] data dir not writable: %v\n", err)
		return err
	}
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		fmt.Fprintf(w, "[FAIL] data dir not writable: %v\n", err)
		return err
	}
	_ = os.Remove(probe)
	fmt.Fprintln(w, "[ OK ] data dir writable")

	switch cfg.Stemmer.DefaultMode {
	case "aggressive", "conservative":
		fmt.Fprintf(w, "[ OK ] stemmer mode: %s\n", cfg.Stemmer.DefaultMode)
	default:
		fmt.Fprintf(w, "[FAIL] stemmer mode invalid: %s\n", cfg.Stemmer.DefaultMode)
	}

	if len(cfg.Paths.AllowedRoots) > 0 {
		fmt.Fprintf(w, "[ OK ] allowed roots: %v\n", cfg.Paths.AllowedRoots)
	} else {
		fmt.Fprintln(w, "[ OK ] allowed roots: project root only")
	}

	checkStoreConsistency(w, root)

	return nil
}

// checkStoreConsistency compares the Vector store's live chunk count
// against the Metadata store's FTS-chunk-plus-entity row count
// (spec.md §8 invariant 1: the two stores must stay in lockstep).
// Failure here is diagnostic only; it never blocks doctor's exit.
func checkStoreConsistency(w io.Writer, root string) {
	eng, _, err := loadEngine(root)
	if err != nil {
		fmt.Fprintf(w, "[WARN] store consistency: could not open engine: %v\n", err)
		return
	}
	defer eng.Close()

	counts, err := eng.Meta.RowCounts(context.Background())
	if err != nil {
		fmt.Fprintf(w, "[WARN] store consistency: %v\n", err)
		return
	}
	wantVectors := counts["knowledge_fts"] + counts["entities"]
	gotVectors := len(eng.Vectors.AllIDs())
	if gotVectors == wantVectors {
		fmt.Fprintf(w, "[ OK ] store consistency: %d vector chunk(s) match %d fts+entity row(s)\n", gotVectors, wantVectors)
	} else {
		fmt.Fprintf(w, "[WARN] store consistency: %d vector chunk(s), expected %d (fts=%d, entities=%d); consider 'mnemo doctor rebuild'\n",
			gotVectors, wantVectors, counts["knowledge_fts"], counts["entities"])
	}
}
