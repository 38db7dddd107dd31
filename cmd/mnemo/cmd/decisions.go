package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/archive"
	"github.com/mnemo-dev/mnemo/internal/types"
)

func newDecisionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "Query and manage decision entities",
	}
	cmd.AddCommand(newDecisionsActiveCmd())
	cmd.AddCommand(newDecisionsHistoryCmd())
	cmd.AddCommand(newDecisionsSupersedeCmd())
	cmd.AddCommand(newDecisionsRatifyCmd())
	return cmd
}

func newDecisionsActiveCmd() *cobra.Command {
	var project string
	var onDate string

	cmd := &cobra.Command{
		Use:   "active",
		Short: "List decisions active on a given date (default: today)",
		RunE: func(c *cobra.Command, args []string) error {
			eng, _, err := loadEngine(resolveProjectRoot())
			if err != nil {
				return err
			}
			defer eng.Close()

			date := time.Now()
			if onDate != "" {
				parsed, err := time.Parse("2006-01-02", onDate)
				if err != nil {
					return fmt.Errorf("parse --date: %w", err)
				}
				date = parsed
			}

			decisions, err := eng.Meta.GetActiveDecisions(c.Context(), date, project)
			if err != nil {
				return err
			}
			w := c.OutOrStdout()
			if len(decisions) == 0 {
				fmt.Fprintln(w, "no active decisions")
				return nil
			}
			for _, d := range decisions {
				printDecision(w, d)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "filter by project")
	cmd.Flags().StringVar(&onDate, "date", "", "date to evaluate validity at, YYYY-MM-DD (default: today)")
	return cmd
}

func newDecisionsHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Print a decision's full supersede chain, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			eng, _, err := loadEngine(resolveProjectRoot())
			if err != nil {
				return err
			}
			defer eng.Close()

			chain, err := eng.Meta.GetDecisionHistory(c.Context(), args[0])
			if err != nil {
				return err
			}
			w := c.OutOrStdout()
			for i, d := range chain {
				fmt.Fprintf(w, "%d. ", i+1)
				printDecision(w, d)
			}
			return nil
		},
	}
}

func newDecisionsSupersedeCmd() *cobra.Command {
	var project, filePath string

	cmd := &cobra.Command{
		Use:   "supersede <old-id> <new-text>",
		Short: "Close an old decision today and open its successor",
		Long: `supersede atomically closes old-id's validity on today's date and
inserts a new decision row with new-text, linking the two (spec.md
§4.4). Emits one decision_superseded archive event.`,
		Args: cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			eng, _, err := loadEngine(resolveProjectRoot())
			if err != nil {
				return err
			}
			defer eng.Close()

			newID := uuid.NewString()
			today := time.Now()
			if err := eng.Meta.SupersedeDecision(c.Context(), args[0], newID, args[1], project, filePath, today); err != nil {
				return err
			}
			_ = eng.Archive.Append(archive.EventDecisionSuperseded, map[string]any{
				"old_id": args[0], "new_id": newID, "new_text": args[1],
				"project": project, "file_path": filePath, "valid_from": today.Format("2006-01-02"),
			})
			fmt.Fprintf(c.OutOrStdout(), "superseded %s with %s\n", args[0], newID)
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project to tag the new decision with")
	cmd.Flags().StringVar(&filePath, "file", "", "source file path to tag the new decision with")
	return cmd
}

func newDecisionsRatifyCmd() *cobra.Command {
	var validFromStr, validToStr, supersededBy string

	cmd := &cobra.Command{
		Use:   "ratify <id>",
		Short: "Manually correct a decision's validity window or supersede link",
		Long: `ratify patches an existing decision row in place: use it to fix a
valid_from/valid_to date that ingestion got wrong, or to attach a
superseded_by link by hand. Only the flags you pass are changed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			eng, _, err := loadEngine(resolveProjectRoot())
			if err != nil {
				return err
			}
			defer eng.Close()

			var validFrom, validTo *time.Time
			if c.Flags().Changed("valid-from") {
				t, err := time.Parse("2006-01-02", validFromStr)
				if err != nil {
					return fmt.Errorf("parse --valid-from: %w", err)
				}
				validFrom = &t
			}
			if c.Flags().Changed("valid-to") {
				t, err := time.Parse("2006-01-02", validToStr)
				if err != nil {
					return fmt.Errorf("parse --valid-to: %w", err)
				}
				validTo = &t
			}
			var supersededByPtr *string
			if c.Flags().Changed("superseded-by") {
				supersededByPtr = &supersededBy
			}

			if err := eng.Meta.RatifyDecision(c.Context(), args[0], validFrom, validTo, supersededByPtr); err != nil {
				return err
			}
			_ = eng.Archive.Append(archive.EventDecisionRatified, map[string]any{
				"id": args[0], "valid_from": validFromStr, "valid_to": validToStr, "superseded_by": supersededBy,
			})
			fmt.Fprintf(c.OutOrStdout(), "ratified %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&validFromStr, "valid-from", "", "new valid_from date, YYYY-MM-DD")
	cmd.Flags().StringVar(&validToStr, "valid-to", "", "new valid_to date, YYYY-MM-DD")
	cmd.Flags().StringVar(&supersededBy, "superseded-by", "", "id of the decision that supersedes this one")
	return cmd
}

func printDecision(w io.Writer, d types.Entity) {
	fmt.Fprintf(w, "%s  %s\n", d.ID, d.Content)
	if d.ValidFrom != nil {
		fmt.Fprintf(w, "    valid_from: %s\n", d.ValidFrom.Format("2006-01-02"))
	}
	if d.ValidTo != nil {
		fmt.Fprintf(w, "    valid_to:   %s\n", d.ValidTo.Format("2006-01-02"))
	}
	if d.SupersededBy != nil {
		fmt.Fprintf(w, "    superseded_by: %s\n", *d.SupersededBy)
	}
}
