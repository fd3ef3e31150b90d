package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/store"
)

// NewRunsCommand creates `fozzy runs`: list indexed runs.
func NewRunsCommand(opts *RootOptions) *cobra.Command {
	var (
		limit   int
		outcome string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs from the run index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(opts.cfg.IndexPath()); os.IsNotExist(err) {
				if opts.Format == "json" {
					writeJSON(cmd, []any{})
				}
				return nil
			}
			idx, err := store.Open(opts.cfg.IndexPath())
			if err != nil {
				return errs.Newf(errs.KindCapability, "open run index: %v", err)
			}
			defer idx.Close()

			var runs []store.Run
			if outcome != "" {
				runs, err = idx.ByOutcome(context.Background(), outcome, limit)
			} else {
				runs, err = idx.List(context.Background(), limit)
			}
			if err != nil {
				return errs.Newf(errs.KindCapability, "list runs: %v", err)
			}

			if opts.Format == "json" {
				out := make([]map[string]any, len(runs))
				for i, r := range runs {
					out[i] = map[string]any{
						"run_id":   r.RunID,
						"scenario": r.ScenarioName,
						"seed":     r.Seed,
						"outcome":  r.Outcome,
						"trace":    r.TracePath,
						"created":  r.CreatedAt,
					}
				}
				writeJSON(cmd, out)
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s seed=%-6d %s  %s\n",
					r.CreatedAt, r.Outcome, r.Seed, r.ScenarioName, r.RunID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome class")
	return cmd
}
