package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fozzylabs/fozzy/internal/engine"
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/trace"
)

// NewReplayCommand creates `fozzy replay <trace>`.
func NewReplayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <trace.fozzy>",
		Short: "Re-execute a recorded trace and verify it reproduces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tf, err := trace.ReadFile(args[0])
			if err != nil {
				return err
			}
			warnings, err := trace.Verify(tf, opts.Strict)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				opts.logger.Warn("trace warning", "code", w.Code, "msg", w.Message)
			}

			eng := engine.New(opts.logger, nil)
			res, err := eng.Replay(tf, engine.Options{
				Det:    opts.Det,
				Strict: opts.Strict,
				Logger: opts.logger,
			})
			if err != nil {
				return err
			}

			printOutcome(cmd, opts, res)
			if !res.Passed() {
				return errs.Newf(res.FailureKind, "replay finished with outcome %s: %s", res.Outcome, res.FailureMessage)
			}
			return nil
		},
	}
}

// NewShrinkCommand creates `fozzy shrink <trace>`.
func NewShrinkCommand(opts *RootOptions) *cobra.Command {
	var (
		minimize      string
		metric        string
		direction     string
		threshold     float64
		preserveLeaks bool
		out           string
		budget        int
	)

	cmd := &cobra.Command{
		Use:   "shrink <trace.fozzy>",
		Short: "Reduce a trace to a minimal reproducer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tf, err := trace.ReadFile(args[0])
			if err != nil {
				return err
			}
			if _, err := trace.Verify(tf, opts.Strict); err != nil {
				return err
			}

			policy := shrinkPolicy(minimize, metric, direction, threshold, preserveLeaks, budget)
			eng := engine.New(opts.logger, nil)
			shr := newShrinker(eng, opts)

			reduced, rep, err := shr.Shrink(tf, policy)
			if err != nil {
				return err
			}

			if out == "" {
				out = args[0] + ".min"
			}
			if err := trace.WriteFile(out, reduced, trace.CollisionOverwrite, trace.PrettyFromEnv()); err != nil {
				return err
			}

			if opts.Format == "json" {
				writeJSON(cmd, map[string]any{
					"out":        out,
					"surface":    rep.Surface,
					"trials":     rep.Trials,
					"cache_hits": rep.CacheHits,
					"from_steps": rep.FromSteps,
					"to_steps":   rep.ToSteps,
				})
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "shrunk %d -> %d steps in %d trials (%d cache hits): %s\n",
				rep.FromSteps, rep.ToSteps, rep.Trials, rep.CacheHits, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&minimize, "minimize", "steps", "surface to reduce (steps|decisions)")
	cmd.Flags().StringVar(&metric, "metric", "", "preserve a metric instead of the outcome class")
	cmd.Flags().StringVar(&direction, "direction", "increase", "metric direction (increase|decrease)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "metric threshold (defaults to the baseline value)")
	cmd.Flags().BoolVar(&preserveLeaks, "preserve-leaks", false, "additionally preserve the leak class")
	cmd.Flags().StringVar(&out, "out", "", "output trace path (default <trace>.min)")
	cmd.Flags().IntVar(&budget, "budget", 0, "maximum trial runs")

	return cmd
}
