package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fozzylabs/fozzy/internal/engine"
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/profile"
	"github.com/fozzylabs/fozzy/internal/report"
	"github.com/fozzylabs/fozzy/internal/scenario"
	"github.com/fozzylabs/fozzy/internal/store"
	"github.com/fozzylabs/fozzy/internal/trace"
	"github.com/fozzylabs/fozzy/internal/version"
)

// RunFlags holds run-specific flags.
type RunFlags struct {
	Seed         int64
	SeedSet      bool
	Record       string
	Collision    string
	Policy       string
	ArtifactsDir string
	Pretty       bool
	Runs         int
	KeepGoing    bool

	HTTPHost   bool
	ProcHost   bool
	FSHostRoot string

	MemLimitMB   uint64
	MemFailAfter uint64
	LeakBudget   int
	FailOnLeak   bool
}

// NewRunCommand creates `fozzy run <scenario>`.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	flags := &RunFlags{}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a scenario and report its outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.SeedSet = cmd.Flags().Changed("seed")
			return runScenario(cmd, opts, flags, args[0])
		},
	}

	cmd.Flags().Int64Var(&flags.Seed, "seed", 0, "seed override")
	cmd.Flags().StringVar(&flags.Record, "record", "", "write the trace to this path")
	cmd.Flags().StringVar(&flags.Collision, "collision", trace.CollisionError, "record collision policy (error|overwrite|append)")
	cmd.Flags().StringVar(&flags.Policy, "policy", "", "scheduler policy override")
	cmd.Flags().StringVar(&flags.ArtifactsDir, "artifacts", "", "emit report/timeline/memory artifacts into this directory")
	cmd.Flags().BoolVar(&flags.Pretty, "pretty", false, "pretty-encode artifacts and traces")
	cmd.Flags().IntVar(&flags.Runs, "runs", 1, "number of isolated runs (doctor mode)")
	cmd.Flags().BoolVar(&flags.KeepGoing, "keep-going", false, "continue past failed assertions")
	cmd.Flags().BoolVar(&flags.HTTPHost, "http-host", false, "use the host http backend")
	cmd.Flags().BoolVar(&flags.ProcHost, "proc-host", false, "use the host proc backend")
	cmd.Flags().StringVar(&flags.FSHostRoot, "fs-host-root", "", "use the host fs backend sandboxed to this root")
	cmd.Flags().Uint64Var(&flags.MemLimitMB, "mem-limit-mb", 0, "cap live allocation bytes")
	cmd.Flags().Uint64Var(&flags.MemFailAfter, "mem-fail-after", 0, "force the Nth allocation to fail")
	cmd.Flags().IntVar(&flags.LeakBudget, "leak-budget", 0, "allowed live allocations at end of run")
	cmd.Flags().BoolVar(&flags.FailOnLeak, "fail-on-leak", false, "fail the run when leaks exceed the budget")

	return cmd
}

func runScenario(cmd *cobra.Command, opts *RootOptions, flags *RunFlags, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return errs.Newf(errs.KindParse, "read scenario %s: %v", path, err)
	}

	cache := scenario.NewCache()
	sc, err := cache.Load(src)
	if err != nil {
		return err
	}

	engOpts := engine.Options{
		Det:          opts.Det,
		Strict:       opts.Strict,
		Policy:       flags.Policy,
		KeepGoing:    flags.KeepGoing,
		HTTPHost:     flags.HTTPHost,
		ProcHost:     flags.ProcHost,
		FSHostRoot:   flags.FSHostRoot,
		MemLimitMB:   flags.MemLimitMB,
		MemFailAfter: flags.MemFailAfter,
		FailOnLeak:   flags.FailOnLeak,
		Logger:       opts.logger,
	}
	if flags.SeedSet {
		seed := uint64(flags.Seed)
		engOpts.Seed = &seed
	}
	if flags.FailOnLeak {
		budget := flags.LeakBudget
		engOpts.LeakBudget = &budget
	}

	eng := engine.New(opts.logger, nil)

	var last *engine.RunResult
	for i := 0; i < max(flags.Runs, 1); i++ {
		res, err := eng.Run(sc, engOpts)
		if err != nil {
			return err
		}
		last = res
		if err := emitRunArtifacts(opts, flags, sc, res); err != nil {
			return err
		}
		printOutcome(cmd, opts, res)
	}

	if !last.Passed() {
		return errs.Newf(last.FailureKind, "run finished with outcome %s: %s", last.Outcome, last.FailureMessage)
	}
	return nil
}

// emitRunArtifacts writes the trace and any opted-in artifacts, indexes
// the run, and writes the manifest exactly once.
func emitRunArtifacts(opts *RootOptions, flags *RunFlags, sc *scenario.Scenario, res *engine.RunResult) error {
	pretty := flags.Pretty || trace.PrettyFromEnv()
	createdAt := time.Now().UTC().Format(time.RFC3339)
	manifest := report.NewManifest(res, activeCapabilities(sc))

	if flags.Record != "" {
		tf := res.Trace(sc.Source(), version.Get().Commit, createdAt)
		if err := trace.WriteFile(flags.Record, tf, flags.Collision, pretty); err != nil {
			return err
		}
		manifest.Add("trace", flags.Record)
	}

	if flags.ArtifactsDir == "" {
		return nil
	}
	dir := flags.ArtifactsDir

	reportPath := filepath.Join(dir, "report.json")
	if err := report.Build(res).Write(reportPath, pretty); err != nil {
		return err
	}
	manifest.Add("report", reportPath)

	timelinePath := filepath.Join(dir, "timeline.json")
	if err := report.WriteTimeline(timelinePath, res.Events); err != nil {
		return err
	}
	manifest.Add("timeline", timelinePath)

	leaksPath := filepath.Join(dir, "memory.leaks.json")
	if err := profile.WriteLeaks(leaksPath, res.Leaks); err != nil {
		return err
	}
	manifest.Add("leaks", leaksPath)

	memoryPath := filepath.Join(dir, "memory.json")
	memReport := profile.BuildMemoryReport(res.Memory, res.Leaks, res.MemoryEdges)
	if err := profile.WriteMemoryReport(memoryPath, memReport); err != nil {
		return err
	}
	manifest.Add("memory", memoryPath)

	manifestPath := filepath.Join(dir, "manifest.json")
	if err := manifest.Write(manifestPath); err != nil {
		return err
	}

	return indexRun(opts, res, flags.Record, manifestPath, createdAt)
}

func indexRun(opts *RootOptions, res *engine.RunResult, tracePath, manifestPath, createdAt string) error {
	if err := os.MkdirAll(opts.cfg.BaseDir, 0o755); err != nil {
		opts.logger.Warn("cannot create base dir; skipping run index", "err", err)
		return nil
	}
	idx, err := store.Open(opts.cfg.IndexPath())
	if err != nil {
		opts.logger.Warn("run index unavailable", "err", err)
		return nil
	}
	defer idx.Close()
	if err := idx.Insert(context.Background(), store.Run{
		RunID:          res.RunID,
		ScenarioName:   res.ScenarioName,
		ScenarioDigest: res.ScenarioDigest,
		Seed:           res.Seed,
		Outcome:        string(res.Outcome),
		TracePath:      tracePath,
		ManifestPath:   manifestPath,
		CreatedAt:      createdAt,
	}); err != nil {
		opts.logger.Warn("run index insert failed", "err", err)
	}
	return nil
}

func activeCapabilities(sc *scenario.Scenario) []string {
	caps := []string{"fs", "memory"}
	if len(sc.HTTP) > 0 {
		caps = append(caps, "http")
	}
	if len(sc.Proc) > 0 {
		caps = append(caps, "proc")
	}
	if len(sc.Net.Nodes) > 0 {
		caps = append(caps, "net")
	}
	return caps
}

func printOutcome(cmd *cobra.Command, opts *RootOptions, res *engine.RunResult) {
	if opts.Format == "json" {
		writeJSON(cmd, map[string]any{
			"run_id":    res.RunID,
			"scenario":  res.ScenarioName,
			"seed":      res.Seed,
			"outcome":   string(res.Outcome),
			"steps":     res.StepsExecuted,
			"decisions": len(res.Decisions),
			"failure":   res.FailureMessage,
		})
		return
	}
	if res.Passed() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: pass (%d steps, %d decisions, %d ticks)\n",
			res.ScenarioName, res.StepsExecuted, len(res.Decisions), res.DurationTicks)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s — %s\n", res.ScenarioName, res.Outcome, res.FailureMessage)
}
