// Package cli implements the fozzy command line. It is a thin consumer
// of the engine contract: parse, run/replay/shrink, emit artifacts, map
// error kinds to exit codes.
package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fozzylabs/fozzy/internal/config"
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/logging"
)

// RootOptions holds global flags shared by all subcommands.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json"
	Det        bool
	Strict     bool
	ConfigPath string

	cfg    config.Config
	logger *slog.Logger
}

// ValidFormats lists the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the fozzy root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "fozzy",
		Short:         "Deterministic scenario execution engine",
		Long:          "Fozzy executes declarative test scenarios deterministically, records replayable traces, and shrinks failures to minimal reproducers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return errs.Newf(errs.KindValidation, "invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.logger = logging.Setup(opts.Format, opts.Verbose)
			opts.cfg = config.LoadOptional(opts.ConfigPath, opts.logger)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVar(&opts.Det, "det", false, "strict determinism: reject host backends and host time")
	cmd.PersistentFlags().BoolVar(&opts.Strict, "strict", false, "escalate warnings to errors")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", config.DefaultPath, "config file path")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewShrinkCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Execute runs the CLI and returns the process exit code: 0 success,
// 1 test/engine failure, 2 usage or parse errors.
func Execute(args []string) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "fozzy:", err)
		var e *errs.Error
		if !errors.As(err, &e) {
			// Errors cobra produces itself (unknown flags, bad args)
			// are usage errors.
			return 2
		}
		return errs.ExitCode(err)
	}
	return 0
}
