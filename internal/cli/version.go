package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fozzylabs/fozzy/internal/version"
)

// NewVersionCommand creates `fozzy version`.
func NewVersionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if opts.Format == "json" {
				writeJSON(cmd, info)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fozzy %s", info.Version)
			if info.Commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", info.Commit)
			}
			fmt.Fprintf(cmd.OutOrStdout(), " %s\n", info.GoVersion)
			return nil
		},
	}
}
