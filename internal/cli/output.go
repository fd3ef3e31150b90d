package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// writeJSON emits one JSON document on stdout. Commands in --json mode
// emit exactly one envelope and never mix it with text.
func writeJSON(cmd *cobra.Command, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "encode output: %v\n", err)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
}
