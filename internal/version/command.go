package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CommandName is reserved: no maintenance task may use it.
const CommandName = "version"

// AttachCobraVersionCommand attaches a `version` subcommand to the provided root command.
func AttachCobraVersionCommand(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   CommandName,
		Short: "Print version information.",
		Long:  "Print the build version, the commit the binary was built from and the build timestamp. Values are injected with ldflags by the build tasks.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Full())
		},
	})
}
