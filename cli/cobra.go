package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NoArgs rejects positional arguments. Parent commands answer with their usage
// so a mistyped subcommand lists the valid ones.
func NoArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}

	if cmd.HasSubCommands() {
		return fmt.Errorf("unknown command %q for %q\n%s",
			args[0], cmd.CommandPath(), strings.TrimRight(cmd.UsageString(), "\n"))
	}

	return fmt.Errorf("%q accepts no arguments, got %q.\nSee '%s --help'.\n\nUsage:  %s",
		cmd.CommandPath(), strings.Join(args, " "), cmd.CommandPath(), cmd.UseLine())
}
