package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newToolCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "tool [source]",
		Short:  "Serve the built-in sandbox evaluator over stdin and stdout",
		Hidden: true,
		Args:   cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.ServeTool(cmd.Context(), args, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
