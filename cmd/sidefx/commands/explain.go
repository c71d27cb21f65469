package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/sidefx/internal/app"
)

func (c *CLI) newExplainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <reports.json> [Type.attr...]",
		Short: "Search intermediate steps that reproduce reported side effects",
		Long: "Explain re-runs the tool configurations recorded in a report file and searches the\n" +
			"smallest set of evaluations that changes each selected attribute's value. Attributes\n" +
			"are selected by suffix, e.g. \"Let.uid\"; without names every explainable report is tried.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			seed, _ := cmd.Flags().GetUint64("seed")
			return c.app.Explain(cmd.Context(), app.ExplainOptions{
				ReportPath: args[0],
				ConfigPath: configPath,
				Names:      args[1:],
				Seed:       seed,
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Config file replacing the configuration stored in the report file")
	cmd.Flags().Uint64("seed", 0, "Seed for the order of probed steps")
	return cmd
}
