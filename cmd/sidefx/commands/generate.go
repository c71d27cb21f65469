package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.trai.ch/sidefx/internal/app"
	"go.trai.ch/sidefx/internal/core/domain"
)

// workerFlags are set by the parent process on every worker command line.
var workerFlags = map[string]bool{
	"concurrent":  true,
	"worker-id":   true,
	"num-workers": true,
	"out":         true,
}

func (c *CLI) newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [config]",
		Short: "Search the configured tools for side effects and write reports.json",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := domain.DefaultConfigFile
			if len(args) == 1 {
				configPath = args[0]
			}
			flags := cmd.Flags()
			workerID, _ := flags.GetInt("worker-id")
			numWorkers, _ := flags.GetInt("num-workers")
			concurrent, _ := flags.GetInt("concurrent")
			out, _ := flags.GetString("out")
			seed, _ := flags.GetUint64("seed")
			tool, _ := flags.GetString("tool")
			toolArgs, _ := flags.GetStringArray("tool-arg")
			algorithm, _ := flags.GetString("algorithm")
			repeat, _ := flags.GetInt("repeat")
			budget, _ := flags.GetDuration("budget")

			return c.app.Generate(cmd.Context(), app.GenerateOptions{
				ConfigPath: configPath,
				Overrides: domain.ConfigOverrides{
					ToolCommand:  tool,
					ToolArgs:     toolArgs,
					Algorithm:    algorithm,
					RepeatPasses: repeat,
					SearchBudget: budget,
				},
				OutDir:     out,
				WorkerID:   workerID,
				NumWorkers: numWorkers,
				Concurrent: concurrent,
				WorkerArgs: workerArgs(configPath, flags),
				Seed:       seed,
			})
		},
	}

	cmd.Flags().IntP("concurrent", "j", 1, "Number of worker processes sharing the tool configurations")
	cmd.Flags().StringP("out", "o", ".", "Directory for reports, metrics and worker logs")
	cmd.Flags().Uint64("seed", 0, "Seed for search orders (0 picks a random seed)")
	cmd.Flags().String("tool", "", "Override the tool command")
	cmd.Flags().StringArray("tool-arg", nil, "Override the tool arguments (repeatable)")
	cmd.Flags().StringP("algorithm", "a", "", "Override the search algorithm")
	cmd.Flags().Int("repeat", 0, "Override how often each configuration is repeated")
	cmd.Flags().Duration("budget", 0, "Override the total search budget")

	cmd.Flags().Int("worker-id", -1, "Worker index assigned by the parent process")
	cmd.Flags().Int("num-workers", 0, "Number of workers started by the parent process")
	_ = cmd.Flags().MarkHidden("worker-id")
	_ = cmd.Flags().MarkHidden("num-workers")
	return cmd
}

// workerArgs rebuilds the generate command line for a worker process from the flags the
// user set, leaving out the flags the parent assigns per worker.
func workerArgs(configPath string, flags *pflag.FlagSet) []string {
	args := []string{"generate", configPath}
	flags.Visit(func(f *pflag.Flag) {
		if workerFlags[f.Name] {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			for _, v := range sv.GetSlice() {
				args = append(args, "--"+f.Name, v)
			}
			return
		}
		args = append(args, "--"+f.Name+"="+f.Value.String())
	})
	return args
}
