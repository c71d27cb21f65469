// Package commands implements the CLI commands for sidefx.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/sidefx/internal/adapters/telemetry"
	"go.trai.ch/sidefx/internal/app"
	"go.trai.ch/sidefx/internal/build"
	"go.trai.ch/sidefx/internal/core/ports"
)

// CLI represents the command line interface for sidefx.
type CLI struct {
	app      Application
	logger   ports.Logger
	rootCmd  *cobra.Command
	shutdown telemetry.ShutdownFunc
}

// Application represents the application logic interface.
type Application interface {
	Generate(ctx context.Context, opts app.GenerateOptions) error
	Explain(ctx context.Context, opts app.ExplainOptions) error
	Serve(ctx context.Context, opts app.ServeOptions) error
	ServeTool(ctx context.Context, args []string, r io.Reader, w io.Writer) error
}

// LogConfigurer is implemented by loggers whose format and level can be changed at runtime.
type LogConfigurer interface {
	SetVerbose(enable bool)
	SetJSON(enable bool)
}

// New creates a new CLI instance with the given app. log may be nil.
func New(a Application, log ports.Logger) *CLI {
	rootCmd := &cobra.Command{
		Use:           "sidefx",
		Short:         "Find side effects and non-determinism in memoized attribute computations",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Print debug messages")
	rootCmd.PersistentFlags().Bool("json", false, "Log as JSON lines")
	rootCmd.PersistentFlags().String("trace-out", "", "Write OpenTelemetry spans as JSON to this file")

	c := &CLI{
		app:     a,
		logger:  log,
		rootCmd: rootCmd,
	}
	rootCmd.PersistentPreRunE = c.setup

	rootCmd.AddCommand(c.newGenerateCmd())
	rootCmd.AddCommand(c.newExplainCmd())
	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newToolCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// setup applies the persistent flags before any command runs.
func (c *CLI) setup(cmd *cobra.Command, _ []string) error {
	if lc, ok := c.logger.(LogConfigurer); ok {
		verbose, _ := cmd.Flags().GetBool("verbose")
		jsonMode, _ := cmd.Flags().GetBool("json")
		lc.SetVerbose(verbose)
		lc.SetJSON(jsonMode)
	}

	traceOut, _ := cmd.Flags().GetString("trace-out")
	workerID := -1
	if f := cmd.Flags().Lookup("worker-id"); f != nil {
		workerID, _ = strconv.Atoi(f.Value.String())
	}
	shutdown, err := telemetry.SetupFile(workerTracePath(traceOut, workerID), max(workerID, 0))
	if err != nil {
		return err
	}
	c.shutdown = shutdown
	return nil
}

// workerTracePath keeps concurrent workers from writing the same trace file:
// "trace.json" becomes "trace.3.json" for worker 3.
func workerTracePath(path string, workerID int) string {
	if path == "" || workerID < 0 {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + strconv.Itoa(workerID) + ext
}

// Execute runs the root command with the given context and flushes pending spans.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	err := c.rootCmd.Execute()
	if c.shutdown != nil {
		err = errors.Join(err, c.shutdown(context.WithoutCancel(ctx)))
	}
	return err
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// SetInput sets the input stream for the root command. Used for testing.
func (c *CLI) SetInput(in io.Reader) {
	c.rootCmd.SetIn(in)
}
