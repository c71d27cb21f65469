package commands_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/sidefx/cmd/sidefx/commands"
	"go.trai.ch/sidefx/internal/app"
	"go.trai.ch/sidefx/internal/build"
	"go.trai.ch/sidefx/internal/core/domain"
)

type mockApp struct {
	generateFunc func(ctx context.Context, opts app.GenerateOptions) error
	explainFunc  func(ctx context.Context, opts app.ExplainOptions) error
	serveFunc    func(ctx context.Context, opts app.ServeOptions) error
	toolFunc     func(ctx context.Context, args []string, r io.Reader, w io.Writer) error
}

func (m *mockApp) Generate(ctx context.Context, opts app.GenerateOptions) error {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, opts)
	}
	return nil
}

func (m *mockApp) Explain(ctx context.Context, opts app.ExplainOptions) error {
	if m.explainFunc != nil {
		return m.explainFunc(ctx, opts)
	}
	return nil
}

func (m *mockApp) Serve(ctx context.Context, opts app.ServeOptions) error {
	if m.serveFunc != nil {
		return m.serveFunc(ctx, opts)
	}
	return nil
}

func (m *mockApp) ServeTool(ctx context.Context, args []string, r io.Reader, w io.Writer) error {
	if m.toolFunc != nil {
		return m.toolFunc(ctx, args, r, w)
	}
	return nil
}

type configurableLogger struct {
	verbose, json bool
}

func (l *configurableLogger) Info(string) {}
func (l *configurableLogger) Warn(string) {}
func (l *configurableLogger) Debug(string) {}
func (l *configurableLogger) Error(error) {}
func (l *configurableLogger) SetVerbose(v bool) { l.verbose = v }
func (l *configurableLogger) SetJSON(v bool) { l.json = v }

func TestCommands_Generate(t *testing.T) {
	t.Run("wires flags correctly", func(t *testing.T) {
		var captured app.GenerateOptions
		mock := &mockApp{
			generateFunc: func(_ context.Context, opts app.GenerateOptions) error {
				captured = opts
				return nil
			},
		}

		cli := commands.New(mock, nil)
		cli.SetArgs([]string{
			"generate", "run.yaml",
			"-j", "4", "-o", "out",
			"--seed", "42",
			"--tool", "java",
			"--tool-arg", "-jar", "--tool-arg", "compiler.jar",
			"-a", "rido",
			"--repeat", "2",
			"--budget", "90s",
		})
		require.NoError(t, cli.Execute(context.Background()))

		assert.Equal(t, "run.yaml", captured.ConfigPath)
		assert.Equal(t, 4, captured.Concurrent)
		assert.Equal(t, "out", captured.OutDir)
		assert.Equal(t, uint64(42), captured.Seed)
		assert.Equal(t, -1, captured.WorkerID)
		assert.Equal(t, domain.ConfigOverrides{
			ToolCommand:  "java",
			ToolArgs:     []string{"-jar", "compiler.jar"},
			Algorithm:    "rido",
			RepeatPasses: 2,
			SearchBudget: 90 * time.Second,
		}, captured.Overrides)

		assert.Equal(t, "generate", captured.WorkerArgs[0])
		assert.Equal(t, "run.yaml", captured.WorkerArgs[1])
		joined := strings.Join(captured.WorkerArgs, " ")
		assert.Contains(t, joined, "--tool-arg -jar --tool-arg compiler.jar")
		assert.Contains(t, joined, "--seed=42")
		assert.Contains(t, joined, "--budget=1m30s")
		assert.NotContains(t, joined, "--concurrent")
		assert.NotContains(t, joined, "--out")
	})

	t.Run("defaults to the config file in the working directory", func(t *testing.T) {
		var captured app.GenerateOptions
		mock := &mockApp{
			generateFunc: func(_ context.Context, opts app.GenerateOptions) error {
				captured = opts
				return nil
			},
		}

		cli := commands.New(mock, nil)
		cli.SetArgs([]string{"generate", "--worker-id", "2", "--num-workers", "3"})
		require.NoError(t, cli.Execute(context.Background()))

		assert.Equal(t, domain.DefaultConfigFile, captured.ConfigPath)
		assert.Equal(t, 2, captured.WorkerID)
		assert.Equal(t, 3, captured.NumWorkers)
		assert.Equal(t, 1, captured.Concurrent)
	})

	t.Run("returns error on generate failure", func(t *testing.T) {
		mock := &mockApp{
			generateFunc: func(context.Context, app.GenerateOptions) error {
				return errors.New("simulated error")
			},
		}

		cli := commands.New(mock, nil)
		cli.SetArgs([]string{"generate"})
		cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))

		err := cli.Execute(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "simulated error")
	})
}

func TestCommands_Explain(t *testing.T) {
	t.Run("passes report path and names", func(t *testing.T) {
		var captured app.ExplainOptions
		mock := &mockApp{
			explainFunc: func(_ context.Context, opts app.ExplainOptions) error {
				captured = opts
				return nil
			},
		}

		cli := commands.New(mock, nil)
		cli.SetArgs([]string{"explain", "reports.json", "Let.uid", "Program.stamp", "-c", "other.yaml"})
		require.NoError(t, cli.Execute(context.Background()))

		assert.Equal(t, app.ExplainOptions{
			ReportPath: "reports.json",
			ConfigPath: "other.yaml",
			Names:      []string{"Let.uid", "Program.stamp"},
		}, captured)
	})

	t.Run("requires a report file", func(t *testing.T) {
		cli := commands.New(&mockApp{}, nil)
		cli.SetArgs([]string{"explain"})
		cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))
		require.Error(t, cli.Execute(context.Background()))
	})
}

func TestCommands_Serve(t *testing.T) {
	var captured app.ServeOptions
	mock := &mockApp{
		serveFunc: func(_ context.Context, opts app.ServeOptions) error {
			captured = opts
			opts.Ready("127.0.0.1:8123")
			return nil
		},
	}

	cli := commands.New(mock, nil)
	buf := new(bytes.Buffer)
	cli.SetOutput(buf, buf)
	cli.SetArgs([]string{"serve"})
	require.NoError(t, cli.Execute(context.Background()))

	assert.Equal(t, domain.ReportFileName, captured.Path)
	assert.Equal(t, -1, captured.Port)
	assert.Contains(t, buf.String(), "http://127.0.0.1:8123")
}

func TestCommands_Tool(t *testing.T) {
	mock := &mockApp{
		toolFunc: func(_ context.Context, args []string, r io.Reader, w io.Writer) error {
			assert.Equal(t, []string{"prog.calc"}, args)
			_, err := io.Copy(w, r)
			return err
		},
	}

	cli := commands.New(mock, nil)
	var out bytes.Buffer
	cli.SetOutput(&out, new(bytes.Buffer))
	cli.SetInput(strings.NewReader(`{"id":1,"op":"close"}`))
	cli.SetArgs([]string{"tool", "prog.calc"})
	require.NoError(t, cli.Execute(context.Background()))
	assert.Equal(t, `{"id":1,"op":"close"}`, out.String())
}

func TestCommands_LogFlags(t *testing.T) {
	log := &configurableLogger{}
	cli := commands.New(&mockApp{}, log)
	cli.SetArgs([]string{"generate", "--verbose", "--json"})
	require.NoError(t, cli.Execute(context.Background()))

	assert.True(t, log.verbose)
	assert.True(t, log.json)
}

func TestCommands_TraceOut(t *testing.T) {
	dir := t.TempDir()
	cli := commands.New(&mockApp{}, nil)
	cli.SetArgs([]string{"generate", "--worker-id", "3", "--trace-out", filepath.Join(dir, "trace.json")})
	require.NoError(t, cli.Execute(context.Background()))

	_, err := os.Stat(filepath.Join(dir, "trace.3.json"))
	require.NoError(t, err)
}

func TestCommands_Version(t *testing.T) {
	cli := commands.New(&mockApp{}, nil)

	buf := new(bytes.Buffer)
	cli.SetOutput(buf, buf)
	cli.SetArgs([]string{"version"})

	err := cli.Execute(context.Background())
	require.NoError(t, err)

	assert.Contains(t, buf.String(), build.Version)
}
