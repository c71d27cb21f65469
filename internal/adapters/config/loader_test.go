package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/sidefx/internal/adapters/config"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func newLoader(t *testing.T) *config.Loader {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any()).AnyTimes()
	return config.NewLoader(log)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), domain.DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Success(t *testing.T) {
	path := writeConfig(t, `
tool:
  command: ./lang
  args: [a.src, --strict]
  env: {LANG_DEBUG: "1"}
entryPoints:
  - predicate: "this<:Program"
    property: errors
    limitNodes: 10
searchAlgorithm: RIDO
searchBudget: 90s
captureTraceValues: false
graphDir: graphs
filter:
  include: ["Program.*"]
  exclude: ["*.toString"]
`)

	cfg, err := newLoader(t).Load(path, domain.ConfigOverrides{})
	require.NoError(t, err)

	assert.Equal(t, domain.AlgorithmRIDO, cfg.Algorithm)
	assert.Equal(t, 90*time.Second, cfg.SearchBudget)
	assert.Equal(t, 1, cfg.RepeatPasses)
	assert.False(t, cfg.CaptureValues)
	assert.True(t, cfg.IgnoreCircular)
	assert.True(t, cfg.Minimize)
	assert.Equal(t, "graphs", cfg.GraphDir)
	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, config.DefaultAutosaveInterval, cfg.AutosaveEvery)
	assert.Equal(t, []domain.ToolConfig{{
		Command: "./lang",
		Args:    []string{"a.src", "--strict"},
		Env:     map[string]string{"LANG_DEBUG": "1"},
	}}, cfg.Tools)
	assert.Equal(t, []domain.EntryPoint{{Predicate: "this<:Program", Property: "errors", LimitNodes: 10}}, cfg.EntryPoints)
	require.NotNil(t, cfg.Filter)
	assert.True(t, cfg.Excluded("lang.ast.Expr", "toString"))
	assert.False(t, cfg.Excluded("lang.ast.Program", "toString"))
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
tool: {command: ./lang}
entryPoints: [{property: "*"}]
`)

	cfg, err := newLoader(t).Load(path, domain.ConfigOverrides{})
	require.NoError(t, err)

	assert.Equal(t, domain.AlgorithmRandomOrder, cfg.Algorithm)
	assert.Equal(t, config.DefaultSearchBudget, cfg.SearchBudget)
	assert.True(t, cfg.CaptureValues)
	assert.Nil(t, cfg.Filter)
	require.Len(t, cfg.Tools, 1)
	assert.Empty(t, cfg.Tools[0].Args)
}

func TestLoad_ArgSetsAndRepeat(t *testing.T) {
	path := writeConfig(t, `
tool:
  command: ./lang
  args:
    - [a.src]
    - [b.src, --opt]
entryPoints: [{property: errors}]
repeatPasses: 2
searchBudget: 30
`)

	cfg, err := newLoader(t).Load(path, domain.ConfigOverrides{})
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.SearchBudget)
	require.Len(t, cfg.Tools, 4)
	assert.Equal(t, []string{"a.src"}, cfg.Tools[0].Args)
	assert.Equal(t, []string{"b.src", "--opt"}, cfg.Tools[1].Args)
	assert.Equal(t, []string{"a.src"}, cfg.Tools[2].Args)
	assert.Equal(t, []string{"b.src", "--opt"}, cfg.Tools[3].Args)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
tool: {command: ./lang, args: [a.src]}
entryPoints: [{property: errors}]
searchAlgorithm: rido
`)

	cfg, err := newLoader(t).Load(path, domain.ConfigOverrides{
		ToolCommand:  "./other",
		ToolArgs:     []string{"c.src"},
		Algorithm:    "random_equation_check",
		RepeatPasses: 3,
		SearchBudget: 5 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.AlgorithmREC, cfg.Algorithm)
	assert.Equal(t, 5*time.Second, cfg.SearchBudget)
	require.Len(t, cfg.Tools, 3)
	assert.Equal(t, "./other c.src", cfg.Tools[2].String())
}

func TestLoad_JSONIsAccepted(t *testing.T) {
	path := writeConfig(t, `{"tool": {"command": "./lang"}, "entryPoints": [{"property": "errors"}]}`)

	cfg, err := newLoader(t).Load(path, domain.ConfigOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "./lang", cfg.Tools[0].Command)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "invalid yaml",
			content: "tool: [",
			wantErr: domain.ErrConfigParseFailed,
		},
		{
			name:    "missing tool command",
			content: "tool: {args: [a]}\nentryPoints: [{property: errors}]",
			wantErr: domain.ErrConfigInvalid,
		},
		{
			name:    "no entry points",
			content: "tool: {command: ./lang}\nentryPoints: []",
			wantErr: domain.ErrNoEntryPoints,
		},
		{
			name:    "entry point without property",
			content: "tool: {command: ./lang}\nentryPoints: [{predicate: x}]",
			wantErr: domain.ErrConfigInvalid,
		},
		{
			name:    "unknown algorithm",
			content: "tool: {command: ./lang}\nentryPoints: [{property: errors}]\nsearchAlgorithm: bogus",
			wantErr: domain.ErrUnknownAlgorithm,
		},
		{
			name:    "bad duration",
			content: "tool: {command: ./lang}\nentryPoints: [{property: errors}]\nsearchBudget: soon",
			wantErr: domain.ErrConfigParseFailed,
		},
		{
			name:    "args not a list",
			content: "tool: {command: ./lang, args: a.src}\nentryPoints: [{property: errors}]",
			wantErr: domain.ErrConfigParseFailed,
		},
		{
			name:    "empty filter",
			content: "tool: {command: ./lang}\nentryPoints: [{property: errors}]\nfilter: {}",
			wantErr: domain.ErrConfigInvalid,
		},
		{
			name:    "negative limit",
			content: "tool: {command: ./lang}\nentryPoints: [{property: errors, limitNodes: -1}]",
			wantErr: domain.ErrConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newLoader(t).Load(writeConfig(t, tt.content), domain.ConfigOverrides{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := newLoader(t).Load(filepath.Join(t.TempDir(), "nope.yaml"), domain.ConfigOverrides{})
	assert.ErrorIs(t, err, domain.ErrConfigReadFailed)
}
