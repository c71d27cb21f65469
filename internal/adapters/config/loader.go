// Package config provides the configuration loader for sidefx.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultSearchBudget is used when the config file sets no budget.
	DefaultSearchBudget = 60 * time.Second
	// DefaultAutosaveInterval is how often accumulated findings are written during search.
	DefaultAutosaveInterval = 30 * time.Second
)

// Loader implements ports.ConfigLoader for YAML files.
type Loader struct {
	Logger   ports.Logger
	validate *validator.Validate
}

// NewLoader creates a new configuration loader.
func NewLoader(log ports.Logger) *Loader {
	return &Loader{
		Logger:   log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Load reads the configuration file at path, applies overrides and validates the result.
func (l *Loader) Load(path string, overrides domain.ConfigOverrides) (*domain.RunConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrConfigReadFailed, err.Error()), "path", path)
	}
	return l.Parse(data, path, overrides)
}

// Parse decodes and validates config file contents. source is recorded in the result.
func (l *Loader) Parse(data []byte, source string, overrides domain.ConfigOverrides) (*domain.RunConfig, error) {
	var file Sidefile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrConfigParseFailed, err.Error()), "path", source)
	}
	applyOverrides(&file, overrides)

	if err := l.validate.Struct(&file); err != nil {
		return nil, validationError(err, source)
	}

	cfg, err := l.build(&file)
	if err != nil {
		return nil, zerr.With(err, "path", source)
	}
	cfg.Source = source
	return cfg, nil
}

func applyOverrides(file *Sidefile, o domain.ConfigOverrides) {
	if o.ToolCommand != "" {
		file.Tool.Command = o.ToolCommand
	}
	if len(o.ToolArgs) > 0 {
		file.Tool.Args = ArgSets{o.ToolArgs}
	}
	if o.Algorithm != "" {
		file.Algorithm = o.Algorithm
	}
	if o.RepeatPasses > 0 {
		file.RepeatPasses = o.RepeatPasses
	}
	if o.SearchBudget > 0 {
		file.SearchBudget = Duration(o.SearchBudget)
	}
}

func (l *Loader) build(file *Sidefile) (*domain.RunConfig, error) {
	alg := domain.AlgorithmRandomOrder
	if file.Algorithm != "" {
		parsed, ok := domain.ParseAlgorithm(file.Algorithm)
		if !ok {
			return nil, zerr.With(zerr.Wrap(domain.ErrUnknownAlgorithm, "unknown searchAlgorithm"),
				"algorithm", file.Algorithm)
		}
		alg = parsed
	}

	cfg := &domain.RunConfig{
		Algorithm:      alg,
		SearchBudget:   time.Duration(file.SearchBudget),
		RepeatPasses:   max(file.RepeatPasses, 1),
		CaptureValues:  boolOr(file.CaptureValues, true),
		IgnoreCircular: boolOr(file.IgnoreCircular, true),
		Minimize:       boolOr(file.Minimize, true),
		GraphDir:       file.GraphDir,
		AutosaveEvery:  DefaultAutosaveInterval,
		NumWorkers:     1,
	}
	if cfg.SearchBudget == 0 {
		cfg.SearchBudget = DefaultSearchBudget
	}

	for _, ep := range file.EntryPoints {
		cfg.EntryPoints = append(cfg.EntryPoints, domain.EntryPoint{
			Predicate:  ep.Predicate,
			Property:   ep.Property,
			LimitNodes: ep.LimitNodes,
		})
	}

	argSets := file.Tool.Args
	if len(argSets) == 0 {
		argSets = ArgSets{nil}
	}
	for range cfg.RepeatPasses {
		for _, args := range argSets {
			cfg.Tools = append(cfg.Tools, domain.ToolConfig{
				Command: file.Tool.Command,
				Args:    args,
				Env:     file.Tool.Env,
			})
		}
	}
	if cfg.RepeatPasses > 1 {
		l.Logger.Debug(fmt.Sprintf("repeating %d tool configurations %d times", len(argSets), cfg.RepeatPasses))
	}

	if file.Filter != nil {
		filter, err := domain.NewReportFilter(file.Filter.Include, file.Filter.Exclude)
		if err != nil {
			return nil, err
		}
		cfg.Filter = filter
	}
	return cfg, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func validationError(err error, source string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return zerr.With(zerr.Wrap(domain.ErrConfigInvalid, err.Error()), "path", source)
	}
	first := verrs[0]
	if first.StructField() == "EntryPoints" && first.Tag() != "dive" {
		return zerr.With(zerr.Wrap(domain.ErrNoEntryPoints, "entryPoints must list at least one entry"), "path", source)
	}
	msg := fmt.Sprintf("%s failed the %q check", first.Namespace(), first.Tag())
	return zerr.With(zerr.With(zerr.Wrap(domain.ErrConfigInvalid, msg), "field", first.Field()), "path", source)
}
