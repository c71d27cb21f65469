package config

import (
	"strconv"
	"time"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Sidefile represents the structure of the sidefx.yaml configuration file.
type Sidefile struct {
	Tool           ToolDTO         `yaml:"tool" validate:"required"`
	EntryPoints    []EntryPointDTO `yaml:"entryPoints" validate:"required,min=1,dive"`
	Algorithm      string          `yaml:"searchAlgorithm"`
	SearchBudget   Duration        `yaml:"searchBudget" validate:"gte=0"`
	RepeatPasses   int             `yaml:"repeatPasses" validate:"gte=0"`
	CaptureValues  *bool           `yaml:"captureTraceValues"`
	IgnoreCircular *bool           `yaml:"ignoreCircularDependencies"`
	Minimize       *bool           `yaml:"minimize"`
	GraphDir       string          `yaml:"graphDir"`
	Filter         *FilterDTO      `yaml:"filter"`
}

// ToolDTO describes the evaluator process.
type ToolDTO struct {
	Command string            `yaml:"command" validate:"required"`
	Args    ArgSets           `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// EntryPointDTO represents one entry point definition.
type EntryPointDTO struct {
	Predicate  string `yaml:"predicate"`
	Property   string `yaml:"property" validate:"required"`
	LimitNodes int    `yaml:"limitNodes" validate:"gte=0"`
}

// FilterDTO holds the report filter lists.
type FilterDTO struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// ArgSets is either a single argument list or a list of argument lists. Every set becomes one
// tool configuration.
type ArgSets [][]string

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *ArgSets) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return zerr.With(zerr.Wrap(domain.ErrConfigParseFailed, "tool.args must be a list"), "line", node.Line)
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		var sets [][]string
		if err := node.Decode(&sets); err != nil {
			return err
		}
		*a = sets
		return nil
	}
	var single []string
	if err := node.Decode(&single); err != nil {
		return err
	}
	*a = [][]string{single}
	return nil
}

// Duration accepts Go duration strings ("90s", "2m") or a plain number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrConfigParseFailed, "invalid duration"), "value", raw)
	}
	*d = Duration(parsed)
	return nil
}
