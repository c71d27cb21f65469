package domain

import "strings"

// VertexStatus is the lifecycle state of one tracked unit of work, such as the search over a
// single tool configuration.
type VertexStatus string

const (
	// VertexStatusPending means the work has not started.
	VertexStatusPending VertexStatus = "pending"
	// VertexStatusRunning means the work is in progress.
	VertexStatusRunning VertexStatus = "running"
	// VertexStatusCompleted means the work finished.
	VertexStatusCompleted VertexStatus = "completed"
	// VertexStatusFailed means the work stopped with an error.
	VertexStatusFailed VertexStatus = "failed"
	// VertexStatusSkipped means the work was not attempted, e.g. because its reference pass threw.
	VertexStatusSkipped VertexStatus = "skipped"
)

// IsTerminal reports whether no further transitions follow s.
func (s VertexStatus) IsTerminal() bool {
	switch s {
	case VertexStatusCompleted, VertexStatusFailed, VertexStatusSkipped:
		return true
	default:
		return false
	}
}

// NormalizeVertexStatus parses s, defaulting to pending.
func NormalizeVertexStatus(s string) VertexStatus {
	switch st := VertexStatus(strings.ToLower(s)); st {
	case VertexStatusRunning, VertexStatusCompleted, VertexStatusFailed, VertexStatusSkipped:
		return st
	default:
		return VertexStatusPending
	}
}

// LogLevel is the severity of a progress log line, mirroring the slog levels.
type LogLevel int

const (
	// LogLevelDebug is debug verbosity.
	LogLevelDebug LogLevel = -4
	// LogLevelInfo is informational verbosity.
	LogLevelInfo LogLevel = 0
	// LogLevelWarn is warning verbosity.
	LogLevelWarn LogLevel = 4
	// LogLevelError is error verbosity.
	LogLevelError LogLevel = 8
)

// String returns the upper-case level name.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}
