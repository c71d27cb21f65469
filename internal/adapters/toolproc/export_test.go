package toolproc

import (
	"io"
	"testing"
	"time"

	"go.trai.ch/sidefx/internal/core/ports"
)

// NewPipeSession creates a client session over r and w without a process.
func NewPipeSession(r io.Reader, w io.Writer, closeFn func() error) *Session {
	return newSession(r, w, func(bool) error {
		if closeFn == nil {
			return nil
		}
		return closeFn()
	})
}

// SetCloseTimeout shortens the close timeout for the duration of t.
func SetCloseTimeout(t *testing.T, d time.Duration) {
	t.Helper()
	prev := closeTimeout
	closeTimeout = d
	t.Cleanup(func() { closeTimeout = prev })
}

// ResolveEnvironment exposes resolveEnvironment for testing.
func ResolveEnvironment(sysEnv []string, toolEnv map[string]string) []string {
	return resolveEnvironment(sysEnv, toolEnv)
}

// LookPath exposes lookPath for testing.
func LookPath(file string, env []string) (string, error) {
	return lookPath(file, env)
}

// NewLogWriter exposes the tool stderr writer for testing.
func NewLogWriter(log ports.Logger, prefix string) interface {
	io.Writer
	Flush()
} {
	return &logWriter{logger: log, prefix: prefix}
}
