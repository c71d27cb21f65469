package workers

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/zerr"
)

// ProcessSpawner re-executes a binary once per worker. Worker output goes to
// worker_N.out and worker_N.err inside the output directory.
type ProcessSpawner struct {
	// Executable is the binary to run, usually os.Executable().
	Executable string
	// Args precede the worker flags.
	Args []string
	// Env replaces the child environment when set.
	Env []string
}

// Spawn implements SpawnFunc.
func (s ProcessSpawner) Spawn(ctx context.Context, id, count int, dir string) error {
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create worker directory"), "dir", dir)
	}
	outPath, errPath := domain.WorkerLogFileNames(dir, id)
	stdout, err := os.Create(filepath.Clean(outPath))
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create worker log"), "path", outPath)
	}
	defer func() { _ = stdout.Close() }()
	stderr, err := os.Create(filepath.Clean(errPath))
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create worker log"), "path", errPath)
	}
	defer func() { _ = stderr.Close() }()

	args := append([]string{}, s.Args...)
	args = append(args,
		"--worker-id", strconv.Itoa(id),
		"--num-workers", strconv.Itoa(count),
		"--out", dir,
	)
	//nolint:gosec // Executable is the running binary
	cmd := exec.CommandContext(ctx, s.Executable, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if s.Env != nil {
		cmd.Env = s.Env
	}
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return zerr.With(zerr.Wrap(err, "worker exited"), "exit_code", exitErr.ExitCode())
		}
		return zerr.Wrap(err, "failed to run worker")
	}
	return nil
}
