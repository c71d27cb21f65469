package app

import (
	"context"
	"os"

	"go.trai.ch/sidefx/internal/adapters/web" //nolint:depguard // Port resolution lives with the server
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/zerr"
)

// ServeOptions configuration for the Serve method.
type ServeOptions struct {
	// Path is a report file or a directory of report files.
	Path string
	// Port is negative to fall back to $PORT and then the default port.
	Port int
	// Ready receives the bound address once the server listens.
	Ready func(addr string)
}

// Serve browses the stored reports until ctx is done.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	path := opts.Path
	if path == "" {
		path = domain.ReportFileName
	}
	port, err := web.ResolvePort(opts.Port, os.Getenv)
	if err != nil {
		return err
	}
	if err := a.server.Open(path); err != nil {
		return zerr.Wrap(err, "failed to open reports")
	}
	return a.server.Serve(ctx, port, opts.Ready)
}
