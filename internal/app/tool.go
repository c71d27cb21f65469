package app

import (
	"context"
	"errors"
	"io"

	"go.trai.ch/sidefx/internal/adapters/toolproc" //nolint:depguard // The tool side of the protocol
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/zerr"
)

// ServeTool parses the built-in sandbox program (or the source file named in args) and
// answers tool protocol requests on r and w until the client closes the session.
func (a *App) ServeTool(ctx context.Context, args []string, r io.Reader, w io.Writer) error {
	session, err := a.builtin.Open(ctx, domain.ToolConfig{Command: "sandbox", Args: args})
	if err != nil {
		return zerr.Wrap(err, "failed to open sandbox")
	}
	serveErr := toolproc.Serve(ctx, r, w, session)
	return errors.Join(serveErr, session.Close())
}
