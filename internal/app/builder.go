package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/sidefx/internal/core/ports"
)

// Components contains all the initialized application components.
// This struct provides controlled access to components needed by the CLI layer.
type Components struct {
	App       *App
	Logger    ports.Logger
	Telemetry ports.Telemetry
}

// NewApp resolves the registered Graft nodes into Components.
func NewApp(ctx context.Context) (*Components, error) {
	c, _, err := graft.ExecuteFor[*Components](ctx)
	return c, err
}
