package telemetry

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/sidefx/internal/core/ports"
)

// TracerNodeID is the unique identifier for the span tracer Graft node.
const TracerNodeID graft.ID = "adapter.tracer"

func init() {
	graft.Register(graft.Node[ports.Tracer]{
		ID:        TracerNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Tracer, error) {
			return NewOTelTracer(InstrumentationName), nil
		},
	})
}
