package baseline

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/sidefx/internal/adapters/graphstore"
	"go.trai.ch/sidefx/internal/core/ports"
)

// NodeID is the unique identifier for the baseline recorder Graft node.
const NodeID graft.ID = "engine.baseline"

func init() {
	graft.Register(graft.Node[*Recorder]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{graphstore.NodeID},
		Run: func(ctx context.Context) (*Recorder, error) {
			graphs, err := graft.Dep[ports.GraphStore](ctx)
			if err != nil {
				return nil, err
			}
			return NewRecorder(graphs), nil
		},
	})
}
