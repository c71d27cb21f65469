package sandbox

import (
	"context"

	"github.com/grindlemire/graft"
)

// NodeID is the unique identifier for the sandbox evaluator Graft node.
const NodeID graft.ID = "adapter.sandbox"

func init() {
	graft.Register(graft.Node[*Evaluator]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Evaluator, error) {
			return NewEvaluator(), nil
		},
	})
}
