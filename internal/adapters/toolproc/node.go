package toolproc

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/sidefx/internal/adapters/logger"
	"go.trai.ch/sidefx/internal/core/ports"
)

// NodeID is the unique identifier for the tool process evaluator Graft node.
const NodeID graft.ID = "adapter.toolproc"

func init() {
	graft.Register(graft.Node[ports.Evaluator]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (ports.Evaluator, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewEvaluator(log), nil
		},
	})
}
