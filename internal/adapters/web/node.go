package web

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/sidefx/internal/adapters/logger"
	"go.trai.ch/sidefx/internal/adapters/metrics"
	"go.trai.ch/sidefx/internal/adapters/reports"
	"go.trai.ch/sidefx/internal/core/ports"
)

// NodeID is the unique identifier for the report browser Graft node.
const NodeID graft.ID = "adapter.web"

func init() {
	graft.Register(graft.Node[*Server]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID, reports.NodeID, metrics.NodeID},
		Run: func(ctx context.Context) (*Server, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			store, err := graft.Dep[ports.ReportStore](ctx)
			if err != nil {
				return nil, err
			}
			m, err := graft.Dep[*metrics.Metrics](ctx)
			if err != nil {
				return nil, err
			}
			return New(log, store, m), nil
		},
	})
}
