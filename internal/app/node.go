package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/sidefx/internal/adapters/config"    //nolint:depguard // Wired in app layer
	"go.trai.ch/sidefx/internal/adapters/logger"    //nolint:depguard // Wired in app layer
	"go.trai.ch/sidefx/internal/adapters/metrics"   //nolint:depguard // Wired in app layer
	"go.trai.ch/sidefx/internal/adapters/reports"   //nolint:depguard // Wired in app layer
	"go.trai.ch/sidefx/internal/adapters/sandbox"   //nolint:depguard // Wired in app layer
	"go.trai.ch/sidefx/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/sidefx/internal/adapters/telemetry/progrock"
	"go.trai.ch/sidefx/internal/adapters/toolproc" //nolint:depguard // Wired in app layer
	"go.trai.ch/sidefx/internal/adapters/web"      //nolint:depguard // Wired in app layer
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/sidefx/internal/engine/baseline"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	// App Node
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			logger.NodeID,
			reports.NodeID,
			toolproc.NodeID,
			sandbox.NodeID,
			baseline.NodeID,
			telemetry.TracerNodeID,
			progrock.NodeID,
			metrics.NodeID,
			web.NodeID,
		},
		Run: runAppNode,
	})

	// Components Node
	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
			progrock.NodeID,
		},
		Run: runComponentsNode,
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}
	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}
	store, err := graft.Dep[ports.ReportStore](ctx)
	if err != nil {
		return nil, err
	}
	evaluator, err := graft.Dep[ports.Evaluator](ctx)
	if err != nil {
		return nil, err
	}
	builtin, err := graft.Dep[*sandbox.Evaluator](ctx)
	if err != nil {
		return nil, err
	}
	recorder, err := graft.Dep[*baseline.Recorder](ctx)
	if err != nil {
		return nil, err
	}
	tracer, err := graft.Dep[ports.Tracer](ctx)
	if err != nil {
		return nil, err
	}
	tel, err := graft.Dep[ports.Telemetry](ctx)
	if err != nil {
		return nil, err
	}
	m, err := graft.Dep[*metrics.Metrics](ctx)
	if err != nil {
		return nil, err
	}
	server, err := graft.Dep[*web.Server](ctx)
	if err != nil {
		return nil, err
	}
	return New(loader, log, store, evaluator, builtin, recorder, tracer, tel, m, server), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	app, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	tel, err := graft.Dep[ports.Telemetry](ctx)
	if err != nil {
		return nil, err
	}

	return &Components{
		App:       app,
		Logger:    log,
		Telemetry: tel,
	}, nil
}
