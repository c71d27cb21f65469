// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/sidefx/internal/adapters/config"
	_ "go.trai.ch/sidefx/internal/adapters/graphstore"
	_ "go.trai.ch/sidefx/internal/adapters/logger"
	_ "go.trai.ch/sidefx/internal/adapters/metrics"
	_ "go.trai.ch/sidefx/internal/adapters/reports"
	_ "go.trai.ch/sidefx/internal/adapters/sandbox"
	_ "go.trai.ch/sidefx/internal/adapters/telemetry"
	_ "go.trai.ch/sidefx/internal/adapters/telemetry/progrock"
	_ "go.trai.ch/sidefx/internal/adapters/toolproc"
	_ "go.trai.ch/sidefx/internal/adapters/web"
	// Register app and engine nodes.
	_ "go.trai.ch/sidefx/internal/app"
	_ "go.trai.ch/sidefx/internal/engine/baseline"
)
