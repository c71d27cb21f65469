package ports

import "go.trai.ch/sidefx/internal/core/domain"

// GraphStore persists dependency graphs of reference passes.
//
//go:generate mockgen -source=graph_store.go -destination=mocks/mock_graph_store.go -package=mocks
type GraphStore interface {
	// Save writes the graph of tool configuration toolIdx into dir.
	Save(dir string, toolIdx int, g *domain.DependencyGraph) error
	// Load reads the graph of tool configuration toolIdx from dir.
	Load(dir string, toolIdx int) (*domain.DependencyGraph, error)
}
