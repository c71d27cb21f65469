package ports

import (
	"context"
	"encoding/json"

	"go.trai.ch/sidefx/internal/core/domain"
)

// ReportStore persists report files.
//
//go:generate mockgen -source=reports.go -destination=mocks/mock_reports.go -package=mocks
type ReportStore interface {
	// Save writes file to path atomically.
	Save(ctx context.Context, path string, file *domain.ReportFile) error
	// Load reads the report file at path.
	Load(path string) (*domain.ReportFile, error)
	// Merge concatenates the report arrays of paths in order.
	Merge(paths []string) ([]json.RawMessage, error)
}
