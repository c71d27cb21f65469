// Package reports persists report files as JSON, replacing them atomically.
package reports

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/zerr"
)

// Store implements ports.ReportStore using flat JSON files.
type Store struct {
	mu sync.Mutex
}

// NewStore creates a new report store.
func NewStore() *Store {
	return &Store{}
}

// Save writes file to path+".tmp" and renames it over path, so readers never observe a
// partially written file. A missing RunID is generated.
func (s *Store) Save(ctx context.Context, path string, file *domain.ReportFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if file.RunID == "" {
		file.RunID = uuid.NewString()
	}
	if file.Reports == nil {
		file.Reports = []*domain.Report{}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return zerr.Wrap(domain.ErrReportWriteFailed, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrReportWriteFailed, "failed to create report directory"), "path", path)
	}

	tmp := path + ".tmp"
	//nolint:gosec // Path is cleaned and provided by trusted caller
	if err := os.WriteFile(tmp, data, domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrReportWriteFailed, err.Error()), "path", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrReportWriteFailed, "failed to replace report file"), "path", path)
	}
	return nil
}

// Load reads the report file at path.
func (s *Store) Load(path string) (*domain.ReportFile, error) {
	//nolint:gosec // Path is cleaned and provided by trusted caller
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrReportReadFailed, err.Error()), "path", path)
	}

	var file domain.ReportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrReportParseFailed, err.Error()), "path", path)
	}
	return &file, nil
}

// Merge concatenates the "reports" arrays of paths, in order. Entries are passed through
// unchanged.
func (s *Store) Merge(paths []string) ([]json.RawMessage, error) {
	merged := []json.RawMessage{}
	for _, path := range paths {
		//nolint:gosec // Path is cleaned and provided by trusted caller
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, zerr.With(zerr.Wrap(domain.ErrReportReadFailed, err.Error()), "path", path)
		}
		var partial struct {
			Reports []json.RawMessage `json:"reports"`
		}
		if err := json.Unmarshal(data, &partial); err != nil {
			return nil, zerr.With(zerr.Wrap(domain.ErrReportParseFailed, err.Error()), "path", path)
		}
		merged = append(merged, partial.Reports...)
	}
	return merged, nil
}
