// Package graphstore persists dependency graphs in their binary adjacency encoding.
package graphstore

import (
	"os"
	"path/filepath"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/zerr"
)

// Store implements ports.GraphStore with one file per tool configuration.
type Store struct{}

// NewStore creates a new graph store.
func NewStore() *Store {
	return &Store{}
}

// Save writes g to dir/depgraph_<toolIdx>.bin, replacing any previous file atomically.
func (s *Store) Save(dir string, toolIdx int, g *domain.DependencyGraph) (err error) {
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create graph directory"), "dir", dir)
	}
	path := filepath.Join(dir, domain.GraphFileName(toolIdx))
	tmp := path + ".tmp"

	//nolint:gosec // Path is built from a trusted directory
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, domain.FilePerm)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create graph file"), "path", tmp)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err := g.WriteTo(f); err != nil {
		_ = f.Close()
		return zerr.With(zerr.Wrap(err, "failed to encode graph"), "path", tmp)
	}
	if err := f.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to close graph file"), "path", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to replace graph file"), "path", path)
	}
	return nil
}

// Load reads dir/depgraph_<toolIdx>.bin.
func (s *Store) Load(dir string, toolIdx int) (*domain.DependencyGraph, error) {
	path := filepath.Join(dir, domain.GraphFileName(toolIdx))
	//nolint:gosec // Path is built from a trusted directory
	f, err := os.Open(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to open graph file"), "path", path)
	}
	defer func() { _ = f.Close() }()

	g, err := domain.ReadDependencyGraph(f)
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return g, nil
}
