// Package progrock records per-configuration search progress with progrock.
package progrock

import (
	"context"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/sidefx/internal/core/ports"
)

// Recorder implements ports.Telemetry using progrock.
type Recorder struct {
	w   progrock.Writer
	rec *progrock.Recorder

	mu     sync.Mutex
	groups map[string]*progrock.Recorder
}

// New creates a new Recorder with a default tape.
func New() ports.Telemetry {
	return NewRecorder(progrock.NewTape())
}

// NewRecorder creates a new Recorder with the given writer.
func NewRecorder(w progrock.Writer) *Recorder {
	return &Recorder{
		w:      w,
		rec:    progrock.NewRecorder(w),
		groups: make(map[string]*progrock.Recorder),
	}
}

// Record starts a vertex named name. Vertices are keyed by the digest of their name, so
// recording the same name twice updates one vertex.
func (r *Recorder) Record(ctx context.Context, name string, opts ...ports.VertexOption) (context.Context, ports.Vertex) {
	cfg := &ports.VertexConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	rec := r.rec
	if cfg.Group != "" {
		rec = r.group(cfg.Group)
	}
	v := &Vertex{vertex: rec.Vertex(digest.FromString(name), name)}
	return ports.ContextWithVertex(ctx, v), v
}

func (r *Recorder) group(name string) *progrock.Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[name]; ok {
		return g
	}
	g := r.rec.WithGroup(name)
	r.groups[name] = g
	return g
}

// Close flushes and closes the recording session.
func (r *Recorder) Close() error {
	if c, ok := r.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
