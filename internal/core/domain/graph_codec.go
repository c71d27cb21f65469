package domain

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"go.trai.ch/zerr"
)

// maxIdentityBytes bounds a single persisted identity to reject corrupt length prefixes.
const maxIdentityBytes = 1 << 24

// WriteTo writes the graph in its flat, index-based form: the node count, each node's
// length-prefixed canonical identity, then per node an edge count followed by target indices.
// All integers are uvarints.
func (g *DependencyGraph) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64
	var scratch [binary.MaxVarintLen64]byte

	putUvarint := func(v uint64) error {
		n := binary.PutUvarint(scratch[:], v)
		m, err := bw.Write(scratch[:n])
		written += int64(m)
		return err
	}

	if err := putUvarint(uint64(len(g.nodes))); err != nil {
		return written, zerr.Wrap(err, "failed to write node count")
	}
	for _, n := range g.nodes {
		enc := n.identity.Encode()
		if err := putUvarint(uint64(len(enc))); err != nil {
			return written, zerr.Wrap(err, "failed to write identity length")
		}
		m, err := bw.Write(enc)
		written += int64(m)
		if err != nil {
			return written, zerr.Wrap(err, "failed to write identity")
		}
	}
	for i := range g.nodes {
		targets := g.Outgoing(i)
		if err := putUvarint(uint64(len(targets))); err != nil {
			return written, zerr.Wrap(err, "failed to write edge count")
		}
		for _, t := range targets {
			if err := putUvarint(uint64(t)); err != nil {
				return written, zerr.Wrap(err, "failed to write edge target")
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return written, zerr.Wrap(err, "failed to flush dependency graph")
	}
	return written, nil
}

// ReadDependencyGraph rebuilds a graph written by WriteTo, resolving identities through the
// canonical identity index.
func ReadDependencyGraph(r io.Reader) (*DependencyGraph, error) {
	br := bufio.NewReader(r)
	readUvarint := func(what string) (uint64, error) {
		v, err := binary.ReadUvarint(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return 0, zerr.With(zerr.Wrap(ErrGraphDecode, "failed to read "+what), "cause", err)
		}
		return v, nil
	}

	count, err := readUvarint("node count")
	if err != nil {
		return nil, err
	}
	g := NewDependencyGraph()
	for i := uint64(0); i < count; i++ {
		size, err := readUvarint("identity length")
		if err != nil {
			return nil, err
		}
		if size > maxIdentityBytes {
			return nil, zerr.With(zerr.Wrap(ErrGraphDecode, "identity too large"), "size", size)
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, zerr.With(zerr.Wrap(ErrGraphDecode, "failed to read identity"), "cause", err)
		}
		lp, err := DecodeLocatedProperty(buf)
		if err != nil {
			return nil, err
		}
		if idx := g.GetOrAdd(lp); uint64(idx) != i {
			return nil, zerr.With(zerr.Wrap(ErrGraphDecode, "duplicate identity"), "index", i)
		}
	}
	for src := 0; src < g.Len(); src++ {
		edges, err := readUvarint("edge count")
		if err != nil {
			return nil, err
		}
		for j := uint64(0); j < edges; j++ {
			tgt, err := readUvarint("edge target")
			if err != nil {
				return nil, err
			}
			if tgt >= count {
				return nil, zerr.With(zerr.Wrap(ErrGraphDecode, "edge target out of range"), "target", tgt)
			}
			g.AddEdge(src, int(tgt))
		}
	}
	return g, nil
}
