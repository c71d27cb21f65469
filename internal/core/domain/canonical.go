package domain

import (
	"encoding/binary"

	"go.trai.ch/zerr"
)

// Tags prefixing every canonical record. They keep the encoding self-delimiting so that two
// different structures never produce the same bytes.
const (
	tagLocator byte = iota + 1
	tagStepChild
	tagStepNTA
	tagStepTAL
	tagProperty
	tagArg
	tagValue
	tagException
	tagLine
)

// canonicalWriter appends the canonical byte form of identity data.
type canonicalWriter struct {
	buf []byte
}

func (w *canonicalWriter) tag(t byte) {
	w.buf = append(w.buf, t)
}

func (w *canonicalWriter) uvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

func (w *canonicalWriter) varint(v int64) {
	w.buf = binary.AppendVarint(w.buf, v)
}

func (w *canonicalWriter) str(s string) {
	w.uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *canonicalWriter) bytes() []byte {
	return w.buf
}

// canonicalReader decodes data produced by canonicalWriter.
// Decoding errors are collected in err; once set, every read returns a zero value.
type canonicalReader struct {
	buf []byte
	err error
}

func (r *canonicalReader) fail(msg string) {
	if r.err == nil {
		r.err = zerr.Wrap(ErrGraphDecode, msg)
	}
}

func (r *canonicalReader) tag() byte {
	if r.err != nil {
		return 0
	}
	if len(r.buf) == 0 {
		r.fail("unexpected end of identity")
		return 0
	}
	t := r.buf[0]
	r.buf = r.buf[1:]
	return t
}

func (r *canonicalReader) expect(t byte) {
	if got := r.tag(); r.err == nil && got != t {
		r.fail("unexpected record tag")
	}
}

func (r *canonicalReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.fail("bad uvarint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *canonicalReader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.fail("bad varint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *canonicalReader) count() int {
	n := r.uvarint()
	if n > uint64(len(r.buf)) {
		r.fail("count exceeds remaining input")
		return 0
	}
	return int(n)
}

func (r *canonicalReader) str() string {
	n := r.count()
	if r.err != nil {
		return ""
	}
	s := string(r.buf[:n])
	r.buf = r.buf[n:]
	return s
}

// encodingPanic aborts on an invariant violation in canonical encoding.
func encodingPanic(what string) {
	panic(zerr.With(zerr.Wrap(ErrCanonicalEncoding, "invalid record"), "record", what))
}
