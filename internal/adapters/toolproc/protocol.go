// Package toolproc talks to evaluator tools over line-delimited JSON on stdin and stdout.
package toolproc

import (
	"errors"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/zerr"
)

// Operations of the tool protocol.
const (
	OpEvaluate   = "evaluate"
	OpRecompute  = "recompute"
	OpFind       = "find"
	OpInvalidate = "invalidate"
	OpTraceBegin = "trace_begin"
	OpTraceEnd   = "trace_end"
	OpClose      = "close"
)

// Request is one line sent to the tool.
type Request struct {
	ID      int64                   `json:"id"`
	Op      string                  `json:"op"`
	Prop    *domain.LocatedProperty `json:"prop,omitempty"`
	Entry   *domain.EntryPoint      `json:"entry,omitempty"`
	Capture bool                    `json:"capture,omitempty"`
}

// Response is one line written by the tool. Events carries the trace events raised while the
// request was handled.
type Response struct {
	ID         int64                    `json:"id"`
	Error      string                   `json:"error,omitempty"`
	Code       string                   `json:"code,omitempty"`
	Value      *domain.EvaluatedValue   `json:"value,omitempty"`
	Unattached bool                     `json:"unattached,omitempty"`
	AfterReset bool                     `json:"afterReset,omitempty"`
	Props      []domain.LocatedProperty `json:"props,omitempty"`
	Events     []domain.TraceEvent      `json:"events,omitempty"`
}

var errorCodes = []struct {
	code     string
	sentinel error
}{
	{code: "node_not_found", sentinel: domain.ErrNodeNotFound},
	{code: "value_encoding", sentinel: domain.ErrValueEncoding},
	{code: "no_compute_routine", sentinel: domain.ErrNoComputeRoutine},
	{code: "session_closed", sentinel: domain.ErrSessionClosed},
	{code: "protocol", sentinel: domain.ErrToolProtocol},
	{code: "config", sentinel: domain.ErrConfigInvalid},
}

func codeOf(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.sentinel) {
			return c.code
		}
	}
	return ""
}

// err rebuilds the error a response carries, keeping the sentinel its code names.
func (r *Response) err() error {
	if r.Error == "" && r.Code == "" {
		return nil
	}
	for _, c := range errorCodes {
		if c.code == r.Code {
			return zerr.Wrap(c.sentinel, r.Error)
		}
	}
	return zerr.With(zerr.New(r.Error), "code", r.Code)
}

func errorResponse(id int64, err error) Response {
	return Response{ID: id, Error: err.Error(), Code: codeOf(err)}
}
