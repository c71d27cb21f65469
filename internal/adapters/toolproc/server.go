package toolproc

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/zerr"
)

var (
	errTraceEnded = errors.New("trace ended")
	errStopped    = errors.New("stopped")
)

type bufferSink struct {
	events []domain.TraceEvent
}

func (b *bufferSink) Accept(ev domain.TraceEvent) {
	b.events = append(b.events, ev)
}

type server struct {
	dec     *json.Decoder
	enc     *json.Encoder
	session ports.Session
	buf     *bufferSink
}

// Serve answers tool protocol requests read from r with session, writing responses to w. It
// returns nil when the client closes the session or r reaches EOF.
func Serve(ctx context.Context, r io.Reader, w io.Writer, session ports.Session) error {
	s := &server{
		dec:     json.NewDecoder(r),
		enc:     json.NewEncoder(w),
		session: session,
	}
	err := s.loop(ctx, false)
	if errors.Is(err, errStopped) {
		return nil
	}
	return err
}

func (s *server) loop(ctx context.Context, inTrace bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req Request
		if err := s.dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				_ = s.session.Close()
				return errStopped
			}
			return zerr.Wrap(domain.ErrToolProtocol, err.Error())
		}

		switch req.Op {
		case OpTraceBegin:
			if inTrace {
				if err := s.reply(errorResponse(req.ID, zerr.Wrap(domain.ErrToolProtocol, "trace already active"))); err != nil {
					return err
				}
				continue
			}
			if err := s.beginTrace(ctx, req); err != nil {
				return err
			}
		case OpTraceEnd:
			if !inTrace {
				if err := s.reply(errorResponse(req.ID, zerr.Wrap(domain.ErrToolProtocol, "no active trace"))); err != nil {
					return err
				}
				continue
			}
			if err := s.reply(Response{ID: req.ID}); err != nil {
				return err
			}
			return errTraceEnded
		case OpClose:
			err := s.session.Close()
			resp := Response{ID: req.ID}
			if err != nil {
				resp = errorResponse(req.ID, err)
			}
			if err := s.reply(resp); err != nil {
				return err
			}
			return errStopped
		default:
			if err := s.reply(s.handle(ctx, req)); err != nil {
				return err
			}
		}
	}
}

func (s *server) beginTrace(ctx context.Context, req Request) error {
	buf := &bufferSink{}
	var started bool
	err := s.session.Trace(ctx, buf, req.Capture, func(ctx context.Context) error {
		s.buf = buf
		started = true
		if err := s.reply(Response{ID: req.ID}); err != nil {
			return err
		}
		return s.loop(ctx, true)
	})
	s.buf = nil
	switch {
	case errors.Is(err, errTraceEnded):
		return nil
	case err != nil && !started:
		return s.reply(errorResponse(req.ID, err))
	default:
		return err
	}
}

func (s *server) handle(ctx context.Context, req Request) Response {
	switch req.Op {
	case OpEvaluate:
		if req.Prop == nil {
			return errorResponse(req.ID, zerr.Wrap(domain.ErrToolProtocol, "evaluate without prop"))
		}
		ev, err := s.session.Evaluate(ctx, *req.Prop)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, Value: &ev.Value, Unattached: ev.Unattached}
	case OpRecompute:
		if req.Prop == nil {
			return errorResponse(req.ID, zerr.Wrap(domain.ErrToolProtocol, "recompute without prop"))
		}
		rc, err := s.session.Recompute(ctx, *req.Prop)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, Value: &rc.Value, AfterReset: rc.AfterReset}
	case OpFind:
		if req.Entry == nil {
			return errorResponse(req.ID, zerr.Wrap(domain.ErrToolProtocol, "find without entry"))
		}
		props, err := s.session.Find(ctx, *req.Entry)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, Props: props}
	case OpInvalidate:
		if err := s.session.InvalidateLocators(ctx); err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID}
	default:
		return errorResponse(req.ID, zerr.With(zerr.Wrap(domain.ErrToolProtocol, "unknown operation"), "op", req.Op))
	}
}

func (s *server) reply(resp Response) error {
	if s.buf != nil && len(s.buf.events) > 0 {
		resp.Events = s.buf.events
		s.buf.events = nil
	}
	if err := s.enc.Encode(resp); err != nil {
		return zerr.Wrap(err, "failed to write response")
	}
	return nil
}
