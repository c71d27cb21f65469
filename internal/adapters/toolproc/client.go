package toolproc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/zerr"
)

// closeTimeout bounds both the close handshake and the wait for the tool to exit.
var closeTimeout = 5 * time.Second

// Evaluator implements ports.Evaluator by spawning one tool process per session.
type Evaluator struct {
	logger ports.Logger
}

// NewEvaluator creates a new Evaluator.
func NewEvaluator(logger ports.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Open starts the tool. The environment is the process environment overlaid with tool.Env.
func (e *Evaluator) Open(ctx context.Context, tool domain.ToolConfig) (ports.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env := resolveEnvironment(os.Environ(), tool.Env)

	executable := tool.Command
	if !filepath.IsAbs(executable) {
		if lp, err := lookPath(executable, env); err == nil {
			executable = lp
		}
	}

	// The process outlives ctx; it is stopped by Close.
	cmd := exec.Command(executable, tool.Args...) //nolint:gosec // user provided command
	if len(cmd.Args) > 0 {
		cmd.Args[0] = tool.Command
	}
	cmd.Env = env
	stderr := &logWriter{logger: e.logger, prefix: filepath.Base(tool.Command) + ": "}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrToolStartFailed, err.Error()), "command", tool.String())
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrToolStartFailed, err.Error()), "command", tool.String())
	}
	if err := cmd.Start(); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrToolStartFailed, err.Error()), "command", tool.String())
	}

	return newSession(stdout, stdin, func(answered bool) error {
		_ = stdin.Close()
		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()
		// A tool that did not answer the close request is not given a grace period.
		grace := closeTimeout
		if !answered {
			grace = 0
		}
		timer := time.NewTimer(grace)
		defer timer.Stop()
		var waitErr error
		select {
		case waitErr = <-done:
		case <-timer.C:
			_ = cmd.Process.Kill()
			waitErr = <-done
		}
		stderr.Flush()
		if waitErr != nil {
			return zerr.With(zerr.Wrap(waitErr, "tool exited with error"), "command", tool.String())
		}
		return nil
	}), nil
}

// Session is the client side of one tool process.
type Session struct {
	mu      sync.Mutex
	dec     *json.Decoder
	enc     *json.Encoder
	nextID  int64
	sink    ports.TraceSink
	closed  bool
	closeFn func(answered bool) error
}

func newSession(r io.Reader, w io.Writer, closeFn func(answered bool) error) *Session {
	return &Session{
		dec:     json.NewDecoder(r),
		enc:     json.NewEncoder(w),
		closeFn: closeFn,
	}
}

func (s *Session) call(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrSessionClosed
	}

	s.nextID++
	req.ID = s.nextID
	if err := s.enc.Encode(req); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrToolProtocol, err.Error()), "op", req.Op)
	}
	var resp Response
	if err := s.dec.Decode(&resp); err != nil {
		// The decoder has consumed the whole line, so the stream stays usable after a value
		// that has no canonical encoding.
		if errors.Is(err, domain.ErrValueEncoding) || errors.Is(err, domain.ErrToolProtocol) {
			return nil, zerr.With(err, "op", req.Op)
		}
		return nil, zerr.With(zerr.Wrap(domain.ErrToolProtocol, err.Error()), "op", req.Op)
	}
	if resp.ID != req.ID {
		err := zerr.Wrap(domain.ErrToolProtocol, "response id mismatch")
		return nil, zerr.With(zerr.With(err, "want", req.ID), "got", resp.ID)
	}
	if s.sink != nil {
		for _, ev := range resp.Events {
			s.sink.Accept(ev)
		}
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Evaluate asks the tool to evaluate lp.
func (s *Session) Evaluate(ctx context.Context, lp domain.LocatedProperty) (domain.Evaluation, error) {
	resp, err := s.call(ctx, Request{Op: OpEvaluate, Prop: &lp})
	if err != nil {
		return domain.Evaluation{}, err
	}
	if resp.Value == nil {
		return domain.Evaluation{}, zerr.Wrap(domain.ErrToolProtocol, "evaluate response without value")
	}
	return domain.Evaluation{Value: *resp.Value, Unattached: resp.Unattached}, nil
}

// Recompute asks the tool to invoke lp's equation directly.
func (s *Session) Recompute(ctx context.Context, lp domain.LocatedProperty) (domain.Recomputation, error) {
	resp, err := s.call(ctx, Request{Op: OpRecompute, Prop: &lp})
	if err != nil {
		return domain.Recomputation{}, err
	}
	if resp.Value == nil {
		return domain.Recomputation{}, zerr.Wrap(domain.ErrToolProtocol, "recompute response without value")
	}
	return domain.Recomputation{Value: *resp.Value, AfterReset: resp.AfterReset}, nil
}

// Find asks the tool for the properties ep selects.
func (s *Session) Find(ctx context.Context, ep domain.EntryPoint) ([]domain.LocatedProperty, error) {
	resp, err := s.call(ctx, Request{Op: OpFind, Entry: &ep})
	if err != nil {
		return nil, err
	}
	return resp.Props, nil
}

// InvalidateLocators asks the tool to drop its locator cache.
func (s *Session) InvalidateLocators(ctx context.Context) error {
	_, err := s.call(ctx, Request{Op: OpInvalidate})
	return err
}

// Trace brackets fn with trace_begin and trace_end. Events arrive with the response of the
// request that raised them.
func (s *Session) Trace(ctx context.Context, sink ports.TraceSink, captureValues bool, fn func(context.Context) error) error {
	if _, err := s.call(ctx, Request{Op: OpTraceBegin, Capture: captureValues}); err != nil {
		return err
	}
	s.setSink(sink)
	defer s.setSink(nil)

	fnErr := fn(ctx)
	_, endErr := s.call(context.WithoutCancel(ctx), Request{Op: OpTraceEnd})
	if fnErr != nil {
		return fnErr
	}
	return endErr
}

func (s *Session) setSink(sink ports.TraceSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Close ends the session and waits for the tool to exit. A tool that neither answers the
// close request nor exits within closeTimeout is killed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.nextID++
	req := Request{ID: s.nextID, Op: OpClose}
	s.mu.Unlock()

	// Calls fail with ErrSessionClosed from here on, so the handshake owns the stream.
	handshake := make(chan struct{})
	go func() {
		defer close(handshake)
		if err := s.enc.Encode(req); err != nil {
			return
		}
		var resp Response
		_ = s.dec.Decode(&resp)
	}()

	timer := time.NewTimer(closeTimeout)
	defer timer.Stop()
	answered := true
	select {
	case <-handshake:
	case <-timer.C:
		answered = false
	}

	if s.closeFn == nil {
		return nil
	}
	return s.closeFn(answered)
}

// logWriter forwards complete lines written by the tool to the logger.
type logWriter struct {
	logger ports.Logger
	prefix string

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Keep the partial line for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.logger.Debug(w.prefix + line[:len(line)-1])
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *logWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.logger.Debug(w.prefix + w.buf.String())
		w.buf.Reset()
	}
}
