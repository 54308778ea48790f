package protocol

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/mmizutani/wandbox/pkg/errors"
)

// WriteMux serializes many concurrent frame producers onto one socket.
// Submissions batch while a write is already in flight so a burst of
// stdout/stderr chunks becomes one gathered write instead of many.
type WriteMux struct {
	w io.Writer

	mu       sync.Mutex
	writing  bool
	front    [][]byte
	frontFns []func(error)
	back     [][]byte
	backFns  []func(error)

	closed bool
}

// NewWriteMux wraps w for serialized, batched frame writes.
func NewWriteMux(w io.Writer) *WriteMux {
	return &WriteMux{w: w}
}

// Submit encodes cmd/data as a frame, enqueues it, and schedules onDone
// (if non-nil) to run once the frame has actually gone out on the wire
// (or failed to). If no write is in flight, Submit performs the write
// itself before returning; otherwise the frame waits in the back queue
// for the in-flight writer's next batch and Submit returns at once.
func (m *WriteMux) Submit(cmd string, data []byte, onDone func(error)) error {
	frame, err := EncodeFrame(cmd, data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if onDone != nil {
			onDone(errors.New(errors.SessionClosed))
		}
		return errors.New(errors.SessionClosed)
	}
	m.back = append(m.back, frame)
	m.backFns = append(m.backFns, onDone)
	m.mu.Unlock()

	m.flush()
	return nil
}

// SubmitSync submits a frame and blocks until it has been flushed.
func (m *WriteMux) SubmitSync(cmd string, data []byte) error {
	done := make(chan error, 1)
	if err := m.Submit(cmd, data, func(err error) { done <- err }); err != nil {
		return err
	}
	return <-done
}

func (m *WriteMux) flush() {
	m.mu.Lock()
	if m.writing || len(m.back) == 0 {
		m.mu.Unlock()
		return
	}
	m.front, m.back = m.back, nil
	m.frontFns, m.backFns = m.backFns, nil
	m.writing = true
	front := m.front
	m.mu.Unlock()

	bufs := net.Buffers(front)
	_, writeErr := bufs.WriteTo(m.w)

	m.onWrote(writeErr)
}

func (m *WriteMux) onWrote(writeErr error) {
	m.mu.Lock()
	fns := m.frontFns
	m.front = nil
	m.frontFns = nil
	m.writing = false
	hasMore := len(m.back) > 0
	m.mu.Unlock()

	for _, fn := range fns {
		if fn != nil {
			fn(writeErr)
		}
	}

	if hasMore {
		m.flush()
	}
}

// Close marks the mux closed; subsequent Submit calls fail immediately.
func (m *WriteMux) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Drain blocks until the current back queue has been flushed or ctx is
// done, whichever comes first. Useful at session teardown.
func (m *WriteMux) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.mu.Lock()
				idle := !m.writing && len(m.back) == 0
				m.mu.Unlock()
				if idle {
					close(done)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
