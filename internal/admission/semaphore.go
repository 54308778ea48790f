// Package admission caps the number of concurrent sessions a listener
// will run at once, admitting accepted connections through a counting
// semaphore built on a buffered channel of tokens. Any number of
// callers may wait in Acquire at the same time.
package admission

import "context"

// RejectObserver is the narrow metrics hook AdmissionSem calls when a
// waiter gives up before acquiring a permit. Nil is a valid no-op.
type RejectObserver interface {
	ObserveAdmissionRejected()
}

// Sem is a counting semaphore sized to max_connections.
type Sem struct {
	tokens   chan struct{}
	observer RejectObserver
}

// New creates a semaphore with capacity permits available immediately.
func New(capacity int, observer RejectObserver) *Sem {
	if capacity <= 0 {
		capacity = 1
	}
	s := &Sem{tokens: make(chan struct{}, capacity), observer: observer}
	for i := 0; i < capacity; i++ {
		s.tokens <- struct{}{}
	}
	return s
}

// Permit is released exactly once to return its unit to the pool.
type Permit struct {
	sem      *Sem
	released bool
}

// Acquire blocks until a permit is available or ctx is done.
func (s *Sem) Acquire(ctx context.Context) (*Permit, error) {
	select {
	case <-s.tokens:
		return &Permit{sem: s}, nil
	case <-ctx.Done():
		if s.observer != nil {
			s.observer.ObserveAdmissionRejected()
		}
		return nil, ctx.Err()
	}
}

// Release returns the permit's unit to the pool. Safe to call multiple
// times; only the first call has effect. Must be called on every exit
// path of the session that acquired it, including panics (use defer).
func (p *Permit) Release() {
	if p == nil || p.released {
		return
	}
	p.released = true
	p.sem.tokens <- struct{}{}
}
