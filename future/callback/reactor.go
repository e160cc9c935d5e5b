package callback

import (
	"log/slog"
	"sync"

	"github.com/eapache/queue"
	"github.com/ggoodman/wamp-router-go/future"
)

var _ future.Runtime = (*Reactor)(nil)

// Reactor serializes submitted work through a trampoline.
type Reactor struct {
	log *slog.Logger

	mu       sync.Mutex
	tasks    *queue.Queue
	draining bool
	closed   bool
}

// Option configures a Reactor.
type Option func(*Reactor)

// WithLogger sets the logger used to report recovered panics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reactor) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a reactor.
func New(opts ...Option) *Reactor {
	r := &Reactor{log: slog.Default(), tasks: queue.New()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Submit queues fn. If no other goroutine is draining the queue, the caller
// drains it before Submit returns.
func (r *Reactor) Submit(fn func()) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return future.ErrRuntimeClosed
	}
	r.tasks.Add(fn)
	if r.draining {
		r.mu.Unlock()
		return nil
	}
	r.draining = true
	r.mu.Unlock()

	r.drain()
	return nil
}

// Deliver runs fn immediately.
func (r *Reactor) Deliver(fn func()) {
	r.execute(fn)
}

// Close rejects further submissions. Queued work is still drained by the
// goroutine currently draining.
func (r *Reactor) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Reactor) drain() {
	for {
		r.mu.Lock()
		if r.tasks.Length() == 0 {
			r.draining = false
			r.mu.Unlock()
			return
		}
		fn := r.tasks.Remove().(func())
		r.mu.Unlock()
		r.execute(fn)
	}
}

func (r *Reactor) execute(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("reactor.task_panic", slog.Any("panic", rec))
		}
	}()
	fn()
}
