package cooperative

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/ggoodman/wamp-router-go/future"
)

// ErrAlreadyRunning is returned when Run is entered twice concurrently.
var ErrAlreadyRunning = errors.New("loop already running")

var _ future.Runtime = (*Loop)(nil)

// Loop is a cooperative single-goroutine event loop.
type Loop struct {
	log *slog.Logger

	mu     sync.Mutex
	tasks  *queue.Queue
	closed bool

	wake    chan struct{}
	quit    chan struct{}
	running atomic.Bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used to report recovered task panics.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.log = l
		}
	}
}

// New creates a loop. Nothing executes until Run or RunUntil is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		log:   slog.Default(),
		tasks: queue.New(),
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Submit appends fn to the run queue.
func (l *Loop) Submit(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return future.ErrRuntimeClosed
	}
	l.tasks.Add(fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Deliver queues a completion callback. After Close the callback runs
// inline on the completing goroutine so that no completion is lost.
func (l *Loop) Deliver(fn func()) {
	if err := l.Submit(fn); err != nil {
		l.execute(fn)
	}
}

// Pending reports the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length()
}

// Run executes queued tasks until ctx ends or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	return l.RunUntil(ctx, nil)
}

// RunUntil executes queued tasks on the calling goroutine until done is
// closed, ctx ends, or Close is called. Tasks still queued when done closes
// stay queued for the next run. After Close the remaining queue is drained
// before returning.
func (l *Loop) RunUntil(ctx context.Context, done <-chan struct{}) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)

	for {
		for {
			select {
			case <-done:
				return nil
			default:
			}
			fn, ok := l.next()
			if !ok {
				break
			}
			l.execute(fn)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		case <-l.quit:
			for {
				fn, ok := l.next()
				if !ok {
					return nil
				}
				l.execute(fn)
			}
		case <-l.wake:
		}
	}
}

// Close stops accepting work. A running loop drains what is queued and
// returns.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.quit)
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tasks.Length() == 0 {
		return nil, false
	}
	return l.tasks.Remove().(func()), true
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("loop.task_panic", slog.Any("panic", r))
		}
	}()
	fn()
}
