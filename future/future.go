package future

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrAlreadyCompleted is returned when resolving or rejecting a future
	// that is no longer pending.
	ErrAlreadyCompleted = errors.New("future already completed")
	// ErrNilRejection is returned when rejecting a future with a nil error.
	ErrNilRejection = errors.New("future rejected with nil error")
	// ErrPending is returned by Result while the future is pending.
	ErrPending = errors.New("future pending")
)

type state uint8

const (
	statePending state = iota
	stateResolved
	stateRejected
)

type callbacks[T any] struct {
	onSuccess func(T)
	onFailure func(error)
}

// Future is a single-assignment completion cell. It holds at most one of a
// value or an error and never changes after completion.
type Future[T any] struct {
	rt Runtime

	mu        sync.Mutex
	state     state
	value     T
	err       error
	callbacks []callbacks[T]
	done      chan struct{}
}

// New returns a pending future whose callbacks are delivered through rt. A
// nil rt delivers callbacks inline.
func New[T any](rt Runtime) *Future[T] {
	if rt == nil {
		rt = inline{}
	}
	return &Future[T]{rt: rt, done: make(chan struct{})}
}

// Resolved returns a future already resolved with v.
func Resolved[T any](rt Runtime, v T) *Future[T] {
	f := New[T](rt)
	_ = f.Resolve(v)
	return f
}

// Rejected returns a future already rejected with err.
func Rejected[T any](rt Runtime, err error) *Future[T] {
	f := New[T](rt)
	_ = f.Reject(err)
	return f
}

// Resolve completes the future with v and hands every attached success
// callback to the runtime in attachment order.
func (f *Future[T]) Resolve(v T) error {
	f.mu.Lock()
	if f.state != statePending {
		f.mu.Unlock()
		return ErrAlreadyCompleted
	}
	f.state = stateResolved
	f.value = v
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range cbs {
		if cb.onSuccess != nil {
			fn := cb.onSuccess
			f.rt.Deliver(func() { fn(v) })
		}
	}
	return nil
}

// Reject completes the future with err and hands every attached failure
// callback to the runtime in attachment order.
func (f *Future[T]) Reject(err error) error {
	if err == nil {
		return ErrNilRejection
	}
	f.mu.Lock()
	if f.state != statePending {
		f.mu.Unlock()
		return ErrAlreadyCompleted
	}
	f.state = stateRejected
	f.err = err
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range cbs {
		if cb.onFailure != nil {
			fn := cb.onFailure
			f.rt.Deliver(func() { fn(err) })
		}
	}
	return nil
}

// Then attaches callbacks. On an already completed future the matching
// callback is handed to the runtime immediately. Either callback may be nil.
func (f *Future[T]) Then(onSuccess func(T), onFailure func(error)) {
	f.mu.Lock()
	switch f.state {
	case statePending:
		f.callbacks = append(f.callbacks, callbacks[T]{onSuccess: onSuccess, onFailure: onFailure})
		f.mu.Unlock()
	case stateResolved:
		v := f.value
		f.mu.Unlock()
		if onSuccess != nil {
			f.rt.Deliver(func() { onSuccess(v) })
		}
	case stateRejected:
		err := f.err
		f.mu.Unlock()
		if onFailure != nil {
			f.rt.Deliver(func() { onFailure(err) })
		}
	}
}

// Done is closed once the future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the stored outcome, or ErrPending if there is none yet.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case stateResolved:
		return f.value, nil
	case stateRejected:
		var zero T
		return zero, f.err
	default:
		var zero T
		return zero, ErrPending
	}
}

// Await blocks until the future completes or ctx ends. It must not be called
// from a task running on the future's runtime.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Map returns a future completed with fn's result once f resolves, or with
// f's error if it rejects. fn runs wherever f's callbacks are delivered.
func Map[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out := New[U](f.rt)
	f.Then(func(v T) {
		u, err := fn(v)
		if err != nil {
			_ = out.Reject(err)
			return
		}
		_ = out.Resolve(u)
	}, func(err error) {
		_ = out.Reject(err)
	})
	return out
}
