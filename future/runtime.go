package future

import "errors"

// ErrRuntimeClosed is returned by Submit once a runtime has been closed.
var ErrRuntimeClosed = errors.New("runtime closed")

// Runtime is the execution context router logic runs on.
type Runtime interface {
	// Submit schedules fn on the runtime's single execution context. Work is
	// executed in submission order.
	Submit(fn func()) error

	// Deliver hands a completion callback to the runtime. Callbacks handed
	// over in sequence run in that sequence.
	Deliver(fn func())
}

// inline delivers callbacks on the calling goroutine. It backs futures
// created without a runtime.
type inline struct{}

func (inline) Submit(fn func()) error {
	fn()
	return nil
}

func (inline) Deliver(fn func()) { fn() }
