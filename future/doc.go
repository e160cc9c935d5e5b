// Package future provides a single-assignment completion cell, Future[T],
// and the Runtime interface that decides where work and completion
// callbacks execute.
//
// Router and session code is written once against Future and Runtime. The
// concrete runtime is chosen at process start:
//
//	cooperative : a single-goroutine event loop; callbacks are queued behind
//	              already scheduled work (call-soon semantics)
//	callback    : no loop goroutine; work runs on the submitting goroutine,
//	              callbacks fire inline when the future completes
//
// Both keep router state on one logical thread of control. Neither blocks
// an OS thread while waiting: suspension is expressed by attaching callbacks.
// Await exists for code that lives outside the runtime, such as tests and
// process wiring, and must never be called from inside a runtime task.
package future
