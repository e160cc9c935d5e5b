// Package callback implements future.Runtime in the style of a callback
// reactor: there is no loop goroutine. Submitted work runs on whichever
// goroutine submits it first, while work submitted during that run (from
// the same or other goroutines) is queued and drained by the same caller,
// keeping execution serialized. Completion callbacks fire inline, on the
// goroutine that completes the future.
package callback
