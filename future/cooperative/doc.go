// Package cooperative implements future.Runtime as a single-goroutine event
// loop. Submitted work and completion callbacks share one FIFO run queue, so
// a callback attached to a future runs after everything that was already
// scheduled when the future completed.
//
// Characteristics
//
//	Goroutines   : exactly one, the caller of Run / RunUntil
//	Ordering     : strict FIFO across Submit and Deliver
//	Queue        : unbounded (github.com/eapache/queue)
//	Panics       : recovered per task and logged; the loop keeps running
//
// Example:
//
//	loop := cooperative.New()
//	go loop.Run(ctx)
//	defer loop.Close()
package cooperative
