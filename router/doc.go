// Package router implements a realm-scoped message router: publish/subscribe
// and call/register routing between sessions attached to the same realm.
//
// Layers & Roles
//
//	Factory        -> one Router per realm name, created on demand and cached
//	Router         -> a realm's dispatch tables (topics, procedures, sessions)
//	SessionFactory -> attaches Sessions to their realm's Router and drives
//	                  the join/leave lifecycle
//	Session        -> a participant; its operations return futures
//
// # Execution model
//
// Every mutation of router state runs on a single future.Runtime shared by
// the Factory. Session operations may be called from any goroutine: they
// check the session state at the call site, then submit the work to the
// runtime and return a future. Work submitted by one session is executed in
// submission order, so a publish issued after a subscribe confirmed on the
// same session reaches that subscriber.
//
// Publish delivery is synchronous on the runtime: every subscriber handler
// has returned before the publish future resolves. Handlers that need to
// block must start their own asynchronous work.
//
// # Lifecycle
//
//	Created -> Attaching -> Joined -> Leaving -> Detached
//
// A failed attach moves a session straight to Detached and rejects the Add
// future with an *AttachError. Leaving removes every subscription and
// registration owned by the session and rejects its pending futures with
// ErrSessionGone before the Handler's OnLeave fires.
//
// # Matching
//
// Topics and procedures match exactly. Procedures have at most one
// registrant; the first registration wins.
package router
