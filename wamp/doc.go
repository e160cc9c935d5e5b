// Package wamp holds the value types shared by the router, its sessions and
// the components that observe it: identifiers, URIs, argument containers,
// lifecycle details, routed messages and meta events.
//
// The types mirror WAMP's data model closely enough that a transport adapter
// can translate them to and from wire messages, but this package performs no
// serialization of its own beyond plain JSON struct tags.
package wamp
