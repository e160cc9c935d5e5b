// Package journal keeps an ordered, per-realm log of router meta events so
// that routing activity can be audited or replayed by processes outside the
// router.
package journal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ggoodman/wamp-router-go/wamp"
)

// FromStart, passed as afterID to Read, replays a realm's log from its first
// entry.
const FromStart = "0"

// ErrInvalidID is returned by Read for an afterID the journal never issued.
var ErrInvalidID = errors.New("journal: invalid entry id")

// Journal is an append-only log partitioned by realm. Entry ids increase
// monotonically within a realm.
type Journal interface {
	// Append stores data at the end of realm's log and returns its id.
	Append(ctx context.Context, realm string, data []byte) (id string, err error)

	// Read calls handler for each entry of realm after afterID, then keeps
	// tailing the log until ctx ends or handler returns an error. An empty
	// afterID starts with the next entry appended.
	Read(ctx context.Context, realm string, afterID string, handler Handler) error

	// Cleanup drops every entry of realm.
	Cleanup(ctx context.Context, realm string) error
}

// Handler consumes journal entries in order.
type Handler func(ctx context.Context, e Entry) error

// Entry is a single journal record.
type Entry struct {
	ID   string `json:"id"`
	Data []byte `json:"data"`
}

// Decode unmarshals an entry written by a Recorder.
func Decode(e Entry) (wamp.MetaEvent, error) {
	var ev wamp.MetaEvent
	err := json.Unmarshal(e.Data, &ev)
	return ev, err
}
