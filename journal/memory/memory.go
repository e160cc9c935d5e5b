// Package memory provides an in-process journal.Journal. Entries live for the
// lifetime of the process, so it suits single-node routers, embedders that
// read the journal in process, and tests. cmd/wamprouter selects it with
// WAMP_JOURNAL_MEMORY.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/ggoodman/wamp-router-go/journal"
)

// Journal implements journal.Journal with a slice per realm.
type Journal struct {
	mu     sync.Mutex
	realms map[string]*realmLog
	lastID uint64
}

type realmLog struct {
	entries []journal.Entry
	ids     []uint64
	// changed is closed and replaced on every append.
	changed chan struct{}
}

// New creates an empty Journal.
func New() *Journal {
	return &Journal{realms: make(map[string]*realmLog)}
}

func (j *Journal) realm(name string) *realmLog {
	rl, ok := j.realms[name]
	if !ok {
		rl = &realmLog{changed: make(chan struct{})}
		j.realms[name] = rl
	}
	return rl
}

// Append implements journal.Journal.
func (j *Journal) Append(ctx context.Context, realm string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.lastID++
	id := j.lastID
	rl := j.realm(realm)
	rl.entries = append(rl.entries, journal.Entry{ID: strconv.FormatUint(id, 10), Data: append([]byte(nil), data...)})
	rl.ids = append(rl.ids, id)
	close(rl.changed)
	rl.changed = make(chan struct{})
	return strconv.FormatUint(id, 10), nil
}

// Read implements journal.Journal.
func (j *Journal) Read(ctx context.Context, realm string, afterID string, handler journal.Handler) error {
	j.mu.Lock()
	var after uint64
	switch afterID {
	case "":
		after = j.lastID
	default:
		n, err := strconv.ParseUint(afterID, 10, 64)
		if err != nil {
			j.mu.Unlock()
			return fmt.Errorf("%w: %q", journal.ErrInvalidID, afterID)
		}
		after = n
	}
	j.mu.Unlock()

	for {
		j.mu.Lock()
		rl := j.realm(realm)
		var batch []journal.Entry
		for i, id := range rl.ids {
			if id > after {
				batch = append(batch, rl.entries[i])
			}
		}
		changed := rl.changed
		j.mu.Unlock()

		for _, e := range batch {
			if err := handler(ctx, e); err != nil {
				return err
			}
			after, _ = strconv.ParseUint(e.ID, 10, 64)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Cleanup implements journal.Journal.
func (j *Journal) Cleanup(ctx context.Context, realm string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	rl, ok := j.realms[realm]
	if !ok {
		return nil
	}
	// Ids are journal-wide, so readers tailing realm simply see the next
	// append.
	rl.entries = nil
	rl.ids = nil
	return nil
}

var _ journal.Journal = (*Journal)(nil)
