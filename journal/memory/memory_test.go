package memory

import (
	"context"
	"testing"

	"github.com/ggoodman/wamp-router-go/journal"
	"github.com/ggoodman/wamp-router-go/journal/journaltest"
	"github.com/stretchr/testify/require"
)

func TestMemoryJournal(t *testing.T) {
	journaltest.RunJournalTests(t, func(t *testing.T) journal.Journal {
		return New()
	})
}

func TestInvalidAfterID(t *testing.T) {
	err := New().Read(context.Background(), "realm1", "not-an-id", func(context.Context, journal.Entry) error { return nil })
	require.ErrorIs(t, err, journal.ErrInvalidID)
}
