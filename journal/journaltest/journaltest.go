// Package journaltest is a conformance suite for journal.Journal
// implementations.
package journaltest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/wamp-router-go/journal"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Factory creates a journal instance for one test.
type Factory func(t *testing.T) journal.Journal

var errStop = errors.New("stop")

// RunJournalTests runs the complete journal suite against factory.
func RunJournalTests(t *testing.T, factory Factory) {
	t.Run("ReadFromStart", func(t *testing.T) { testReadFromStart(t, factory) })
	t.Run("ResumeAfterID", func(t *testing.T) { testResumeAfterID(t, factory) })
	t.Run("TailNewEntries", func(t *testing.T) { testTailNewEntries(t, factory) })
	t.Run("RealmIsolation", func(t *testing.T) { testRealmIsolation(t, factory) })
	t.Run("ContextCancellation", func(t *testing.T) { testContextCancellation(t, factory) })
	t.Run("HandlerErrorStopsRead", func(t *testing.T) { testHandlerErrorStopsRead(t, factory) })
	t.Run("Cleanup", func(t *testing.T) { testCleanup(t, factory) })
}

// realmName keeps runs against shared backends apart.
func realmName(base string) string {
	return base + "." + uuid.NewString()
}

func appendAll(t *testing.T, j journal.Journal, realm string, payloads ...string) []string {
	t.Helper()
	ids := make([]string, len(payloads))
	for i, p := range payloads {
		id, err := j.Append(context.Background(), realm, []byte(p))
		require.NoError(t, err)
		require.NotEmpty(t, id)
		ids[i] = id
	}
	return ids
}

// collect reads until n entries arrived or ctx ends.
func collect(ctx context.Context, j journal.Journal, realm, afterID string, n int) ([]journal.Entry, error) {
	var got []journal.Entry
	err := j.Read(ctx, realm, afterID, func(_ context.Context, e journal.Entry) error {
		got = append(got, e)
		if len(got) >= n {
			return errStop
		}
		return nil
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	return got, err
}

func payloads(entries []journal.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Data)
	}
	return out
}

func testReadFromStart(t *testing.T, factory Factory) {
	j := factory(t)
	realm := realmName("start")
	ids := appendAll(t, j, realm, "a", "b", "c")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := collect(ctx, j, realm, journal.FromStart, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, payloads(got))
	for i, e := range got {
		require.Equal(t, ids[i], e.ID)
	}
}

func testResumeAfterID(t *testing.T, factory Factory) {
	j := factory(t)
	realm := realmName("resume")
	ids := appendAll(t, j, realm, "a", "b", "c")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := collect(ctx, j, realm, ids[0], 2)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, payloads(got))
	require.Equal(t, ids[1:], []string{got[0].ID, got[1].ID})
}

func testTailNewEntries(t *testing.T, factory Factory) {
	j := factory(t)
	realm := realmName("tail")
	appendAll(t, j, realm, "old")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		entries []journal.Entry
		err     error
	}
	done := make(chan result, 1)
	go func() {
		got, err := collect(ctx, j, realm, "", 2)
		done <- result{got, err}
	}()

	// Give the reader time to start tailing.
	time.Sleep(100 * time.Millisecond)
	appendAll(t, j, realm, "new1", "new2")

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Equal(t, []string{"new1", "new2"}, payloads(res.entries))
	case <-ctx.Done():
		t.Fatal("reader did not receive tailed entries")
	}
}

func testRealmIsolation(t *testing.T, factory Factory) {
	j := factory(t)
	realmA, realmB := realmName("iso-a"), realmName("iso-b")

	for i := 0; i < 3; i++ {
		appendAll(t, j, realmA, fmt.Sprintf("a%d", i))
		appendAll(t, j, realmB, fmt.Sprintf("b%d", i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := collect(ctx, j, realmB, journal.FromStart, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"b0", "b1", "b2"}, payloads(got))
}

func testContextCancellation(t *testing.T, factory Factory) {
	j := factory(t)
	realm := realmName("cancel")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- j.Read(ctx, realm, "", func(context.Context, journal.Entry) error { return nil })
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("read did not return after cancellation")
	}
}

func testHandlerErrorStopsRead(t *testing.T, factory Factory) {
	j := factory(t)
	realm := realmName("stop")
	appendAll(t, j, realm, "a", "b")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	calls := 0
	err := j.Read(ctx, realm, journal.FromStart, func(context.Context, journal.Entry) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errStop
	})
	require.ErrorIs(t, err, errStop)
	require.Equal(t, 1, calls)
}

func testCleanup(t *testing.T, factory Factory) {
	j := factory(t)
	realm := realmName("cleanup")
	appendAll(t, j, realm, "a", "b")

	require.NoError(t, j.Cleanup(context.Background(), realm))
	require.NoError(t, j.Cleanup(context.Background(), realmName("never-used")))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	got, err := collect(ctx, j, realm, journal.FromStart, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, got)

	appendAll(t, j, realm, "c")
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err = collect(ctx, j, realm, journal.FromStart, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, payloads(got))
}
