// Package futuretest holds a conformance suite every future.Runtime
// implementation must pass.
package futuretest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/wamp-router-go/future"
	"github.com/stretchr/testify/require"
)

// RuntimeFactory creates a ready-to-use runtime. Implementations that need a
// background goroutine start it here and stop it through t.Cleanup.
type RuntimeFactory func(t *testing.T) future.Runtime

// RunRuntimeTests runs the complete runtime suite against the provided factory.
func RunRuntimeTests(t *testing.T, factory RuntimeFactory) {
	t.Run("Future_ResolveTwiceFails", func(t *testing.T) { testResolveTwiceFails(t, factory) })
	t.Run("Future_RejectAfterResolveFails", func(t *testing.T) { testRejectAfterResolveFails(t, factory) })
	t.Run("Future_NilRejection", func(t *testing.T) { testNilRejection(t, factory) })
	t.Run("Future_CallbacksRunInAttachmentOrder", func(t *testing.T) { testCallbackOrder(t, factory) })
	t.Run("Future_LateCallbackFiresOnce", func(t *testing.T) { testLateCallback(t, factory) })
	t.Run("Future_FailureCallbacks", func(t *testing.T) { testFailureCallbacks(t, factory) })
	t.Run("Future_Map", func(t *testing.T) { testMap(t, factory) })
	t.Run("Future_AwaitHonoursContext", func(t *testing.T) { testAwaitContext(t, factory) })
	t.Run("Runtime_SubmitIsFIFO", func(t *testing.T) { testSubmitFIFO(t, factory) })
	t.Run("Runtime_NestedSubmitRunsAfterCurrentTask", func(t *testing.T) { testNestedSubmit(t, factory) })
	t.Run("Runtime_ConcurrentSubmittersAreSerialized", func(t *testing.T) { testConcurrentSubmitters(t, factory) })
}

// recorder collects strings from whatever goroutine the runtime uses.
type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.got = append(r.got, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func (r *recorder) waitLen(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.snapshot()) >= n }, 2*time.Second, 5*time.Millisecond)
	return r.snapshot()
}

func testResolveTwiceFails(t *testing.T, factory RuntimeFactory) {
	f := future.New[int](factory(t))

	require.NoError(t, f.Resolve(1))
	require.ErrorIs(t, f.Resolve(2), future.ErrAlreadyCompleted)

	v, err := f.Result()
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func testRejectAfterResolveFails(t *testing.T, factory RuntimeFactory) {
	f := future.New[string](factory(t))

	require.NoError(t, f.Resolve("ok"))
	require.ErrorIs(t, f.Reject(errors.New("late")), future.ErrAlreadyCompleted)

	g := future.New[string](factory(t))
	boom := errors.New("boom")
	require.NoError(t, g.Reject(boom))
	require.ErrorIs(t, g.Resolve("late"), future.ErrAlreadyCompleted)
	_, err := g.Result()
	require.ErrorIs(t, err, boom)
}

func testNilRejection(t *testing.T, factory RuntimeFactory) {
	f := future.New[int](factory(t))
	require.ErrorIs(t, f.Reject(nil), future.ErrNilRejection)

	_, err := f.Result()
	require.ErrorIs(t, err, future.ErrPending)
}

func testCallbackOrder(t *testing.T, factory RuntimeFactory) {
	f := future.New[int](factory(t))
	rec := &recorder{}
	for i := 0; i < 5; i++ {
		f.Then(func(v int) { rec.add(strconv.Itoa(i) + ":" + strconv.Itoa(v)) }, nil)
	}

	require.NoError(t, f.Resolve(7))
	require.Equal(t, []string{"0:7", "1:7", "2:7", "3:7", "4:7"}, rec.waitLen(t, 5))
}

func testLateCallback(t *testing.T, factory RuntimeFactory) {
	f := future.New[int](factory(t))
	require.NoError(t, f.Resolve(42))

	rec := &recorder{}
	f.Then(func(v int) { rec.add("first:" + strconv.Itoa(v)) }, func(error) { rec.add("failure") })
	f.Then(func(v int) { rec.add("second:" + strconv.Itoa(v)) }, nil)

	require.Equal(t, []string{"first:42", "second:42"}, rec.waitLen(t, 2))
	time.Sleep(20 * time.Millisecond)
	require.Len(t, rec.snapshot(), 2)
}

func testFailureCallbacks(t *testing.T, factory RuntimeFactory) {
	f := future.New[int](factory(t))
	rec := &recorder{}
	boom := errors.New("boom")
	f.Then(func(int) { rec.add("success") }, func(err error) {
		if errors.Is(err, boom) {
			rec.add("failure")
		}
	})

	require.NoError(t, f.Reject(boom))
	require.Equal(t, []string{"failure"}, rec.waitLen(t, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := f.Await(ctx)
	require.ErrorIs(t, err, boom)
}

func testMap(t *testing.T, factory RuntimeFactory) {
	rt := factory(t)
	f := future.New[int](rt)
	doubled := future.Map(f, func(v int) (string, error) { return strconv.Itoa(v * 2), nil })
	failed := future.Map(f, func(int) (string, error) { return "", errors.New("map failed") })

	require.NoError(t, f.Resolve(21))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := doubled.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, "42", v)

	_, err = failed.Await(ctx)
	require.EqualError(t, err, "map failed")
}

func testAwaitContext(t *testing.T, factory RuntimeFactory) {
	f := future.New[int](factory(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = f.Resolve(9)
	}()
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 9, v)
}

func testSubmitFIFO(t *testing.T, factory RuntimeFactory) {
	rt := factory(t)
	rec := &recorder{}
	want := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		want = append(want, strconv.Itoa(i))
		require.NoError(t, rt.Submit(func() { rec.add(strconv.Itoa(i)) }))
	}
	require.Equal(t, want, rec.waitLen(t, 100))
}

func testNestedSubmit(t *testing.T, factory RuntimeFactory) {
	rt := factory(t)
	rec := &recorder{}
	require.NoError(t, rt.Submit(func() {
		_ = rt.Submit(func() { rec.add("inner") })
		rec.add("outer")
	}))
	require.Equal(t, []string{"outer", "inner"}, rec.waitLen(t, 2))
}

func testConcurrentSubmitters(t *testing.T, factory RuntimeFactory) {
	rt := factory(t)

	var (
		active  int
		overlap bool
		mu      sync.Mutex
		wg      sync.WaitGroup
		count   int
	)
	task := func() {
		mu.Lock()
		active++
		if active > 1 {
			overlap = true
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		active--
		count++
		mu.Unlock()
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = rt.Submit(task)
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 80
	}, 5*time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.False(t, overlap, "tasks overlapped")
}
