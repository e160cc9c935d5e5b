package callback

import (
	"sync/atomic"
	"testing"

	"github.com/ggoodman/wamp-router-go/future"
	"github.com/ggoodman/wamp-router-go/future/futuretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactorRuntime(t *testing.T) {
	futuretest.RunRuntimeTests(t, func(t *testing.T) future.Runtime {
		r := New()
		t.Cleanup(r.Close)
		return r
	})
}

func TestReactorDeliversInline(t *testing.T) {
	r := New()
	f := future.New[string](r)
	var got atomic.Value
	f.Then(func(v string) { got.Store(v) }, nil)

	require.NoError(t, f.Resolve("now"))
	assert.Equal(t, "now", got.Load())
}

func TestReactorSubmitDrainsBeforeReturning(t *testing.T) {
	r := New()
	var order []string
	require.NoError(t, r.Submit(func() {
		order = append(order, "a")
		_ = r.Submit(func() { order = append(order, "c") })
		order = append(order, "b")
	}))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestReactorClosed(t *testing.T) {
	r := New()
	r.Close()
	require.ErrorIs(t, r.Submit(func() {}), future.ErrRuntimeClosed)
}

func TestReactorRecoversPanics(t *testing.T) {
	r := New()
	var after bool
	require.NoError(t, r.Submit(func() {
		_ = r.Submit(func() { after = true })
		panic("boom")
	}))
	assert.True(t, after)
}
