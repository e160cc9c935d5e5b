package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/wamp-router-go/future"
	"github.com/ggoodman/wamp-router-go/future/callback"
	"github.com/ggoodman/wamp-router-go/future/cooperative"
	"github.com/ggoodman/wamp-router-go/wamp"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

type runtimeCase struct {
	name string
	new  func(t *testing.T) future.Runtime
}

var runtimeCases = []runtimeCase{
	{name: "cooperative", new: func(t *testing.T) future.Runtime {
		l := cooperative.New()
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = l.Run(ctx)
		}()
		t.Cleanup(func() {
			l.Close()
			cancel()
			<-done
		})
		return l
	}},
	{name: "callback", new: func(t *testing.T) future.Runtime {
		r := callback.New()
		t.Cleanup(r.Close)
		return r
	}},
}

// eachRuntime runs fn once per runtime model.
func eachRuntime(t *testing.T, fn func(t *testing.T, rt future.Runtime)) {
	t.Helper()
	for _, rc := range runtimeCases {
		t.Run(rc.name, func(t *testing.T) {
			fn(t, rc.new(t))
		})
	}
}

func await[T any](t *testing.T, f *future.Future[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	v, err := f.Await(ctx)
	require.NoError(t, err)
	return v
}

func awaitErr[T any](t *testing.T, f *future.Future[T]) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	_, err := f.Await(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

// join attaches a new session with handler h to realm.
func join(t *testing.T, sf *SessionFactory, realm string, h Handler) *Session {
	t.Helper()
	s := NewSession(SessionConfig{Realm: realm}, h)
	await(t, sf.Add(s))
	return s
}

func newSessionFactory(rt future.Runtime, opts ...FactoryOption) *SessionFactory {
	return NewSessionFactory(NewFactory(rt, opts...))
}

// eventLog records events delivered to a handler.
type eventLog struct {
	mu     sync.Mutex
	events []*wamp.Event
}

func (l *eventLog) handle(ev *wamp.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []*wamp.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*wamp.Event(nil), l.events...)
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// leaveLog records leave callbacks.
type leaveLog struct {
	mu      sync.Mutex
	reasons []wamp.URI
}

func (l *leaveLog) handler() Handler {
	return HandlerFuncs{Leave: func(_ *Session, d *wamp.CloseDetails) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.reasons = append(l.reasons, d.Reason)
	}}
}

func (l *leaveLog) all() []wamp.URI {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]wamp.URI(nil), l.reasons...)
}

// pending returns an invocation handler whose futures never complete and
// which reports the invocation context it was handed.
func pending(ctxs chan<- context.Context) InvocationHandler {
	return func(ctx context.Context, _ *wamp.Invocation) *future.Future[*wamp.Result] {
		if ctxs != nil {
			ctxs <- ctx
		}
		return future.New[*wamp.Result](nil)
	}
}

func echo() InvocationHandler {
	return Sync(func(_ context.Context, inv *wamp.Invocation) (*wamp.Result, error) {
		return &wamp.Result{Args: inv.Args, Kwargs: inv.Kwargs}, nil
	})
}
