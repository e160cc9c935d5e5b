package router

import (
	"sync"
	"testing"

	"github.com/ggoodman/wamp-router-go/future"
	"github.com/ggoodman/wamp-router-go/wamp"
	"github.com/stretchr/testify/require"
)

type metaLog struct {
	mu     sync.Mutex
	events []wamp.MetaEvent
}

func (l *metaLog) Observe(ev wamp.MetaEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *metaLog) kinds() []wamp.MetaKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]wamp.MetaKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func (l *metaLog) last() wamp.MetaEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func TestMetaEventsArePublished(t *testing.T) {
	eachRuntime(t, func(t *testing.T, rt future.Runtime) {
		sf := newSessionFactory(rt)
		watcher := join(t, sf, "realm1", nil)

		var joins, leaves, created, subscribed, registered eventLog
		await(t, watcher.Subscribe(wamp.MetaSessionOnJoin, joins.handle))
		await(t, watcher.Subscribe(wamp.MetaSessionOnLeave, leaves.handle))
		await(t, watcher.Subscribe(wamp.MetaSubscriptionOnCreate, created.handle))
		await(t, watcher.Subscribe(wamp.MetaSubscriptionOnSubscribe, subscribed.handle))
		await(t, watcher.Subscribe(wamp.MetaRegistrationOnRegister, registered.handle))
		// The watcher's own subscriptions to the meta topics are announced too.
		baseCreated, baseSubscribed := created.len(), subscribed.len()

		s := NewSession(SessionConfig{Realm: "realm1", AuthID: "bob"}, nil)
		details := await(t, sf.Add(s))

		got := joins.all()
		require.Len(t, got, 1)
		info, ok := got[0].Args[0].(wamp.Dict)
		require.True(t, ok)
		require.Equal(t, uint64(details.Session), info["session"])
		require.Equal(t, "bob", info["authid"])

		sub := await(t, s.Subscribe("com.example.topic", func(*wamp.Event) {}))
		require.Equal(t, baseCreated+1, created.len())
		require.Equal(t, baseSubscribed+1, subscribed.len())
		ev := subscribed.all()[subscribed.len()-1]
		require.Equal(t, wamp.List{uint64(s.ID()), uint64(sub.ID())}, ev.Args)

		other := join(t, sf, "realm1", nil)
		await(t, other.Subscribe("com.example.topic", func(*wamp.Event) {}))
		require.Equal(t, baseCreated+1, created.len(), "existing subscription is reused")
		require.Equal(t, baseSubscribed+2, subscribed.len())

		await(t, s.Register("com.example.proc", echo()))
		require.Equal(t, 1, registered.len())

		await(t, s.Leave(wamp.CloseNormal))
		got = leaves.all()
		require.Len(t, got, 1)
		require.Equal(t, uint64(details.Session), got[0].Args[0])
	})
}

func TestMetaEventsCanBeDisabled(t *testing.T) {
	eachRuntime(t, func(t *testing.T, rt future.Runtime) {
		sf := newSessionFactory(rt, WithRealmCatalog(StaticRealms{"quiet": {}}))
		watcher := join(t, sf, "quiet", nil)

		var joins eventLog
		await(t, watcher.Subscribe(wamp.MetaSessionOnJoin, joins.handle))
		join(t, sf, "quiet", nil)
		require.Zero(t, joins.len())
	})
}

func TestMetaProcedures(t *testing.T) {
	eachRuntime(t, func(t *testing.T, rt future.Runtime) {
		sf := newSessionFactory(rt)
		a := join(t, sf, "realm1", nil)
		b := join(t, sf, "realm1", nil)
		join(t, sf, "realm2", nil)

		sub := await(t, b.Subscribe("com.example.topic", func(*wamp.Event) {}))
		reg := await(t, b.Register("com.example.proc", echo()))

		call := func(proc wamp.URI, args ...any) wamp.List {
			t.Helper()
			return await(t, a.Call(proc, wamp.List(args), nil)).Args
		}

		require.Equal(t, wamp.List{2}, call(wamp.MetaProcSessionCount))
		require.Equal(t, wamp.List{wamp.List{uint64(a.ID()), uint64(b.ID())}}, call(wamp.MetaProcSessionList))

		got := call(wamp.MetaProcSessionGet, float64(b.ID()))
		require.Equal(t, b.Details().Dict(), got[0])

		err := awaitErr(t, a.Call(wamp.MetaProcSessionGet, wamp.List{uint64(999999)}, nil))
		require.ErrorIs(t, err, ErrNoSuchSession)
		err = awaitErr(t, a.Call(wamp.MetaProcSessionGet, nil, nil))
		require.ErrorIs(t, err, ErrInvalidArgument)

		require.Equal(t, wamp.List{uint64(sub.ID())}, call(wamp.MetaProcSubscriptionLookup, "com.example.topic"))
		require.Equal(t, wamp.List{nil}, call(wamp.MetaProcSubscriptionLookup, "com.example.none"))
		require.Equal(t, wamp.List{wamp.List{uint64(b.ID())}}, call(wamp.MetaProcSubscriptionListSubscribers, sub.ID()))
		require.Equal(t, wamp.List{1}, call(wamp.MetaProcSubscriptionCountSubscribers, int(sub.ID())))

		require.Equal(t, wamp.List{uint64(reg.ID())}, call(wamp.MetaProcRegistrationLookup, "com.example.proc"))
		require.Equal(t, wamp.List{nil}, call(wamp.MetaProcRegistrationLookup, "com.example.none"))

		err = awaitErr(t, a.Call("wamp.no.such.thing", nil, nil))
		require.ErrorIs(t, err, ErrNoSuchProcedure)
	})
}

func TestObserversSeeRoutingActivity(t *testing.T) {
	eachRuntime(t, func(t *testing.T, rt future.Runtime) {
		var log metaLog
		sf := newSessionFactory(rt, WithObservers(&log))

		callee := join(t, sf, "realm1", nil)
		reg := await(t, callee.Register("com.example.proc", echo()))
		caller := join(t, sf, "realm1", nil)
		await(t, caller.Call("com.example.proc", nil, nil))

		last := log.last()
		require.Equal(t, wamp.MetaKindCall, last.Kind)
		require.Equal(t, wamp.CallOutcomeResult, last.Outcome)
		require.Equal(t, caller.ID(), last.Session)
		require.Equal(t, "realm1", last.Realm)
		require.NotEmpty(t, last.RouterID)
		require.False(t, last.Time.IsZero())

		sub := await(t, caller.Subscribe("com.example.topic", func(*wamp.Event) {}))
		res := await(t, callee.Publish("com.example.topic", nil, nil))
		last = log.last()
		require.Equal(t, wamp.MetaKindPublication, last.Kind)
		require.Equal(t, res.Delivered, last.Count)
		require.Equal(t, res.Publication, last.Ref)

		await(t, reg.Unregister())
		await(t, sub.Unsubscribe())
		_ = awaitErr(t, caller.Call("com.example.proc", nil, nil))
		require.Equal(t, wamp.CallOutcomeNoSuchProcedure, log.last().Outcome)

		await(t, caller.Leave(wamp.CloseNormal))

		require.Equal(t, []wamp.MetaKind{
			wamp.MetaKindSessionJoin,
			wamp.MetaKindRegistrationCreate,
			wamp.MetaKindSessionJoin,
			wamp.MetaKindCall,
			wamp.MetaKindSubscriptionCreate,
			wamp.MetaKindPublication,
			wamp.MetaKindRegistrationDelete,
			wamp.MetaKindSubscriptionDelete,
			wamp.MetaKindCall,
			wamp.MetaKindSessionLeave,
		}, log.kinds())
	})
}
