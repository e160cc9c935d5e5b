package router

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ggoodman/wamp-router-go/future"
	"github.com/ggoodman/wamp-router-go/wamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddJoinsSession(t *testing.T) {
	eachRuntime(t, func(t *testing.T, rt future.Runtime) {
		sf := newSessionFactory(rt)

		var joins atomic.Int32
		var joinedID atomic.Uint64
		s := NewSession(SessionConfig{Realm: "realm1", AuthID: "alice", AuthRole: "user"}, HandlerFuncs{
			Join: func(s *Session, d *wamp.SessionDetails) {
				joins.Add(1)
				joinedID.Store(uint64(d.Session))
			},
		})
		require.Equal(t, StateCreated, s.State())

		details := await(t, sf.Add(s))
		require.NotZero(t, details.Session)
		require.Equal(t, "realm1", details.Realm)
		require.Equal(t, "alice", details.AuthID)
		require.Equal(t, "user", details.AuthRole)

		require.EqualValues(t, 1, joins.Load())
		require.EqualValues(t, details.Session, joinedID.Load())
		require.Equal(t, StateJoined, s.State())
		require.Equal(t, details.Session, s.ID())
		require.Equal(t, 1, sf.Sessions())

		r, err := sf.Routers().Get("realm1")
		require.NoError(t, err)
		require.Equal(t, []wamp.ID{details.Session}, r.SessionIDs())
	})
}

func TestSessionIDsAreUnique(t *testing.T) {
	eachRuntime(t, func(t *testing.T, rt future.Runtime) {
		sf := newSessionFactory(rt)
		seen := make(map[wamp.ID]bool)
		for _, realm := range []string{"realm1", "realm1", "realm2", "realm3"} {
			s := join(t, sf, realm, nil)
			require.False(t, seen[s.ID()], "duplicate session id %d", s.ID())
			seen[s.ID()] = true
		}
	})
}

func TestSubscribeFromOnJoin(t *testing.T) {
	eachRuntime(t, func(t *testing.T, rt future.Runtime) {
		sf := newSessionFactory(rt)

		var events eventLog
		subscribed := make(chan *Subscription, 1)
		subscriber := NewSession(SessionConfig{Realm: "realm1"}, HandlerFuncs{
			Join: func(s *Session, _ *wamp.SessionDetails) {
				s.Subscribe("com.example.topic", events.handle).Then(func(sub *Subscription) {
					subscribed <- sub
				}, func(err error) {
					t.Errorf("subscribe: %v", err)
				})
			},
		})
		await(t, sf.Add(subscriber))

		var sub *Subscription
		select {
		case sub = <-subscribed:
		case <-t.Context().Done():
			t.Fatal("subscription never confirmed")
		}
		require.Equal(t, wamp.URI("com.example.topic"), sub.Topic())

		publisher := join(t, sf, "realm1", nil)
		res := await(t, publisher.Publish("com.example.topic", wamp.List{"hello"}, wamp.Dict{"n": 1}))
		require.NotZero(t, res.Publication)
		require.Equal(t, 1, res.Delivered)

		got := events.all()
		require.Len(t, got, 1)
		assert.Equal(t, sub.ID(), got[0].Subscription)
		assert.Equal(t, res.Publication, got[0].Publication)
		assert.Equal(t, wamp.List{"hello"}, got[0].Args)
		assert.Equal(t, wamp.Dict{"n": 1}, got[0].Kwargs)
		assert.Equal(t, wamp.URI("com.example.topic"), got[0].Details.Topic)
		assert.Zero(t, got[0].Details.Publisher)
	})
}

func TestOperationsBeforeJoinAreRejected(t *testing.T) {
	s := NewSession(SessionConfig{Realm: "realm1"}, nil)

	check := func(err error) {
		t.Helper()
		require.ErrorIs(t, err, ErrNotJoined)
	}
	_, err := s.Subscribe("com.example.topic", func(*wamp.Event) {}).Result()
	check(err)
	_, err = s.Publish("com.example.topic", nil, nil).Result()
	check(err)
	_, err = s.Register("com.example.proc", echo()).Result()
	check(err)
	_, err = s.Call("com.example.proc", nil, nil).Result()
	check(err)
	_, err = s.Leave(wamp.CloseNormal).Result()
	check(err)
}

func TestAttachErrors(t *testing.T) {
	eachRuntime(t, func(t *testing.T, rt future.Runtime) {
		catalog := StaticRealms{"limited": {MaxSessions: 1}}
		sf := newSessionFactory(rt, WithRealmCatalog(catalog), WithAutoCreate(false))

		t.Run("NoSuchRealm", func(t *testing.T) {
			s := NewSession(SessionConfig{Realm: "unknown"}, nil)
			err := awaitErr(t, sf.Add(s))

			var ae *AttachError
			require.ErrorAs(t, err, &ae)
			require.Equal(t, "unknown", ae.Realm)
			require.Equal(t, wamp.ErrorNoSuchRealm, ae.Reason)
			require.ErrorIs(t, err, ErrNoSuchRealm)
			require.Equal(t, StateDetached, s.State())
		})

		t.Run("InvalidRealm", func(t *testing.T) {
			s := NewSession(SessionConfig{Realm: "bad..realm"}, nil)
			err := awaitErr(t, sf.Add(s))
			require.ErrorIs(t, err, ErrInvalidURI)
			require.Equal(t, StateDetached, s.State())
		})

		t.Run("RealmFull", func(t *testing.T) {
			join(t, sf, "limited", nil)
			s := NewSession(SessionConfig{Realm: "limited"}, nil)
			err := awaitErr(t, sf.Add(s))
			require.ErrorIs(t, err, ErrRealmFull)
			require.Equal(t, StateDetached, s.State())

			var ae *AttachError
			require.ErrorAs(t, err, &ae)
			require.Equal(t, wamp.ErrorRealmFull, ae.Reason)
		})

		t.Run("AddedTwice", func(t *testing.T) {
			s := NewSession(SessionConfig{Realm: "unknown"}, nil)
			_ = awaitErr(t, sf.Add(s))
			err := awaitErr(t, sf.Add(s))
			require.ErrorIs(t, err, ErrAlreadyAttached)

			var ae *AttachError
			require.ErrorAs(t, err, &ae)
			require.Equal(t, wamp.ErrorInvalidArgument, ae.Reason)
		})
	})
}

func TestAttachReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want wamp.URI
	}{
		{"RoutingError", fmt.Errorf("%w: realm1", ErrNoSuchRealm), wamp.ErrorNoSuchRealm},
		{"RealmFull", fmt.Errorf("%w: 1 sessions", ErrRealmFull), wamp.ErrorRealmFull},
		{"RealmClosed", ErrRealmClosed, wamp.CloseRealmClosed},
		{"AlreadyAttached", ErrAlreadyAttached, wamp.ErrorInvalidArgument},
		{"RuntimeClosed", fmt.Errorf("submit attach: %w", future.ErrRuntimeClosed), wamp.CloseSystemShutdown},
		{"Other", errors.New("boom"), wamp.ErrorRuntimeError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ae := newAttachError("realm1", tc.err)
			require.Equal(t, tc.want, ae.Reason)
			require.ErrorIs(t, ae, tc.err)
		})
	}
}

func TestLeaveTearsDownSession(t *testing.T) {
	eachRuntime(t, func(t *testing.T, rt future.Runtime) {
		sf := newSessionFactory(rt)
		r, err := sf.Routers().Get("realm1")
		require.NoError(t, err)

		var leaves leaveLog
		var stateAtLeave atomic.Int32
		var subsAtLeave atomic.Int32
		s := NewSession(SessionConfig{Realm: "realm1"}, HandlerFuncs{
			Leave: func(s *Session, d *wamp.CloseDetails) {
				stateAtLeave.Store(int32(s.State()))
				subsAtLeave.Store(int32(r.Stats().Subscriptions + r.Stats().Registrations))
				leaves.handler().OnLeave(s, d)
			},
		})
		await(t, sf.Add(s))
		await(t, s.Subscribe("com.example.topic", func(*wamp.Event) {}))
		await(t, s.Register("com.example.proc", echo()))
		require.Equal(t, Stats{Sessions: 1, Subscriptions: 1, Registrations: 1}, r.Stats())

		await(t, s.Leave(wamp.CloseGoodbyeAndOut))

		require.Equal(t, []wamp.URI{wamp.CloseGoodbyeAndOut}, leaves.all())
		require.EqualValues(t, StateDetached, stateAtLeave.Load())
		require.Zero(t, subsAtLeave.Load())
		require.Equal(t, StateDetached, s.State())
		require.Equal(t, Stats{}, r.Stats())
		require.Empty(t, r.Subscribers("com.example.topic"))
		_, ok := r.Callee("com.example.proc")
		require.False(t, ok)

		// Leaving again is a no-op.
		await(t, s.Leave(wamp.CloseNormal))
		await(t, r.Detach(s, nil))
		require.Len(t, leaves.all(), 1)

		_, err = s.Publish("com.example.topic", nil, nil).Result()
		require.ErrorIs(t, err, ErrNotJoined)
	})
}

func TestAbortReportsTransportLost(t *testing.T) {
	eachRuntime(t, func(t *testing.T, rt future.Runtime) {
		sf := newSessionFactory(rt)
		var leaves leaveLog
		s := join(t, sf, "realm1", leaves.handler())

		await(t, s.Abort())
		require.Equal(t, []wamp.URI{wamp.CloseTransportLost}, leaves.all())
	})
}

func TestLeaveRejectsPendingOperations(t *testing.T) {
	eachRuntime(t, func(t *testing.T, rt future.Runtime) {
		sf := newSessionFactory(rt)
		callee := join(t, sf, "realm1", nil)
		await(t, callee.Register("com.example.slow", pending(nil)))

		caller := join(t, sf, "realm1", nil)
		call := caller.Call("com.example.slow", nil, nil)
		await(t, caller.Leave(wamp.CloseNormal))

		err := awaitErr(t, call)
		require.ErrorIs(t, err, ErrSessionGone)

		r, err := sf.Routers().Get("realm1")
		require.NoError(t, err)
		require.Zero(t, r.Stats().InFlightCalls)
	})
}

func TestHandlerPanicsAreContained(t *testing.T) {
	eachRuntime(t, func(t *testing.T, rt future.Runtime) {
		sf := newSessionFactory(rt)

		bad := join(t, sf, "realm1", HandlerFuncs{
			Leave: func(*Session, *wamp.CloseDetails) { panic("leave") },
		})
		await(t, bad.Subscribe("com.example.topic", func(*wamp.Event) { panic("boom") }))

		var events eventLog
		good := join(t, sf, "realm1", nil)
		await(t, good.Subscribe("com.example.topic", events.handle))

		publisher := join(t, sf, "realm1", nil)
		res := await(t, publisher.Publish("com.example.topic", nil, nil))
		require.Equal(t, 2, res.Delivered)
		require.Equal(t, 1, events.len())

		await(t, bad.Leave(wamp.CloseNormal))
		require.Equal(t, StateDetached, bad.State())
	})
}

func TestErrorsAreWampErrors(t *testing.T) {
	err := errors.Join(ErrNoSuchProcedure)
	var werr *wamp.Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, wamp.ErrorNoSuchProcedure, werr.URI)
	require.ErrorIs(t, wamp.NewError(wamp.ErrorNoSuchProcedure, "relayed"), ErrNoSuchProcedure)
}
