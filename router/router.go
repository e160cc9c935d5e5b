package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/wamp-router-go/future"
	"github.com/ggoodman/wamp-router-go/wamp"
	"github.com/google/uuid"
)

// Session ids are unique across every router in the process.
var sessionIDs atomic.Uint64

// Router routes events and calls between the sessions of one realm. Its
// tables are only mutated on the runtime; the read lock lets inspection
// methods run from any goroutine.
type Router struct {
	id      string
	spec    RealmSpec
	rt      future.Runtime
	log     *slog.Logger
	strict  bool
	obs     Observer
	factory *Factory

	ids atomic.Uint64

	mu            sync.RWMutex
	closed        bool
	sessions      map[wamp.ID]*Session
	subscriptions map[wamp.URI]*subscription
	subsByID      map[wamp.ID]*subscription
	registrations map[wamp.URI]*registration
	regsByID      map[wamp.ID]*registration
	invocations   map[wamp.ID]*invocation
}

type subscription struct {
	id      wamp.ID
	topic   wamp.URI
	created time.Time
	// subscribers in subscribe order; fan-out follows it.
	subscribers []*Session
}

type registration struct {
	id        wamp.ID
	procedure wamp.URI
	created   time.Time
	callee    *Session
	handler   InvocationHandler
}

type invocation struct {
	id       wamp.ID
	reg      *registration
	caller   *Session
	cancel   context.CancelFunc
	timer    *time.Timer
	complete func(*wamp.Result, error)
}

// Stats is a point-in-time summary of a router's tables.
type Stats struct {
	Sessions      int
	Subscriptions int
	Registrations int
	InFlightCalls int
}

func newRouter(f *Factory, spec RealmSpec) *Router {
	r := &Router{
		id:            uuid.NewString(),
		spec:          spec,
		rt:            f.rt,
		strict:        f.strict,
		factory:       f,
		sessions:      make(map[wamp.ID]*Session),
		subscriptions: make(map[wamp.URI]*subscription),
		subsByID:      make(map[wamp.ID]*subscription),
		registrations: make(map[wamp.URI]*registration),
		regsByID:      make(map[wamp.ID]*registration),
		invocations:   make(map[wamp.ID]*invocation),
	}
	if len(f.observers) > 0 {
		r.obs = f.observers
	}
	r.log = f.log.With(slog.String("realm", spec.Name), slog.String("router_id", r.id))
	return r
}

// ID is a random identifier for this router instance.
func (r *Router) ID() string { return r.id }

// Realm is the name of the realm this router serves.
func (r *Router) Realm() string { return r.spec.Name }

// Spec returns the configuration the router was created with.
func (r *Router) Spec() RealmSpec { return r.spec }

// SessionCount returns the number of attached sessions.
func (r *Router) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SessionIDs lists attached sessions in ascending id order.
func (r *Router) SessionIDs() []wamp.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessionIDsLocked()
}

// Subscribers lists the sessions subscribed to topic in subscribe order.
func (r *Router) Subscribers(topic wamp.URI) []wamp.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subscriptions[topic]
	if !ok {
		return nil
	}
	ids := make([]wamp.ID, len(sub.subscribers))
	for i, s := range sub.subscribers {
		ids[i] = s.ID()
	}
	return ids
}

// Callee returns the session registered for procedure.
func (r *Router) Callee(procedure wamp.URI) (wamp.ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.registrations[procedure]
	if !ok {
		return 0, false
	}
	return reg.callee.ID(), true
}

// Stats summarises the router's tables.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Sessions:      len(r.sessions),
		Subscriptions: len(r.subscriptions),
		Registrations: len(r.registrations),
		InFlightCalls: len(r.invocations),
	}
}

// Detach removes s from the router as if it had left with details. Detaching
// a session that is not joined to this router is a no-op.
func (r *Router) Detach(s *Session, details *wamp.CloseDetails) *future.Future[struct{}] {
	f := future.New[struct{}](r.rt)
	if err := r.rt.Submit(func() {
		r.detach(s, details)
		_ = f.Resolve(struct{}{})
	}); err != nil {
		_ = f.Reject(fmt.Errorf("detach session %d: %w", s.ID(), err))
	}
	return f
}

func (r *Router) nextID() wamp.ID {
	return wamp.ID(r.ids.Add(1))
}

func (r *Router) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *Router) sessionIDsLocked() []wamp.ID {
	ids := make([]wamp.ID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Router) sessionList() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, id := range r.sessionIDsLocked() {
		out = append(out, r.sessions[id])
	}
	return out
}

func (r *Router) validate(u wamp.URI) error {
	if err := u.Validate(r.strict); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	return nil
}

func (r *Router) observe(ev wamp.MetaEvent) {
	if r.obs == nil {
		return
	}
	ev.Realm = r.spec.Name
	ev.RouterID = r.id
	ev.Time = time.Now()
	r.obs.Observe(ev)
}

// attach runs on the runtime.
func (r *Router) attach(s *Session) (*wamp.SessionDetails, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRealmClosed
	}
	if r.spec.MaxSessions > 0 && len(r.sessions) >= r.spec.MaxSessions {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %d sessions", ErrRealmFull, r.spec.MaxSessions)
	}
	id := wamp.ID(sessionIDs.Add(1))
	r.sessions[id] = s
	r.mu.Unlock()

	details := &wamp.SessionDetails{
		Session:  id,
		Realm:    r.spec.Name,
		AuthID:   s.cfg.AuthID,
		AuthRole: s.cfg.AuthRole,
	}
	s.joined(r, details)

	r.log.DebugContext(s.logContext(), "session.joined")
	r.observe(wamp.MetaEvent{Kind: wamp.MetaKindSessionJoin, Session: id})
	r.publishMeta(wamp.MetaSessionOnJoin, wamp.List{details.Dict()})
	return details, nil
}

// detach runs on the runtime.
func (r *Router) detach(s *Session, details *wamp.CloseDetails) {
	pending, ok := s.leaving(r)
	if !ok {
		return
	}
	if details == nil {
		details = &wamp.CloseDetails{Reason: wamp.CloseNormal}
	}
	id := s.ID()

	type unsubscribed struct {
		sub     *subscription
		deleted bool
	}
	var (
		subs      []unsubscribed
		regs      []*registration
		abandoned []*invocation
		orphaned  []*invocation
	)

	r.mu.Lock()
	delete(r.sessions, id)
	for _, sub := range s.routerSubs {
		sub.subscribers = removeSession(sub.subscribers, s)
		deleted := len(sub.subscribers) == 0
		if deleted {
			delete(r.subscriptions, sub.topic)
			delete(r.subsByID, sub.id)
		}
		subs = append(subs, unsubscribed{sub: sub, deleted: deleted})
	}
	for _, reg := range s.routerRegs {
		delete(r.registrations, reg.procedure)
		delete(r.regsByID, reg.id)
		regs = append(regs, reg)
	}
	for reqID, inv := range r.invocations {
		switch {
		case inv.reg.callee == s:
			delete(r.invocations, reqID)
			orphaned = append(orphaned, inv)
		case inv.caller == s:
			delete(r.invocations, reqID)
			abandoned = append(abandoned, inv)
		}
	}
	empty := len(r.sessions) == 0
	r.mu.Unlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].sub.id < subs[j].sub.id })
	sort.Slice(regs, func(i, j int) bool { return regs[i].id < regs[j].id })
	sort.Slice(orphaned, func(i, j int) bool { return orphaned[i].id < orphaned[j].id })

	for _, inv := range abandoned {
		inv.stop()
	}
	for _, inv := range orphaned {
		inv.stop()
		r.observe(wamp.MetaEvent{Kind: wamp.MetaKindCall, Session: callerID(inv), URI: inv.reg.procedure, Ref: inv.id, Outcome: wamp.CallOutcomeCalleeGone})
		inv.complete(nil, fmt.Errorf("callee %d left during call: %w", id, ErrSessionGone))
	}
	gone := fmt.Errorf("session %d left: %w", id, ErrSessionGone)
	for _, reject := range pending {
		reject(gone)
	}

	s.detached()

	for _, u := range subs {
		r.publishMeta(wamp.MetaSubscriptionOnUnsubscribe, wamp.List{uint64(id), uint64(u.sub.id)})
		if u.deleted {
			r.observe(wamp.MetaEvent{Kind: wamp.MetaKindSubscriptionDelete, Session: id, URI: u.sub.topic, Ref: u.sub.id})
			r.publishMeta(wamp.MetaSubscriptionOnDelete, wamp.List{uint64(id), uint64(u.sub.id)})
		}
	}
	for _, reg := range regs {
		r.observe(wamp.MetaEvent{Kind: wamp.MetaKindRegistrationDelete, Session: id, URI: reg.procedure, Ref: reg.id})
		r.publishMeta(wamp.MetaRegistrationOnUnregister, wamp.List{uint64(id), uint64(reg.id)})
		r.publishMeta(wamp.MetaRegistrationOnDelete, wamp.List{uint64(id), uint64(reg.id)})
	}

	r.log.DebugContext(s.logContext(), "session.left", slog.String("reason", string(details.Reason)))
	r.observe(wamp.MetaEvent{Kind: wamp.MetaKindSessionLeave, Session: id, Reason: details.Reason})
	r.publishMeta(wamp.MetaSessionOnLeave, wamp.List{uint64(id), s.cfg.AuthID, s.cfg.AuthRole})

	s.left(details)

	if empty && r.factory != nil {
		r.factory.routerIdle(r)
	}
}

func (inv *invocation) stop() {
	if inv.timer != nil {
		inv.timer.Stop()
	}
	inv.cancel()
}

func callerID(inv *invocation) wamp.ID {
	if inv.caller == nil {
		return 0
	}
	return inv.caller.ID()
}

func removeSession(list []*Session, s *Session) []*Session {
	for i, candidate := range list {
		if candidate == s {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
