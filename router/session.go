package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ggoodman/wamp-router-go/future"
	"github.com/ggoodman/wamp-router-go/internal/logctx"
	"github.com/ggoodman/wamp-router-go/wamp"
)

// SessionConfig identifies a session to its realm.
type SessionConfig struct {
	Realm    string
	AuthID   string
	AuthRole string
}

// Handler is the application side of a session.
type Handler interface {
	// OnJoin runs on the runtime once the session has joined its realm.
	OnJoin(s *Session, details *wamp.SessionDetails)
	// OnLeave runs on the runtime after the session's subscriptions and
	// registrations are gone.
	OnLeave(s *Session, details *wamp.CloseDetails)
}

// HandlerFuncs adapts a pair of optional functions to Handler.
type HandlerFuncs struct {
	Join  func(s *Session, details *wamp.SessionDetails)
	Leave func(s *Session, details *wamp.CloseDetails)
}

func (h HandlerFuncs) OnJoin(s *Session, details *wamp.SessionDetails) {
	if h.Join != nil {
		h.Join(s, details)
	}
}

func (h HandlerFuncs) OnLeave(s *Session, details *wamp.CloseDetails) {
	if h.Leave != nil {
		h.Leave(s, details)
	}
}

// EventHandler receives events for one Subscription. It runs on the runtime.
type EventHandler func(ev *wamp.Event)

// Subscription is a session-local handle on a topic. Several handles on the
// same topic share the router subscription id.
type Subscription struct {
	id      wamp.ID
	topic   wamp.URI
	handler EventHandler
	session *Session
}

func (sub *Subscription) ID() wamp.ID     { return sub.id }
func (sub *Subscription) Topic() wamp.URI { return sub.topic }

// Unsubscribe is shorthand for sub's session Unsubscribe.
func (sub *Subscription) Unsubscribe() *future.Future[struct{}] {
	return sub.session.Unsubscribe(sub)
}

// Registration is a handle on a registered procedure.
type Registration struct {
	id        wamp.ID
	procedure wamp.URI
	session   *Session
}

func (reg *Registration) ID() wamp.ID         { return reg.id }
func (reg *Registration) Procedure() wamp.URI { return reg.procedure }

// Unregister is shorthand for reg's session Unregister.
func (reg *Registration) Unregister() *future.Future[struct{}] {
	return reg.session.Unregister(reg)
}

// Session is a participant in a realm. Its operations may be called from any
// goroutine and complete through futures delivered on the router's runtime.
type Session struct {
	cfg     SessionConfig
	handler Handler

	mu      sync.Mutex
	state   State
	rt      future.Runtime
	router  *Router
	details *wamp.SessionDetails
	logCtx  context.Context
	nextOp  uint64
	pending map[uint64]func(error)

	// Only touched on the runtime.
	handles    map[wamp.ID][]*Subscription
	routerSubs map[wamp.ID]*subscription
	routerRegs map[wamp.ID]*registration
}

// NewSession returns a session in the Created state. A nil handler ignores
// lifecycle callbacks.
func NewSession(cfg SessionConfig, h Handler) *Session {
	if h == nil {
		h = HandlerFuncs{}
	}
	return &Session{
		cfg:        cfg,
		handler:    h,
		logCtx:     context.Background(),
		pending:    make(map[uint64]func(error)),
		handles:    make(map[wamp.ID][]*Subscription),
		routerSubs: make(map[wamp.ID]*subscription),
		routerRegs: make(map[wamp.ID]*registration),
	}
}

// ID is zero until the session joins.
func (s *Session) ID() wamp.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.details == nil {
		return 0
	}
	return s.details.Session
}

func (s *Session) Realm() string { return s.cfg.Realm }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Details returns the join details, or nil before the session joined.
func (s *Session) Details() *wamp.SessionDetails {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.details
}

// Subscribe attaches handler to topic.
func (s *Session) Subscribe(topic wamp.URI, handler EventHandler) *future.Future[*Subscription] {
	if handler == nil {
		return future.Rejected[*Subscription](s.runtime(), fmt.Errorf("%w: nil event handler", ErrInvalidArgument))
	}
	return dispatch(s, func(r *Router) (*Subscription, error) {
		sub, err := r.subscribe(s, topic)
		if err != nil {
			return nil, err
		}
		h := &Subscription{id: sub.id, topic: topic, handler: handler, session: s}
		s.handles[sub.id] = append(s.handles[sub.id], h)
		return h, nil
	})
}

// Unsubscribe drops sub. The session leaves the router subscription when its
// last handle on the topic goes.
func (s *Session) Unsubscribe(sub *Subscription) *future.Future[struct{}] {
	return dispatch(s, func(r *Router) (struct{}, error) {
		handles := s.handles[sub.id]
		idx := -1
		for i, h := range handles {
			if h == sub {
				idx = i
				break
			}
		}
		if idx < 0 {
			return struct{}{}, fmt.Errorf("%w: %d", ErrNoSuchSubscription, sub.id)
		}
		handles = append(handles[:idx:idx], handles[idx+1:]...)
		if len(handles) > 0 {
			s.handles[sub.id] = handles
			return struct{}{}, nil
		}
		delete(s.handles, sub.id)
		return struct{}{}, r.unsubscribe(s, sub.id)
	})
}

// Publish sends an event to topic's subscribers. The future resolves after
// every subscriber handler has run.
func (s *Session) Publish(topic wamp.URI, args wamp.List, kwargs wamp.Dict, opts ...PublishOption) *future.Future[PublishResult] {
	o := publishOptions{excludeMe: true}
	for _, opt := range opts {
		opt(&o)
	}
	return dispatch(s, func(r *Router) (PublishResult, error) {
		return r.publish(s, topic, args, kwargs, o)
	})
}

// Register makes s the callee for procedure.
func (s *Session) Register(procedure wamp.URI, handler InvocationHandler) *future.Future[*Registration] {
	if handler == nil {
		return future.Rejected[*Registration](s.runtime(), fmt.Errorf("%w: nil invocation handler", ErrInvalidArgument))
	}
	return dispatch(s, func(r *Router) (*Registration, error) {
		reg, err := r.register(s, procedure, handler)
		if err != nil {
			return nil, err
		}
		return &Registration{id: reg.id, procedure: procedure, session: s}, nil
	})
}

// Unregister removes reg.
func (s *Session) Unregister(reg *Registration) *future.Future[struct{}] {
	return dispatch(s, func(r *Router) (struct{}, error) {
		return struct{}{}, r.unregister(s, reg.id)
	})
}

// Call invokes procedure and resolves with the callee's result.
func (s *Session) Call(procedure wamp.URI, args wamp.List, kwargs wamp.Dict, opts ...CallOption) *future.Future[*wamp.Result] {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	f := future.New[*wamp.Result](s.runtime())
	op, r, err := s.begin(func(err error) { _ = f.Reject(err) })
	if err != nil {
		_ = f.Reject(err)
		return f
	}
	if err := r.rt.Submit(func() {
		if !s.isPending(op) {
			return
		}
		r.call(s, procedure, args, kwargs, o, func(res *wamp.Result, err error) {
			if !s.finish(op) {
				return
			}
			if err != nil {
				_ = f.Reject(err)
				return
			}
			_ = f.Resolve(res)
		})
	}); err != nil && s.finish(op) {
		_ = f.Reject(fmt.Errorf("call %s: %w", procedure, err))
	}
	return f
}

// Leave detaches the session with reason. Leaving a session that already
// left is a no-op.
func (s *Session) Leave(reason wamp.URI) *future.Future[struct{}] {
	s.mu.Lock()
	state, r := s.state, s.router
	s.mu.Unlock()

	switch state {
	case StateJoined:
		return r.Detach(s, &wamp.CloseDetails{Reason: reason})
	case StateLeaving, StateDetached:
		return future.Resolved(s.runtime(), struct{}{})
	default:
		return future.Rejected[struct{}](nil, ErrNotJoined)
	}
}

// Abort detaches the session as if its transport was lost.
func (s *Session) Abort() *future.Future[struct{}] {
	return s.Leave(wamp.CloseTransportLost)
}

// dispatch runs fn on the runtime if s is still joined when the task runs.
func dispatch[T any](s *Session, fn func(r *Router) (T, error)) *future.Future[T] {
	f := future.New[T](s.runtime())
	op, r, err := s.begin(func(err error) { _ = f.Reject(err) })
	if err != nil {
		_ = f.Reject(err)
		return f
	}
	if err := r.rt.Submit(func() {
		if !s.finish(op) {
			return
		}
		v, err := fn(r)
		if err != nil {
			_ = f.Reject(err)
			return
		}
		_ = f.Resolve(v)
	}); err != nil && s.finish(op) {
		_ = f.Reject(err)
	}
	return f
}

func (s *Session) runtime() future.Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt
}

func (s *Session) logContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logCtx
}

// begin records a pending operation whose reject runs if the session leaves
// before the operation completes.
func (s *Session) begin(reject func(error)) (uint64, *Router, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateJoined {
		return 0, nil, fmt.Errorf("%w: session is %s", ErrNotJoined, s.state)
	}
	s.nextOp++
	s.pending[s.nextOp] = reject
	return s.nextOp, s.router, nil
}

// finish claims op; it reports false if the op was already failed by a leave.
func (s *Session) finish(op uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[op]; !ok {
		return false
	}
	delete(s.pending, op)
	return true
}

func (s *Session) isPending(op uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[op]
	return ok
}

// attaching claims s for an Add; it fails if s was added before.
func (s *Session) attaching(rt future.Runtime) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCreated {
		return false
	}
	s.state = StateAttaching
	s.rt = rt
	return true
}

func (s *Session) attachFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDetached
}

func (s *Session) joined(r *Router, details *wamp.SessionDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateJoined
	s.router = r
	s.details = details
	s.logCtx = logctx.WithSessionData(context.Background(), &logctx.SessionData{
		SessionID: uint64(details.Session),
		Realm:     details.Realm,
		AuthID:    details.AuthID,
		AuthRole:  details.AuthRole,
	})
}

// leaving moves a session joined to r into Leaving and hands back the
// rejections for its pending operations in issue order.
func (s *Session) leaving(r *Router) ([]func(error), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateJoined || s.router != r {
		return nil, false
	}
	s.state = StateLeaving
	ops := make([]uint64, 0, len(s.pending))
	for op := range s.pending {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	rejects := make([]func(error), len(ops))
	for i, op := range ops {
		rejects[i] = s.pending[op]
	}
	s.pending = make(map[uint64]func(error))
	return rejects, true
}

func (s *Session) detached() {
	s.mu.Lock()
	s.state = StateDetached
	s.mu.Unlock()

	s.handles = make(map[wamp.ID][]*Subscription)
	s.routerSubs = make(map[wamp.ID]*subscription)
	s.routerRegs = make(map[wamp.ID]*registration)
}

func (s *Session) join(details *wamp.SessionDetails) {
	defer s.recoverCallback("session.join_panic")
	s.handler.OnJoin(s, details)
}

func (s *Session) left(details *wamp.CloseDetails) {
	defer s.recoverCallback("session.leave_panic")
	s.handler.OnLeave(s, details)
}

// dispatchEvent runs on the runtime. Each handle gets its own copy of ev.
func (s *Session) dispatchEvent(ev *wamp.Event) {
	for _, h := range s.handles[ev.Subscription] {
		e := *ev
		s.runEventHandler(h, &e)
	}
}

func (s *Session) runEventHandler(h *Subscription, ev *wamp.Event) {
	defer s.recoverCallback("publish.handler_panic", slog.String("topic", string(h.topic)))
	h.handler(ev)
}

func (s *Session) recoverCallback(msg string, attrs ...any) {
	p := recover()
	if p == nil {
		return
	}
	s.mu.Lock()
	r, ctx := s.router, s.logCtx
	s.mu.Unlock()

	log := slog.Default()
	if r != nil {
		log = r.log
	}
	log.ErrorContext(ctx, msg, append(attrs, slog.Any("panic", p))...)
}
