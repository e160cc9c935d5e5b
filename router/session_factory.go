package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ggoodman/wamp-router-go/future"
	"github.com/ggoodman/wamp-router-go/wamp"
)

// SessionFactory attaches sessions to the router of their realm.
type SessionFactory struct {
	routers *Factory
	log     *slog.Logger
}

// SessionFactoryOption configures a SessionFactory.
type SessionFactoryOption func(*SessionFactory)

// WithSessionLogger overrides the logger inherited from the router factory.
func WithSessionLogger(l *slog.Logger) SessionFactoryOption {
	return func(sf *SessionFactory) {
		if l != nil {
			sf.log = l
		}
	}
}

// NewSessionFactory returns a SessionFactory resolving routers through f.
func NewSessionFactory(f *Factory, opts ...SessionFactoryOption) *SessionFactory {
	sf := &SessionFactory{routers: f, log: f.log}
	for _, opt := range opts {
		opt(sf)
	}
	return sf
}

// Routers returns the factory sessions are attached through.
func (sf *SessionFactory) Routers() *Factory { return sf.routers }

// Add attaches s to its realm. The future resolves with the join details
// after the session's OnJoin has run, or rejects with an *AttachError.
func (sf *SessionFactory) Add(s *Session) *future.Future[*wamp.SessionDetails] {
	rt := sf.routers.Runtime()
	f := future.New[*wamp.SessionDetails](rt)
	if !s.attaching(rt) {
		_ = f.Reject(newAttachError(s.cfg.Realm, ErrAlreadyAttached))
		return f
	}
	if err := rt.Submit(func() { sf.attach(s, f) }); err != nil {
		s.attachFailed()
		_ = f.Reject(newAttachError(s.cfg.Realm, fmt.Errorf("submit attach: %w", err)))
	}
	return f
}

// attach runs on the runtime.
func (sf *SessionFactory) attach(s *Session, f *future.Future[*wamp.SessionDetails]) {
	r, err := sf.routers.Get(s.cfg.Realm)
	var details *wamp.SessionDetails
	if err == nil {
		details, err = r.attach(s)
	}
	if err != nil {
		s.attachFailed()
		ae := newAttachError(s.cfg.Realm, err)
		sf.log.Warn("session.attach_failed",
			slog.String("realm", s.cfg.Realm),
			slog.String("reason", string(ae.Reason)),
			slog.String("err", err.Error()),
		)
		_ = f.Reject(ae)
		return
	}
	s.join(details)
	_ = f.Resolve(details)
}

// Sessions counts the sessions attached across all realms.
func (sf *SessionFactory) Sessions() int { return sf.routers.Sessions() }

// Close shuts down every router. See Factory.Close.
func (sf *SessionFactory) Close(ctx context.Context) error {
	return sf.routers.Close(ctx)
}
