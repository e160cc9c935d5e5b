package router

import (
	"log/slog"
	"time"

	"github.com/ggoodman/wamp-router-go/wamp"
)

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithRealmCatalog resolves realm configuration through c.
func WithRealmCatalog(c RealmCatalog) FactoryOption {
	return func(f *Factory) { f.catalog = c }
}

// WithAutoCreate controls whether realms missing from the catalog are
// created with DefaultRealmSpec. Enabled by default.
func WithAutoCreate(v bool) FactoryOption {
	return func(f *Factory) { f.autoCreate = v }
}

// WithLogger sets the logger used by the factory and its routers.
func WithLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if l != nil {
			f.log = l
		}
	}
}

// WithObservers registers observers for every router the factory creates.
func WithObservers(obs ...Observer) FactoryOption {
	return func(f *Factory) { f.observers = append(f.observers, obs...) }
}

// WithStrictURIs restricts realm, topic and procedure names to strict WAMP
// URIs.
func WithStrictURIs(v bool) FactoryOption {
	return func(f *Factory) { f.strict = v }
}

// WithIdleRealmCache sets what happens to a router once its last session
// leaves. Zero keeps it forever, a negative value removes it immediately and
// n > 0 parks it in an LRU of n idle routers from which Get revives it.
func WithIdleRealmCache(n int) FactoryOption {
	return func(f *Factory) { f.idle = n }
}

type publishOptions struct {
	excludeMe  bool
	exclude    map[wamp.ID]struct{}
	eligible   map[wamp.ID]struct{}
	discloseMe bool
}

// PublishOption tunes a single publication.
type PublishOption func(*publishOptions)

// ExcludeMe controls whether the publisher receives its own event. Defaults
// to true.
func ExcludeMe(v bool) PublishOption {
	return func(o *publishOptions) { o.excludeMe = v }
}

// Exclude skips the given sessions.
func Exclude(ids ...wamp.ID) PublishOption {
	return func(o *publishOptions) {
		if o.exclude == nil {
			o.exclude = make(map[wamp.ID]struct{}, len(ids))
		}
		for _, id := range ids {
			o.exclude[id] = struct{}{}
		}
	}
}

// Eligible restricts delivery to the given sessions.
func Eligible(ids ...wamp.ID) PublishOption {
	return func(o *publishOptions) {
		if o.eligible == nil {
			o.eligible = make(map[wamp.ID]struct{}, len(ids))
		}
		for _, id := range ids {
			o.eligible[id] = struct{}{}
		}
	}
}

// DiscloseMe reveals the publisher's session id to subscribers.
func DiscloseMe() PublishOption {
	return func(o *publishOptions) { o.discloseMe = true }
}

func (o *publishOptions) admits(id wamp.ID) bool {
	if _, ok := o.exclude[id]; ok {
		return false
	}
	if o.eligible != nil {
		_, ok := o.eligible[id]
		return ok
	}
	return true
}

type callOptions struct {
	timeout        time.Duration
	discloseCaller bool
}

// CallOption tunes a single call.
type CallOption func(*callOptions)

// WithCallTimeout rejects the call with ErrCanceled and cancels the
// invocation context if no result arrives within d.
func WithCallTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// DiscloseCaller reveals the caller's session id to the callee.
func DiscloseCaller() CallOption {
	return func(o *callOptions) { o.discloseCaller = true }
}
