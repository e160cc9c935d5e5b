package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ggoodman/wamp-router-go/future"
	"github.com/ggoodman/wamp-router-go/wamp"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
)

// Factory hands out one Router per realm. All routers share the factory's
// runtime.
type Factory struct {
	rt         future.Runtime
	log        *slog.Logger
	catalog    RealmCatalog
	autoCreate bool
	strict     bool
	idle       int
	observers  observers

	mu       sync.Mutex
	routers  map[string]*Router
	parked   *lru.Cache[string, *Router]
	// reviving is skipped by the eviction callback while Get unparks it.
	reviving *Router
	closed   bool
}

// NewFactory returns a Factory whose routers run on rt.
func NewFactory(rt future.Runtime, opts ...FactoryOption) *Factory {
	f := &Factory{
		rt:         rt,
		log:        slog.Default(),
		autoCreate: true,
		routers:    make(map[string]*Router),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.idle > 0 {
		cache, err := lru.NewWithEvict(f.idle, func(realm string, r *Router) {
			if r == f.reviving {
				return
			}
			r.close()
			f.log.Debug("realm.evicted", slog.String("realm", realm))
		})
		if err != nil {
			f.log.Warn("realm.idle_cache_disabled", slog.String("err", err.Error()))
			f.idle = 0
		} else {
			f.parked = cache
		}
	}
	return f
}

// Runtime returns the runtime shared by the factory's routers.
func (f *Factory) Runtime() future.Runtime { return f.rt }

// Get returns the router for realm, creating it on first use. Repeated calls
// return the same instance until the router is removed.
func (f *Factory) Get(realm string) (*Router, error) {
	if err := wamp.URI(realm).Validate(f.strict); err != nil {
		return nil, fmt.Errorf("%w: realm: %v", ErrInvalidURI, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrRealmClosed
	}
	if r, ok := f.routers[realm]; ok {
		return r, nil
	}
	if f.parked != nil {
		if r, ok := f.parked.Peek(realm); ok {
			f.reviving = r
			f.parked.Remove(realm)
			f.reviving = nil
			f.routers[realm] = r
			f.log.Debug("realm.revived", slog.String("realm", realm), slog.String("router_id", r.ID()))
			return r, nil
		}
	}

	spec, err := f.lookup(realm)
	if err != nil {
		return nil, err
	}
	r := newRouter(f, spec)
	f.routers[realm] = r
	f.log.Info("realm.created", slog.String("realm", realm), slog.String("router_id", r.ID()))
	return r, nil
}

func (f *Factory) lookup(realm string) (RealmSpec, error) {
	if f.catalog != nil {
		if spec, ok := f.catalog.LookupRealm(realm); ok {
			spec.Name = realm
			return spec, nil
		}
	}
	if !f.autoCreate {
		return RealmSpec{}, fmt.Errorf("%w: %s", ErrNoSuchRealm, realm)
	}
	return DefaultRealmSpec(realm), nil
}

// Remove drops the router for realm if it has no attached sessions. It
// reports whether a router was removed.
func (f *Factory) Remove(realm string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.routers[realm]; ok {
		if r.SessionCount() > 0 {
			return false
		}
		delete(f.routers, realm)
		r.close()
		f.log.Info("realm.removed", slog.String("realm", realm))
		return true
	}
	if f.parked != nil && f.parked.Remove(realm) {
		f.log.Info("realm.removed", slog.String("realm", realm))
		return true
	}
	return false
}

// Realms lists the realms with a live router, sorted.
func (f *Factory) Realms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	realms := make([]string, 0, len(f.routers))
	for realm := range f.routers {
		realms = append(realms, realm)
	}
	sort.Strings(realms)
	return realms
}

// Sessions counts the sessions attached across every router.
func (f *Factory) Sessions() int {
	f.mu.Lock()
	routers := make([]*Router, 0, len(f.routers))
	for _, r := range f.routers {
		routers = append(routers, r)
	}
	f.mu.Unlock()

	n := 0
	for _, r := range routers {
		n += r.SessionCount()
	}
	return n
}

// Close detaches every session with wamp.close.system_shutdown and closes
// all routers. It waits on ctx for the detaches to finish and must not be
// called from a task running on the runtime.
func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	routers := make([]*Router, 0, len(f.routers))
	for _, r := range f.routers {
		routers = append(routers, r)
	}
	f.routers = make(map[string]*Router)
	if f.parked != nil {
		f.parked.Purge()
	}
	f.mu.Unlock()

	details := &wamp.CloseDetails{Reason: wamp.CloseSystemShutdown}
	var pending []*future.Future[struct{}]
	for _, r := range routers {
		for _, s := range r.sessionList() {
			pending = append(pending, r.Detach(s, details))
		}
	}

	var err error
	for _, p := range pending {
		if _, perr := p.Await(ctx); perr != nil {
			err = multierr.Append(err, perr)
		}
	}
	for _, r := range routers {
		r.close()
	}
	return err
}

// routerIdle is called on the runtime once a router's last session leaves.
func (f *Factory) routerIdle(r *Router) {
	if f.idle == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.routers[r.Realm()] != r || r.SessionCount() > 0 {
		return
	}
	delete(f.routers, r.Realm())
	if f.idle < 0 {
		r.close()
		f.log.Info("realm.removed", slog.String("realm", r.Realm()), slog.String("cause", "idle"))
		return
	}
	f.parked.Add(r.Realm(), r)
	f.log.Debug("realm.parked", slog.String("realm", r.Realm()))
}
