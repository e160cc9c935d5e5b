package router

import (
	"fmt"

	"github.com/ggoodman/wamp-router-go/wamp"
)

// publishMeta runs on the runtime. Meta events have no publisher session and
// reach every subscriber of topic.
func (r *Router) publishMeta(topic wamp.URI, args wamp.List) {
	if !r.spec.MetaEvents {
		return
	}
	r.deliver(topic, r.nextID(), args, nil, 0, nil)
}

// metaCall answers the wamp.* procedures the router implements itself.
func (r *Router) metaCall(procedure wamp.URI, args wamp.List) (*wamp.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch procedure {
	case wamp.MetaProcSessionCount:
		return &wamp.Result{Args: wamp.List{len(r.sessions)}}, nil

	case wamp.MetaProcSessionList:
		ids := r.sessionIDsLocked()
		list := make(wamp.List, len(ids))
		for i, id := range ids {
			list[i] = uint64(id)
		}
		return &wamp.Result{Args: wamp.List{list}}, nil

	case wamp.MetaProcSessionGet:
		id, err := idArg(args)
		if err != nil {
			return nil, err
		}
		s, ok := r.sessions[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrNoSuchSession, id)
		}
		return &wamp.Result{Args: wamp.List{s.Details().Dict()}}, nil

	case wamp.MetaProcSubscriptionLookup:
		topic, err := uriArg(args)
		if err != nil {
			return nil, err
		}
		if sub, ok := r.subscriptions[topic]; ok {
			return &wamp.Result{Args: wamp.List{uint64(sub.id)}}, nil
		}
		return &wamp.Result{Args: wamp.List{nil}}, nil

	case wamp.MetaProcSubscriptionListSubscribers, wamp.MetaProcSubscriptionCountSubscribers:
		id, err := idArg(args)
		if err != nil {
			return nil, err
		}
		sub, ok := r.subsByID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrNoSuchSubscription, id)
		}
		if procedure == wamp.MetaProcSubscriptionCountSubscribers {
			return &wamp.Result{Args: wamp.List{len(sub.subscribers)}}, nil
		}
		list := make(wamp.List, len(sub.subscribers))
		for i, s := range sub.subscribers {
			list[i] = uint64(s.ID())
		}
		return &wamp.Result{Args: wamp.List{list}}, nil

	case wamp.MetaProcRegistrationLookup:
		proc, err := uriArg(args)
		if err != nil {
			return nil, err
		}
		if reg, ok := r.registrations[proc]; ok {
			return &wamp.Result{Args: wamp.List{uint64(reg.id)}}, nil
		}
		return &wamp.Result{Args: wamp.List{nil}}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSuchProcedure, procedure)
}

// idArg accepts the integer shapes an id takes after a trip through Go code
// or a JSON decoder.
func idArg(args wamp.List) (wamp.ID, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%w: missing id argument", ErrInvalidArgument)
	}
	switch v := args[0].(type) {
	case wamp.ID:
		return v, nil
	case uint64:
		return wamp.ID(v), nil
	case int:
		if v >= 0 {
			return wamp.ID(v), nil
		}
	case int64:
		if v >= 0 {
			return wamp.ID(v), nil
		}
	case float64:
		if v >= 0 && v == float64(uint64(v)) {
			return wamp.ID(v), nil
		}
	}
	return 0, fmt.Errorf("%w: id must be a non-negative integer, got %T", ErrInvalidArgument, args[0])
}

func uriArg(args wamp.List) (wamp.URI, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: missing uri argument", ErrInvalidArgument)
	}
	switch v := args[0].(type) {
	case wamp.URI:
		return v, nil
	case string:
		return wamp.URI(v), nil
	}
	return "", fmt.Errorf("%w: uri must be a string, got %T", ErrInvalidArgument, args[0])
}
