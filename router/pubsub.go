package router

import (
	"fmt"
	"time"

	"github.com/ggoodman/wamp-router-go/wamp"
)

// PublishResult reports a completed publication.
type PublishResult struct {
	Publication wamp.ID
	// Delivered counts the sessions the event was handed to.
	Delivered int
}

// subscribe runs on the runtime.
func (r *Router) subscribe(s *Session, topic wamp.URI) (*subscription, error) {
	if err := r.validate(topic); err != nil {
		return nil, err
	}

	r.mu.Lock()
	sub, exists := r.subscriptions[topic]
	if !exists {
		sub = &subscription{id: r.nextID(), topic: topic, created: time.Now()}
		r.subscriptions[topic] = sub
		r.subsByID[sub.id] = sub
	}
	_, already := s.routerSubs[sub.id]
	if !already {
		sub.subscribers = append(sub.subscribers, s)
		s.routerSubs[sub.id] = sub
	}
	r.mu.Unlock()

	if !exists {
		r.observe(wamp.MetaEvent{Kind: wamp.MetaKindSubscriptionCreate, Session: s.ID(), URI: topic, Ref: sub.id})
		r.publishMeta(wamp.MetaSubscriptionOnCreate, wamp.List{uint64(s.ID()), sub.details()})
	}
	if !already {
		r.publishMeta(wamp.MetaSubscriptionOnSubscribe, wamp.List{uint64(s.ID()), uint64(sub.id)})
	}
	return sub, nil
}

// unsubscribe runs on the runtime once s has dropped its last handle.
func (r *Router) unsubscribe(s *Session, subID wamp.ID) error {
	r.mu.Lock()
	sub, ok := s.routerSubs[subID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoSuchSubscription, subID)
	}
	delete(s.routerSubs, subID)
	sub.subscribers = removeSession(sub.subscribers, s)
	deleted := len(sub.subscribers) == 0
	if deleted {
		delete(r.subscriptions, sub.topic)
		delete(r.subsByID, sub.id)
	}
	r.mu.Unlock()

	r.publishMeta(wamp.MetaSubscriptionOnUnsubscribe, wamp.List{uint64(s.ID()), uint64(subID)})
	if deleted {
		r.observe(wamp.MetaEvent{Kind: wamp.MetaKindSubscriptionDelete, Session: s.ID(), URI: sub.topic, Ref: subID})
		r.publishMeta(wamp.MetaSubscriptionOnDelete, wamp.List{uint64(s.ID()), uint64(subID)})
	}
	return nil
}

// publish runs on the runtime. Every subscriber handler has returned by the
// time it does.
func (r *Router) publish(pub *Session, topic wamp.URI, args wamp.List, kwargs wamp.Dict, opts publishOptions) (PublishResult, error) {
	if err := r.validate(topic); err != nil {
		return PublishResult{}, err
	}
	if topic.Reserved() {
		return PublishResult{}, fmt.Errorf("%w: cannot publish to reserved topic %s", ErrNotAuthorized, topic)
	}

	pubID := r.nextID()
	var publisher wamp.ID
	if opts.discloseMe || r.spec.DisclosePublisher {
		publisher = pub.ID()
	}
	delivered := r.deliver(topic, pubID, args, kwargs, publisher, func(s *Session) bool {
		if s == pub && opts.excludeMe {
			return false
		}
		return opts.admits(s.ID())
	})

	r.observe(wamp.MetaEvent{Kind: wamp.MetaKindPublication, Session: pub.ID(), URI: topic, Ref: pubID, Count: delivered})
	return PublishResult{Publication: pubID, Delivered: delivered}, nil
}

func (r *Router) deliver(topic wamp.URI, pubID wamp.ID, args wamp.List, kwargs wamp.Dict, publisher wamp.ID, admit func(*Session) bool) int {
	r.mu.RLock()
	sub, ok := r.subscriptions[topic]
	var targets []*Session
	if ok {
		targets = make([]*Session, 0, len(sub.subscribers))
		for _, s := range sub.subscribers {
			if admit == nil || admit(s) {
				targets = append(targets, s)
			}
		}
	}
	r.mu.RUnlock()

	for _, s := range targets {
		s.dispatchEvent(&wamp.Event{
			Subscription: sub.id,
			Publication:  pubID,
			Args:         args,
			Kwargs:       kwargs,
			Details:      wamp.EventDetails{Topic: topic, Publisher: publisher},
		})
	}
	return len(targets)
}

func (sub *subscription) details() wamp.Dict {
	return wamp.Dict{
		"id":      uint64(sub.id),
		"uri":     string(sub.topic),
		"match":   "exact",
		"created": sub.created.UTC().Format(time.RFC3339Nano),
	}
}
