package router

import "github.com/ggoodman/wamp-router-go/wamp"

// Observer receives a record of every routing action. Observe runs on the
// router's runtime and must not block.
type Observer interface {
	Observe(ev wamp.MetaEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev wamp.MetaEvent)

func (f ObserverFunc) Observe(ev wamp.MetaEvent) { f(ev) }

type observers []Observer

func (o observers) Observe(ev wamp.MetaEvent) {
	for _, obs := range o {
		obs.Observe(ev)
	}
}
