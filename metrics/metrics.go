// Package metrics exports router activity as Prometheus metrics by observing
// router meta events.
package metrics

import (
	"github.com/ggoodman/wamp-router-go/wamp"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wamp"

// Collector implements router.Observer.
type Collector struct {
	sessions      *prometheus.GaugeVec   // By realm
	subscriptions *prometheus.GaugeVec   // By realm
	registrations *prometheus.GaugeVec   // By realm
	publications  *prometheus.CounterVec // By realm
	delivered     *prometheus.CounterVec // By realm
	calls         *prometheus.CounterVec // By realm and outcome
	leaves        *prometheus.CounterVec // By realm and reason
}

// New creates a Collector and registers its metrics with reg. A nil reg
// registers nothing, which suits tests.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "sessions",
			Help:      "Sessions currently joined",
		}, []string{"realm"}),

		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "subscriptions",
			Help:      "Router subscriptions currently active",
		}, []string{"realm"}),

		registrations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "registrations",
			Help:      "Procedures currently registered",
		}, []string{"realm"}),

		publications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "publications_total",
			Help:      "Total number of publications routed",
		}, []string{"realm"}),

		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "events_delivered_total",
			Help:      "Total number of events handed to subscribers",
		}, []string{"realm"}),

		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "calls_total",
			Help:      "Total number of calls by outcome",
		}, []string{"realm", "outcome"}), // outcome: result, error, no_such_procedure, canceled, callee_gone

		leaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "session_leaves_total",
			Help:      "Total number of sessions that left, by close reason",
		}, []string{"realm", "reason"}),
	}

	if reg != nil {
		for _, col := range c.collectors() {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.sessions,
		c.subscriptions,
		c.registrations,
		c.publications,
		c.delivered,
		c.calls,
		c.leaves,
	}
}

// Observe implements router.Observer.
func (c *Collector) Observe(ev wamp.MetaEvent) {
	switch ev.Kind {
	case wamp.MetaKindSessionJoin:
		c.sessions.WithLabelValues(ev.Realm).Inc()
	case wamp.MetaKindSessionLeave:
		c.sessions.WithLabelValues(ev.Realm).Dec()
		c.leaves.WithLabelValues(ev.Realm, string(ev.Reason)).Inc()
	case wamp.MetaKindSubscriptionCreate:
		c.subscriptions.WithLabelValues(ev.Realm).Inc()
	case wamp.MetaKindSubscriptionDelete:
		c.subscriptions.WithLabelValues(ev.Realm).Dec()
	case wamp.MetaKindRegistrationCreate:
		c.registrations.WithLabelValues(ev.Realm).Inc()
	case wamp.MetaKindRegistrationDelete:
		c.registrations.WithLabelValues(ev.Realm).Dec()
	case wamp.MetaKindPublication:
		c.publications.WithLabelValues(ev.Realm).Inc()
		c.delivered.WithLabelValues(ev.Realm).Add(float64(ev.Count))
	case wamp.MetaKindCall:
		c.calls.WithLabelValues(ev.Realm, ev.Outcome).Inc()
	}
}
