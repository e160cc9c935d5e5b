package wamp

import "time"

// Meta topics the router publishes into each realm.
const (
	MetaSessionOnJoin  URI = "wamp.session.on_join"
	MetaSessionOnLeave URI = "wamp.session.on_leave"

	MetaSubscriptionOnCreate      URI = "wamp.subscription.on_create"
	MetaSubscriptionOnSubscribe   URI = "wamp.subscription.on_subscribe"
	MetaSubscriptionOnUnsubscribe URI = "wamp.subscription.on_unsubscribe"
	MetaSubscriptionOnDelete      URI = "wamp.subscription.on_delete"

	MetaRegistrationOnCreate     URI = "wamp.registration.on_create"
	MetaRegistrationOnRegister   URI = "wamp.registration.on_register"
	MetaRegistrationOnUnregister URI = "wamp.registration.on_unregister"
	MetaRegistrationOnDelete     URI = "wamp.registration.on_delete"
)

// Meta procedures the router answers itself.
const (
	MetaProcSessionCount                 URI = "wamp.session.count"
	MetaProcSessionList                  URI = "wamp.session.list"
	MetaProcSessionGet                   URI = "wamp.session.get"
	MetaProcSubscriptionLookup           URI = "wamp.subscription.lookup"
	MetaProcSubscriptionListSubscribers  URI = "wamp.subscription.list_subscribers"
	MetaProcSubscriptionCountSubscribers URI = "wamp.subscription.count_subscribers"
	MetaProcRegistrationLookup           URI = "wamp.registration.lookup"
)

// MetaKind classifies a MetaEvent.
type MetaKind string

const (
	MetaKindSessionJoin        MetaKind = "session.join"
	MetaKindSessionLeave       MetaKind = "session.leave"
	MetaKindSubscriptionCreate MetaKind = "subscription.create"
	MetaKindSubscriptionDelete MetaKind = "subscription.delete"
	MetaKindRegistrationCreate MetaKind = "registration.create"
	MetaKindRegistrationDelete MetaKind = "registration.delete"
	MetaKindPublication        MetaKind = "publication"
	MetaKindCall               MetaKind = "call"
)

// Call outcomes reported on MetaKindCall events.
const (
	CallOutcomeResult          = "result"
	CallOutcomeError           = "error"
	CallOutcomeNoSuchProcedure = "no_such_procedure"
	CallOutcomeCanceled        = "canceled"
	CallOutcomeCalleeGone      = "callee_gone"
)

// MetaEvent is a record of something the router did, reported to
// observers outside the routing tables.
type MetaEvent struct {
	Kind     MetaKind  `json:"kind"`
	Realm    string    `json:"realm"`
	RouterID string    `json:"router_id"`
	Session  ID        `json:"session,omitempty"`
	URI      URI       `json:"uri,omitempty"`
	Ref      ID        `json:"ref,omitempty"`
	Reason   URI       `json:"reason,omitempty"`
	Outcome  string    `json:"outcome,omitempty"`
	Count    int       `json:"count,omitempty"`
	Time     time.Time `json:"time"`
}
