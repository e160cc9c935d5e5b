package wamp

// ID identifies sessions, subscriptions, registrations, publications and
// in-flight requests.
type ID uint64

// List carries positional arguments.
type List []any

// Dict carries keyword arguments and option/detail maps.
type Dict map[string]any

// SessionDetails is handed to a session's join callback.
type SessionDetails struct {
	Session  ID     `json:"session"`
	Realm    string `json:"realm"`
	AuthID   string `json:"authid,omitempty"`
	AuthRole string `json:"authrole,omitempty"`
}

// Dict renders the details the way meta events carry them.
func (d *SessionDetails) Dict() Dict {
	return Dict{
		"session":  uint64(d.Session),
		"realm":    d.Realm,
		"authid":   d.AuthID,
		"authrole": d.AuthRole,
	}
}

// CloseDetails is handed to a session's leave callback.
type CloseDetails struct {
	Reason  URI    `json:"reason"`
	Message string `json:"message,omitempty"`
}

// EventDetails describes the publication an event belongs to.
type EventDetails struct {
	Topic URI `json:"topic"`
	// Publisher is zero unless the publisher was disclosed.
	Publisher ID `json:"publisher,omitempty"`
}

// Event is a publication as delivered to one subscription.
type Event struct {
	Subscription ID           `json:"subscription"`
	Publication  ID           `json:"publication"`
	Args         List         `json:"args,omitempty"`
	Kwargs       Dict         `json:"kwargs,omitempty"`
	Details      EventDetails `json:"details"`
}

// InvocationDetails describes the call an invocation belongs to.
type InvocationDetails struct {
	Procedure URI `json:"procedure"`
	// Caller is zero unless the caller was disclosed.
	Caller ID `json:"caller,omitempty"`
}

// Invocation is a call as delivered to the registrant of a procedure.
type Invocation struct {
	Request      ID                `json:"request"`
	Registration ID                `json:"registration"`
	Args         List              `json:"args,omitempty"`
	Kwargs       Dict              `json:"kwargs,omitempty"`
	Details      InvocationDetails `json:"details"`
}

// Result is the outcome of a successful call.
type Result struct {
	Args   List `json:"args,omitempty"`
	Kwargs Dict `json:"kwargs,omitempty"`
}
