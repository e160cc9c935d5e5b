package wamp

import "fmt"

// Well-known error and close reason URIs.
const (
	ErrorInvalidURI             URI = "wamp.error.invalid_uri"
	ErrorNoSuchProcedure        URI = "wamp.error.no_such_procedure"
	ErrorProcedureAlreadyExists URI = "wamp.error.procedure_already_exists"
	ErrorNoSuchRegistration     URI = "wamp.error.no_such_registration"
	ErrorNoSuchSubscription     URI = "wamp.error.no_such_subscription"
	ErrorNoSuchRealm            URI = "wamp.error.no_such_realm"
	ErrorNoSuchSession          URI = "wamp.error.no_such_session"
	ErrorNotAuthorized          URI = "wamp.error.not_authorized"
	ErrorCanceled               URI = "wamp.error.canceled"
	ErrorRuntimeError           URI = "wamp.error.runtime_error"
	ErrorInvalidArgument        URI = "wamp.error.invalid_argument"
	ErrorRealmFull              URI = "wamp.error.realm_full"

	CloseNormal         URI = "wamp.close.normal"
	CloseGoodbyeAndOut  URI = "wamp.close.goodbye_and_out"
	CloseTransportLost  URI = "wamp.close.transport_lost"
	CloseSystemShutdown URI = "wamp.close.system_shutdown"
	CloseRealmClosed    URI = "wamp.close.close_realm"
)

// Error is an application or routing error identified by URI. Two Errors
// match under errors.Is when their URIs are equal, so errors relayed from a
// callee compare equal to the router's sentinels.
type Error struct {
	URI    URI
	Args   List
	Kwargs Dict
}

func (e *Error) Error() string {
	if len(e.Args) > 0 {
		if msg, ok := e.Args[0].(string); ok {
			return fmt.Sprintf("%s: %s", e.URI, msg)
		}
	}
	return string(e.URI)
}

// Is matches any *Error carrying the same URI.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.URI == e.URI
}

// NewError builds an *Error whose first positional argument is a message.
func NewError(uri URI, format string, args ...any) *Error {
	return &Error{URI: uri, Args: List{fmt.Sprintf(format, args...)}}
}
