package router

import (
	"errors"
	"fmt"

	"github.com/ggoodman/wamp-router-go/future"
	"github.com/ggoodman/wamp-router-go/wamp"
)

var (
	// ErrNotJoined is returned for session operations attempted outside the
	// Joined state.
	ErrNotJoined = errors.New("session not joined")
	// ErrSessionGone rejects operations that raced with a session leaving.
	ErrSessionGone = errors.New("session gone")
	// ErrAlreadyAttached is wrapped by AttachError when a session is added twice.
	ErrAlreadyAttached = errors.New("session already attached")
	// ErrRealmFull is wrapped by AttachError when a realm's session limit is hit.
	ErrRealmFull = errors.New("realm session limit reached")
	// ErrRealmClosed is wrapped by AttachError when a realm's router was removed.
	ErrRealmClosed = errors.New("realm closed")
)

// Routing errors carry WAMP error URIs so they can be relayed to remote peers
// and compared against errors relayed from callees.
var (
	ErrNoSuchRealm            = &wamp.Error{URI: wamp.ErrorNoSuchRealm}
	ErrInvalidURI             = &wamp.Error{URI: wamp.ErrorInvalidURI}
	ErrInvalidArgument        = &wamp.Error{URI: wamp.ErrorInvalidArgument}
	ErrNotAuthorized          = &wamp.Error{URI: wamp.ErrorNotAuthorized}
	ErrNoSuchProcedure        = &wamp.Error{URI: wamp.ErrorNoSuchProcedure}
	ErrProcedureAlreadyExists = &wamp.Error{URI: wamp.ErrorProcedureAlreadyExists}
	ErrNoSuchSubscription     = &wamp.Error{URI: wamp.ErrorNoSuchSubscription}
	ErrNoSuchRegistration     = &wamp.Error{URI: wamp.ErrorNoSuchRegistration}
	ErrNoSuchSession          = &wamp.Error{URI: wamp.ErrorNoSuchSession}
	ErrCanceled               = &wamp.Error{URI: wamp.ErrorCanceled}
)

// AttachError reports why a session could not join its realm.
type AttachError struct {
	Realm string
	// Reason is the URI a remote peer would be told. Router sentinels map to
	// a matching error or close URI; unknown causes to wamp.error.runtime_error.
	Reason wamp.URI
	Err    error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("attach to realm %q: %v", e.Realm, e.Err)
}

func (e *AttachError) Unwrap() error { return e.Err }

func newAttachError(realm string, err error) *AttachError {
	return &AttachError{Realm: realm, Reason: attachReason(err), Err: err}
}

func attachReason(err error) wamp.URI {
	var werr *wamp.Error
	switch {
	case errors.As(err, &werr):
		return werr.URI
	case errors.Is(err, ErrRealmFull):
		return wamp.ErrorRealmFull
	case errors.Is(err, ErrRealmClosed):
		return wamp.CloseRealmClosed
	case errors.Is(err, ErrAlreadyAttached):
		return wamp.ErrorInvalidArgument
	case errors.Is(err, future.ErrRuntimeClosed):
		return wamp.CloseSystemShutdown
	default:
		return wamp.ErrorRuntimeError
	}
}
