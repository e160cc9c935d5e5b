// Package httpbridge lets plain HTTP clients publish events and call
// procedures in a realm. The bridge joins the realm as an embedded session
// and relays each request through it.
//
//	POST /publish  {"topic", "args", "kwargs", "options"} -> {"id", "delivered"}
//	POST /call     {"procedure", "args", "kwargs", "timeout_ms"} -> {"args", "kwargs"}
//
// Failures are answered with {"error": <uri>, "args", "kwargs"}.
package httpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/wamp-router-go/internal/logctx"
	"github.com/ggoodman/wamp-router-go/router"
	"github.com/ggoodman/wamp-router-go/wamp"
	"github.com/google/uuid"
)

var jsonMediaType = contenttype.NewMediaType("application/json")

const maxBodyBytes = 1 << 20

// PublishRequest is the body of POST /publish.
type PublishRequest struct {
	Topic   wamp.URI       `json:"topic"`
	Args    wamp.List      `json:"args,omitempty"`
	Kwargs  wamp.Dict      `json:"kwargs,omitempty"`
	Options PublishOptions `json:"options"`
}

// PublishOptions mirrors the router's publish options.
type PublishOptions struct {
	Exclude    []wamp.ID `json:"exclude,omitempty"`
	Eligible   []wamp.ID `json:"eligible,omitempty"`
	DiscloseMe bool      `json:"disclose_me,omitempty"`
}

// PublishResponse answers a successful publish.
type PublishResponse struct {
	ID        wamp.ID `json:"id"`
	Delivered int     `json:"delivered"`
}

// CallRequest is the body of POST /call.
type CallRequest struct {
	Procedure wamp.URI  `json:"procedure"`
	Args      wamp.List `json:"args,omitempty"`
	Kwargs    wamp.Dict `json:"kwargs,omitempty"`
	TimeoutMS int64     `json:"timeout_ms,omitempty"`
}

// CallResponse answers a successful call.
type CallResponse struct {
	Args   wamp.List `json:"args,omitempty"`
	Kwargs wamp.Dict `json:"kwargs,omitempty"`
}

// ErrorResponse describes a failed request.
type ErrorResponse struct {
	Error  wamp.URI  `json:"error"`
	Args   wamp.List `json:"args,omitempty"`
	Kwargs wamp.Dict `json:"kwargs,omitempty"`
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithCallTimeout bounds calls that do not set timeout_ms. Default 30s.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.callTimeout = d }
}

// WithAuthID sets the authid the bridge session joins with.
func WithAuthID(id string) Option {
	return func(b *Bridge) { b.authID = id }
}

// Bridge is an http.Handler relaying requests into one realm.
type Bridge struct {
	realm       string
	log         *slog.Logger
	callTimeout time.Duration
	authID      string

	session *router.Session
	mux     *http.ServeMux
}

// New joins realm through sf and returns the bridge handler. It waits on ctx
// for the join and must not be called from a task running on the runtime.
func New(ctx context.Context, sf *router.SessionFactory, realm string, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		realm:       realm,
		log:         slog.Default(),
		callTimeout: 30 * time.Second,
		authID:      "httpbridge",
	}
	for _, opt := range opts {
		opt(b)
	}

	b.session = router.NewSession(router.SessionConfig{Realm: realm, AuthID: b.authID, AuthRole: "bridge"}, router.HandlerFuncs{
		Leave: func(_ *router.Session, d *wamp.CloseDetails) {
			b.log.Info("httpbridge.session_left", slog.String("realm", realm), slog.String("reason", string(d.Reason)))
		},
	})
	if _, err := sf.Add(b.session).Await(ctx); err != nil {
		return nil, fmt.Errorf("join realm %q: %w", realm, err)
	}

	b.mux = http.NewServeMux()
	b.mux.HandleFunc("POST /publish", b.handlePublish)
	b.mux.HandleFunc("POST /call", b.handleCall)
	return b, nil
}

// Session returns the bridge's embedded session.
func (b *Bridge) Session() *router.Session { return b.session }

// Close leaves the realm.
func (b *Bridge) Close(ctx context.Context) error {
	_, err := b.session.Leave(wamp.CloseGoodbyeAndOut).Await(ctx)
	return err
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

func (b *Bridge) handlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PublishRequest
	if !b.decode(w, r, &req) {
		return
	}
	ctx = logctx.WithRoutingData(ctx, &logctx.RoutingData{Op: "publish", URI: string(req.Topic)})

	opts := []router.PublishOption{}
	if len(req.Options.Exclude) > 0 {
		opts = append(opts, router.Exclude(req.Options.Exclude...))
	}
	if req.Options.Eligible != nil {
		opts = append(opts, router.Eligible(req.Options.Eligible...))
	}
	if req.Options.DiscloseMe {
		opts = append(opts, router.DiscloseMe())
	}

	res, err := b.session.Publish(req.Topic, req.Args, req.Kwargs, opts...).Await(ctx)
	if err != nil {
		b.fail(ctx, w, err)
		return
	}
	b.log.DebugContext(ctx, "httpbridge.published", slog.Int("delivered", res.Delivered))
	writeJSON(w, http.StatusOK, PublishResponse{ID: res.Publication, Delivered: res.Delivered})
}

func (b *Bridge) handleCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CallRequest
	if !b.decode(w, r, &req) {
		return
	}
	ctx = logctx.WithRoutingData(ctx, &logctx.RoutingData{Op: "call", URI: string(req.Procedure)})

	timeout := b.callTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	res, err := b.session.Call(req.Procedure, req.Args, req.Kwargs, router.WithCallTimeout(timeout)).Await(ctx)
	if err != nil {
		b.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, CallResponse{Args: res.Args, Kwargs: res.Kwargs})
}

func (b *Bridge) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSON(w, http.StatusUnsupportedMediaType, ErrorResponse{
			Error: wamp.ErrorInvalidArgument,
			Args:  wamp.List{"content-type must be application/json"},
		})
		b.log.WarnContext(r.Context(), "content_type.unsupported")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: wamp.ErrorInvalidArgument,
			Args:  wamp.List{fmt.Sprintf("invalid request body: %v", err)},
		})
		b.log.WarnContext(r.Context(), "body.invalid", slog.String("err", err.Error()))
		return false
	}
	return true
}

func (b *Bridge) fail(ctx context.Context, w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		b.log.WarnContext(ctx, "httpbridge.failed", slog.Int("status", status), slog.String("err", err.Error()))
	}
	writeJSON(w, status, body)
}

// errorResponse maps a routing failure to an HTTP status and body.
func errorResponse(err error) (int, ErrorResponse) {
	var werr *wamp.Error
	if errors.As(err, &werr) {
		body := ErrorResponse{Error: werr.URI, Args: werr.Args, Kwargs: werr.Kwargs}
		if len(body.Args) == 0 {
			body.Args = wamp.List{err.Error()}
		}
		switch werr.URI {
		case wamp.ErrorInvalidURI, wamp.ErrorInvalidArgument:
			return http.StatusBadRequest, body
		case wamp.ErrorNotAuthorized:
			return http.StatusForbidden, body
		case wamp.ErrorNoSuchProcedure:
			return http.StatusNotFound, body
		case wamp.ErrorCanceled:
			return http.StatusGatewayTimeout, body
		default:
			return http.StatusBadGateway, body
		}
	}

	body := ErrorResponse{Error: wamp.ErrorRuntimeError, Args: wamp.List{err.Error()}}
	switch {
	case errors.Is(err, router.ErrSessionGone), errors.Is(err, router.ErrNotJoined):
		return http.StatusServiceUnavailable, body
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		body.Error = wamp.ErrorCanceled
		return http.StatusGatewayTimeout, body
	default:
		return http.StatusInternalServerError, body
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
