package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with the request, session and routing data
// stored in the record's context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("user_agent", rd.UserAgent),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.Uint64("id", sd.SessionID),
			slog.String("realm", sd.Realm),
			slog.String("authid", sd.AuthID),
			slog.String("authrole", sd.AuthRole),
		))
	}

	if rd, ok := ctx.Value(routingDataKey{}).(*RoutingData); ok {
		r.AddAttrs(slog.Group("route",
			slog.String("op", rd.Op),
			slog.String("uri", rd.URI),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{h.Handler.WithGroup(name)}
}

type requestDataKey struct{}

type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type sessionDataKey struct{}

type SessionData struct {
	SessionID uint64
	Realm     string
	AuthID    string
	AuthRole  string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type routingDataKey struct{}

// RoutingData names the routing operation a record belongs to.
type RoutingData struct {
	Op  string
	URI string
}

func WithRoutingData(ctx context.Context, data *RoutingData) context.Context {
	return context.WithValue(ctx, routingDataKey{}, data)
}
