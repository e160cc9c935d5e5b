package httpbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/wamp-router-go/future"
	"github.com/ggoodman/wamp-router-go/future/callback"
	"github.com/ggoodman/wamp-router-go/router"
	"github.com/ggoodman/wamp-router-go/wamp"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	sf     *router.SessionFactory
	bridge *Bridge
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rt := callback.New()
	t.Cleanup(rt.Close)
	sf := router.NewSessionFactory(router.NewFactory(rt))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := New(ctx, sf, "realm1", WithCallTimeout(time.Second))
	require.NoError(t, err)

	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	return &fixture{sf: sf, bridge: b, server: srv}
}

func (f *fixture) join(t *testing.T) *router.Session {
	t.Helper()
	s := router.NewSession(router.SessionConfig{Realm: "realm1"}, nil)
	_, err := f.sf.Add(s).Await(context.Background())
	require.NoError(t, err)
	return s
}

func (f *fixture) post(t *testing.T, path string, body any) (int, []byte) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	return resp.StatusCode, buf.Bytes()
}

func TestPublish(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var got []*wamp.Event
	sub := f.join(t)
	_, err := sub.Subscribe("com.example.topic", func(ev *wamp.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	}).Await(context.Background())
	require.NoError(t, err)

	status, body := f.post(t, "/publish", PublishRequest{
		Topic:   "com.example.topic",
		Args:    wamp.List{"hello"},
		Kwargs:  wamp.Dict{"n": 1},
		Options: PublishOptions{DiscloseMe: true},
	})
	require.Equal(t, http.StatusOK, status)

	var res PublishResponse
	require.NoError(t, json.Unmarshal(body, &res))
	require.NotZero(t, res.ID)
	require.Equal(t, 1, res.Delivered)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	require.Equal(t, wamp.List{"hello"}, got[0].Args)
	require.EqualValues(t, 1, got[0].Kwargs["n"])
	require.Equal(t, f.bridge.Session().ID(), got[0].Details.Publisher)
}

func TestPublishHonoursExclusion(t *testing.T) {
	f := newFixture(t)
	sub := f.join(t)
	_, err := sub.Subscribe("com.example.topic", func(*wamp.Event) {}).Await(context.Background())
	require.NoError(t, err)

	status, body := f.post(t, "/publish", PublishRequest{
		Topic:   "com.example.topic",
		Options: PublishOptions{Exclude: []wamp.ID{sub.ID()}},
	})
	require.Equal(t, http.StatusOK, status)
	var res PublishResponse
	require.NoError(t, json.Unmarshal(body, &res))
	require.Zero(t, res.Delivered)
}

func TestCall(t *testing.T) {
	f := newFixture(t)
	callee := f.join(t)
	_, err := callee.Register("com.example.add", router.Sync(func(_ context.Context, inv *wamp.Invocation) (*wamp.Result, error) {
		a, _ := inv.Args[0].(float64)
		b, _ := inv.Args[1].(float64)
		return &wamp.Result{Args: wamp.List{a + b}, Kwargs: wamp.Dict{"caller": uint64(inv.Details.Caller)}}, nil
	})).Await(context.Background())
	require.NoError(t, err)

	status, body := f.post(t, "/call", CallRequest{Procedure: "com.example.add", Args: wamp.List{2, 3}})
	require.Equal(t, http.StatusOK, status)

	var res CallResponse
	require.NoError(t, json.Unmarshal(body, &res))
	require.Equal(t, wamp.List{5.0}, res.Args)
}

func TestCallErrors(t *testing.T) {
	f := newFixture(t)
	callee := f.join(t)
	ctx := context.Background()
	_, err := callee.Register("com.example.fail", router.Sync(func(context.Context, *wamp.Invocation) (*wamp.Result, error) {
		return nil, &wamp.Error{URI: "com.example.error.denied", Args: wamp.List{"nope"}, Kwargs: wamp.Dict{"code": 7}}
	})).Await(ctx)
	require.NoError(t, err)
	_, err = callee.Register("com.example.slow", func(context.Context, *wamp.Invocation) *future.Future[*wamp.Result] {
		return future.New[*wamp.Result](nil)
	}).Await(ctx)
	require.NoError(t, err)

	for _, tc := range []struct {
		name   string
		req    CallRequest
		status int
		uri    wamp.URI
	}{
		{"NoSuchProcedure", CallRequest{Procedure: "com.example.missing"}, http.StatusNotFound, wamp.ErrorNoSuchProcedure},
		{"InvalidURI", CallRequest{Procedure: "com..bad"}, http.StatusBadRequest, wamp.ErrorInvalidURI},
		{"ApplicationError", CallRequest{Procedure: "com.example.fail"}, http.StatusBadGateway, "com.example.error.denied"},
		{"Timeout", CallRequest{Procedure: "com.example.slow", TimeoutMS: 20}, http.StatusGatewayTimeout, wamp.ErrorCanceled},
	} {
		t.Run(tc.name, func(t *testing.T) {
			status, body := f.post(t, "/call", tc.req)
			require.Equal(t, tc.status, status)
			var res ErrorResponse
			require.NoError(t, json.Unmarshal(body, &res))
			require.Equal(t, tc.uri, res.Error)
			require.NotEmpty(t, res.Args)
		})
	}

	status, body := f.post(t, "/call", CallRequest{Procedure: "com.example.fail"})
	require.Equal(t, http.StatusBadGateway, status)
	var res ErrorResponse
	require.NoError(t, json.Unmarshal(body, &res))
	require.Equal(t, wamp.List{"nope"}, res.Args)
	require.EqualValues(t, 7, res.Kwargs["code"])
}

func TestRejectsNonJSON(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.server.URL+"/publish", "text/plain", bytes.NewReader([]byte("topic=x")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp2, err := http.Post(f.server.URL+"/call", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	resp3, err := http.Get(f.server.URL + "/publish")
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp3.StatusCode)
}

func TestBridgeAfterLeave(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bridge.Close(context.Background()))

	status, body := f.post(t, "/publish", PublishRequest{Topic: "com.example.topic"})
	require.Equal(t, http.StatusServiceUnavailable, status)
	var res ErrorResponse
	require.NoError(t, json.Unmarshal(body, &res))
	require.Equal(t, wamp.ErrorRuntimeError, res.Error)
}

func TestErrorResponseMapping(t *testing.T) {
	status, body := errorResponse(context.DeadlineExceeded)
	require.Equal(t, http.StatusGatewayTimeout, status)
	require.Equal(t, wamp.ErrorCanceled, body.Error)

	status, _ = errorResponse(router.ErrNotAuthorized)
	require.Equal(t, http.StatusForbidden, status)
}
