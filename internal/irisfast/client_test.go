package irisfast

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type fakeIris struct {
	mu       sync.Mutex
	paths    []string
	bodies   []ReplyRequest
	userIDs  []string
	failures int
}

func (f *fakeIris) handle(ctx *fasthttp.RequestCtx) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, string(ctx.Path()))
	f.userIDs = append(f.userIDs, string(ctx.Request.Header.Peek("X-User-Id")))
	if f.failures > 0 {
		f.failures--
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetBodyString("busy")
		return
	}
	switch string(ctx.Path()) {
	case "/reply":
		var req ReplyRequest
		_ = json.Unmarshal(ctx.PostBody(), &req)
		f.bodies = append(f.bodies, req)
		ctx.SetStatusCode(fasthttp.StatusOK)
	case "/config":
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"bot_name":"iris","bot_http_port":3000}`)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func newTestClient(t *testing.T, f *fakeIris) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: f.handle}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	return NewClient("http://iris.test/",
		WithDial(func(string) (net.Conn, error) { return ln.Dial() }),
		WithHeaderProvider(func() map[string]string { return map[string]string{"X-User-Id": "bot", "X-Empty": " "} }),
		WithTimeout(2*time.Second),
	)
}

func TestClientSendMessageAndImage(t *testing.T) {
	f := &fakeIris{}
	c := newTestClient(t, f)

	require.NoError(t, c.SendMessage(context.Background(), "room-1", "hi"))
	require.NoError(t, c.SendImage(context.Background(), "room-1", "aGk="))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, []ReplyRequest{
		{Type: "text", Room: "room-1", Data: "hi"},
		{Type: "image", Room: "room-1", Data: "aGk="},
	}, f.bodies)
	require.Equal(t, []string{"bot", "bot"}, f.userIDs)
}

func TestClientReplyNotRetried(t *testing.T) {
	f := &fakeIris{failures: 1}
	c := newTestClient(t, f)

	err := c.SendMessage(context.Background(), "room-1", "hi")
	require.ErrorContains(t, err, "status=503")

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.paths, 1)
}

func TestClientGetConfigRetries(t *testing.T) {
	f := &fakeIris{failures: 2}
	c := newTestClient(t, f)

	cfg, err := c.GetConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, "iris", cfg.BotName)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.paths, 3)
}

func TestClientGetConfigGivesUp(t *testing.T) {
	f := &fakeIris{failures: 5}
	c := newTestClient(t, f)

	_, err := c.GetConfig(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, fasthttp.StatusServiceUnavailable, se.Code)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.paths, 3)
}

func TestClientNotFoundNotRetried(t *testing.T) {
	f := &fakeIris{}
	c := NewClient("http://iris.test", WithRetry(0))
	require.Equal(t, 1, c.probeAttempts)

	c = newTestClient(t, f)
	err := c.call(context.Background(), fasthttp.MethodGet, "/missing", nil, nil)
	require.ErrorContains(t, err, "status=404")
}

func TestClientGetConfig(t *testing.T) {
	c := newTestClient(t, &fakeIris{})

	cfg, err := c.GetConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, "iris", cfg.BotName)
	require.Equal(t, 3000, cfg.Port)
}

func TestBackoffDuration(t *testing.T) {
	require.Equal(t, 100*time.Millisecond, backoffDuration(0))
	require.Equal(t, 400*time.Millisecond, backoffDuration(3))
	require.Equal(t, 3200*time.Millisecond, backoffDuration(10))
}
