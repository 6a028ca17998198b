package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Tree/internal/app"
	"github.com/dkeye/Tree/internal/config"
	"github.com/dkeye/Tree/internal/core"
	"github.com/dkeye/Tree/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Mode:             "test",
		StaticPath:       t.TempDir(),
		Secret:           "test-secret",
		ReadLimit:        4096,
		PingPeriod:       time.Second,
		PongWait:         2 * time.Second,
		WriteWait:        time.Second,
		SendBuffer:       32,
		MaxDecorations:   3,
		MessageCooldown:  3 * time.Second,
		IdentityFallback: "connection",
		MediaRoute:       "/audio/music.mp3",
	}
}

type testServer struct {
	srv *httptest.Server
	hub *app.Hub
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := prometheus.NewRegistry()
	metrics := app.NewMetrics(reg)
	store := core.NewStore(core.WithCapacity(cfg.MaxDecorations), core.WithCooldown(cfg.MessageCooldown))
	hub := app.NewHub(store, app.HubOptions{Policy: app.SimplePolicy{}, Metrics: metrics, SharedCooldown: cfg.SharedCooldown})
	go hub.Run(ctx)

	srv := httptest.NewServer(SetupRouter(ctx, cfg, Deps{Hub: hub, Gatherer: reg}))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, hub: hub}
}

func (ts *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) app.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env app.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func send(t *testing.T, ws *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func TestRouter_WebSocketFlow(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	a := ts.dial(t, "?userId=u1")
	first := readEvent(t, a)
	assert.Equal(t, app.EventInitState, first.Type)
	assert.JSONEq(t, `[]`, string(first.Payload))

	for i := 1; i <= 4; i++ {
		send(t, a, `{"type":"add-decoration","payload":{"symbol":"⭐","x":50,"y":50}}`)
		assert.Equal(t, app.EventDecorationAdded, readEvent(t, a).Type)
	}

	b := ts.dial(t, "")
	first = readEvent(t, b)
	require.Equal(t, app.EventInitState, first.Type)
	var snap []domain.Decoration
	require.NoError(t, json.Unmarshal(first.Payload, &snap))
	assert.Len(t, snap, 3)

	send(t, a, `{"type":"send-message","payload":{"text":"hello"}}`)
	for _, ws := range []*websocket.Conn{a, b} {
		ev := readEvent(t, ws)
		require.Equal(t, app.EventMessageReceived, ev.Type)
		var m domain.TransientMessage
		require.NoError(t, json.Unmarshal(ev.Payload, &m))
		assert.Equal(t, "hello", m.Text)
	}

	// Dropped silently: the next thing a sees is its own pong.
	send(t, a, `{"type":"send-message","payload":{"text":"again"}}`)
	send(t, a, `{"type":"ping"}`)
	assert.Equal(t, app.EventPong, readEvent(t, a).Type)
}

func TestRouter_REST(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	a := ts.dial(t, "?userId=u1")
	readEvent(t, a)
	send(t, a, `{"type":"add-decoration","payload":{"emoji":"🔔","x":1,"y":2}}`)
	readEvent(t, a)

	resp, err := http.Get(ts.srv.URL + "/api/decorations")
	require.NoError(t, err)
	defer resp.Body.Close()
	var snap []domain.Decoration
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Len(t, snap, 1)
	assert.Equal(t, "🔔", snap[0].Symbol)

	resp2, err := http.Get(ts.srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var stats app.Stats
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&stats))
	assert.Equal(t, app.Stats{Clients: 1, Decorations: 1, Capacity: 3}, stats)

	resp3, err := http.Get(ts.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)

	resp4, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp4.Body.Close()
	assert.Equal(t, http.StatusOK, resp4.StatusCode)
}

func TestRouter_MediaRouteAbsentWithoutURL(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	resp, err := http.Get(ts.srv.URL + "/audio/music.mp3")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_DisconnectUnregisters(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	a := ts.dial(t, "?userId=u1")
	readEvent(t, a)
	require.Equal(t, 1, ts.hub.Stats().Clients)

	require.NoError(t, a.Close())
	assert.Eventually(t, func() bool { return ts.hub.Stats().Clients == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRouter_CookieIdentityFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.IdentityFallback = "cookie"
	cfg.SharedCooldown = true
	ts := newTestServer(t, cfg)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	dialer := websocket.Dialer{Jar: jar, HandshakeTimeout: 2 * time.Second}
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"

	a, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	defer a.Close()
	readEvent(t, a)
	send(t, a, `{"type":"send-message","payload":{"text":"hi"}}`)
	assert.Equal(t, app.EventMessageReceived, readEvent(t, a).Type)

	// Same browser, second tab: same identity, same cooldown.
	b, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	defer b.Close()
	readEvent(t, b)
	send(t, b, `{"type":"send-message","payload":{"text":"hi"}}`)
	send(t, b, `{"type":"ping"}`)
	assert.Equal(t, app.EventPong, readEvent(t, b).Type)
}

func TestRouter_TabsOfOneUserCoolDownIndependently(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	a := ts.dial(t, "?userId=u1")
	b := ts.dial(t, "?userId=u1")
	readEvent(t, a)
	readEvent(t, b)

	send(t, a, `{"type":"send-message","payload":{"text":"from a"}}`)
	assert.Equal(t, app.EventMessageReceived, readEvent(t, a).Type)
	assert.Equal(t, app.EventMessageReceived, readEvent(t, b).Type)

	send(t, b, `{"type":"send-message","payload":{"text":"from b"}}`)
	assert.Equal(t, app.EventMessageReceived, readEvent(t, b).Type)
	assert.Equal(t, app.EventMessageReceived, readEvent(t, a).Type)
}
