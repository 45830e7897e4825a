package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradegate/internal/infra"

	"github.com/gorilla/websocket"
)

// envelope mirrors the wire shape for assertions.
type envelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
	Echo      int64          `json:"echo"`
}

func testStreamConfig(streamURL string) *infra.Config {
	cfg := &infra.Config{}
	cfg.Stream.URL = streamURL
	cfg.Stream.DialAttempts = 1
	return cfg
}

// startGateway serves a Gateway over httptest and returns it with its
// registry and a dialable ws:// URL.
func startGateway(t *testing.T, streamURL string) (*Registry, string) {
	t.Helper()
	registry := NewRegistry()
	relay := NewRelay(testStreamConfig(streamURL))
	gateway := NewGateway(registry, relay)

	srv := httptest.NewServer(gateway)
	t.Cleanup(srv.Close)
	return registry, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// dial connects a test client to the gateway.
func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads one frame or fails the test after two seconds.
func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return env
}

// expectSilence asserts no frame arrives within the given window.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(d))
	if _, msg, err := conn.ReadMessage(); err == nil {
		t.Fatalf("Expected no frame, got %s", msg)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// upstreamServer is a fake exchange streaming endpoint.
type upstreamServer struct {
	URL   string
	conns chan *websocket.Conn
}

// newUpstreamServer starts a fake exchange that hands accepted server-side
// connections to the test.
func newUpstreamServer(t *testing.T) *upstreamServer {
	t.Helper()
	up := &upstreamServer{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		up.conns <- conn
	}))
	t.Cleanup(srv.Close)
	up.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return up
}

// accept returns the next upstream-side connection the relay opened.
func (u *upstreamServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-u.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("No upstream connection arrived")
		return nil
	}
}
