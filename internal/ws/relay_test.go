package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradegate/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// newSessionPair returns a session wrapping a real server-side socket plus
// the browser-side connection for reading what the session sends.
func newSessionPair(t *testing.T, demo bool) (*ClientSession, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConns := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	clientConn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	select {
	case conn := <-serverConns:
		t.Cleanup(func() { conn.Close() })
		return NewClientSession(uuid.NewString(), conn, demo), clientConn
	case <-time.After(2 * time.Second):
		t.Fatal("No server-side connection arrived")
		return nil, nil
	}
}

func TestRelay_OpenAndForwardData(t *testing.T) {
	upstream := newUpstreamServer(t)
	relay := NewRelay(testStreamConfig(upstream.URL))
	sess, clientConn := newSessionPair(t, true)

	up, err := relay.Open(context.Background(), sess, []string{"BTC/USDT", "ethusdt"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if sess.Upstream() != up {
		t.Error("Expected session to own the new upstream connection")
	}
	if up.Attempts != 1 {
		t.Errorf("Expected 1 dial attempt, got %d", up.Attempts)
	}
	if up.LastAttempt.IsZero() {
		t.Error("Expected last attempt timestamp to be set")
	}

	upConn := upstream.accept(t)
	upConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var cmd subscribeCommand
	if err := upConn.ReadJSON(&cmd); err != nil {
		t.Fatalf("Expected subscribe command: %v", err)
	}
	if len(cmd.Params) != 2 || cmd.Params[0] != "btcusdt@ticker" || cmd.Params[1] != "ethusdt@ticker" {
		t.Errorf("Unexpected stream params: %v", cmd.Params)
	}

	if err := upConn.WriteMessage(websocket.TextMessage, []byte(`{"s":"ETHUSDT","c":"3200.5"}`)); err != nil {
		t.Fatalf("Upstream write failed: %v", err)
	}
	env := readEnvelope(t, clientConn)
	if env.Type != TypeUpstreamData || env.Data["s"] != "ETHUSDT" {
		t.Errorf("Expected wrapped upstream frame, got %+v", env)
	}

	relay.Close(up)
}

func TestRelay_OpenDialFailure(t *testing.T) {
	cfg := testStreamConfig("ws://127.0.0.1:1/ws")
	cfg.Stream.DialAttempts = 2
	relay := NewRelay(cfg)
	sess, _ := newSessionPair(t, true)

	_, err := relay.Open(context.Background(), sess, []string{"BTCUSDT"})
	if err == nil {
		t.Fatal("Expected dial error")
	}
	if !domain.IsRetriable(err) {
		t.Error("Expected a retriable network error")
	}
	if !errors.Is(err, domain.ErrUpstreamUnreachable) {
		t.Errorf("Expected ErrUpstreamUnreachable, got %v", err)
	}
	if sess.Upstream() != nil {
		t.Error("Expected no upstream reference after failed open")
	}
}

func TestRelay_ForwardWithoutUpstream(t *testing.T) {
	relay := NewRelay(testStreamConfig("ws://127.0.0.1:1/ws"))
	sess, _ := newSessionPair(t, true)

	// Pass-through without an open upstream reports the missing connection.
	err := relay.Forward(sess, []byte(`{"method":"PING"}`))
	if !errors.Is(err, domain.ErrNoUpstream) {
		t.Errorf("Expected ErrNoUpstream, got %v", err)
	}
}

func TestRelay_UpstreamDropClearsReference(t *testing.T) {
	upstream := newUpstreamServer(t)
	relay := NewRelay(testStreamConfig(upstream.URL))
	sess, clientConn := newSessionPair(t, true)

	if _, err := relay.Open(context.Background(), sess, []string{"BTCUSDT"}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	upConn := upstream.accept(t)
	upConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	upConn.ReadMessage() // subscribe command

	// The exchange drops the feed: the reference is cleared and no
	// reconnect is attempted, the client has to re-subscribe.
	upConn.Close()
	waitFor(t, func() bool { return sess.Upstream() == nil }, "upstream reference cleared")

	select {
	case <-upstream.conns:
		t.Error("Expected no automatic reconnect")
	case <-time.After(200 * time.Millisecond):
	}
	_ = clientConn
}

func TestRelay_CloseStopsForwarding(t *testing.T) {
	upstream := newUpstreamServer(t)
	relay := NewRelay(testStreamConfig(upstream.URL))
	sess, clientConn := newSessionPair(t, true)

	up, err := relay.Open(context.Background(), sess, []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	upConn := upstream.accept(t)
	upConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	upConn.ReadMessage() // subscribe command

	relay.Close(up)
	relay.Close(up) // double close is safe
	if sess.Upstream() != nil {
		t.Error("Expected reference cleared after close")
	}

	expectSilence(t, clientConn, 300*time.Millisecond)
}
