package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tradegate/internal/domain"
	"tradegate/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

// UpstreamConnection is a gateway-owned socket to the exchange streaming
// endpoint, opened on behalf of exactly one client session.
type UpstreamConnection struct {
	Symbols     []string
	Attempts    int
	LastAttempt time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex
	owner   *ClientSession

	teardownOnce sync.Once
}

// subscribeCommand is the upstream dialect's subscription request.
type subscribeCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Relay opens and tears down upstream exchange feeds and translates their
// messages into the gateway's client-facing envelope.
type Relay struct {
	url          string
	dialAttempts int
	correlation  atomic.Int64
	logger       *slog.Logger
}

// NewRelay creates a relay for the configured streaming endpoint.
func NewRelay(cfg *infra.Config) *Relay {
	attempts := cfg.Stream.DialAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Relay{
		url:          cfg.Stream.URL,
		dialAttempts: attempts,
		logger:       slog.Default().With("module", "relay"),
	}
}

// Open dials the streaming endpoint, sends the subscribe command for the
// requested symbols and starts forwarding upstream messages to the session.
// The dial is retried a bounded number of times with backoff; once the
// connection is established there is no automatic reconnect, so a dropped
// upstream requires the client to re-subscribe.
func (r *Relay) Open(ctx context.Context, sess *ClientSession, symbols []string) (*UpstreamConnection, error) {
	up := &UpstreamConnection{Symbols: symbols, owner: sess}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	delay := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 10 * time.Second, Jitter: true}

	var lastErr error
	for up.Attempts < r.dialAttempts {
		up.Attempts++
		up.LastAttempt = time.Now()

		conn, _, err := dialer.DialContext(ctx, r.url, nil)
		if err == nil {
			up.conn = conn
			break
		}
		lastErr = err
		r.logger.Warn("Upstream dial failed",
			slog.String("url", r.url),
			slog.Int("attempt", up.Attempts),
			slog.Any("error", err))

		if up.Attempts >= r.dialAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay.Duration()):
		}
	}
	if up.conn == nil {
		return nil, domain.NewNetworkError("dial", fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, lastErr))
	}

	cmd := subscribeCommand{
		Method: "SUBSCRIBE",
		Params: streamParams(symbols),
		ID:     r.correlation.Add(1),
	}
	if err := up.write(cmd); err != nil {
		up.conn.Close()
		return nil, domain.NewNetworkError("subscribe", err)
	}

	sess.setUpstream(up)
	infra.GlobalMetrics.UpstreamOpened()
	r.logger.Info("Upstream feed opened",
		slog.String("client", sess.ID),
		slog.Int("symbols", len(symbols)))

	go r.readLoop(up)
	return up, nil
}

// Forward pushes a raw client command through to the open upstream
// connection. Returns ErrNoUpstream when the session owns none.
func (r *Relay) Forward(sess *ClientSession, payload json.RawMessage) error {
	up := sess.Upstream()
	if up == nil {
		return domain.ErrNoUpstream
	}
	up.writeMu.Lock()
	defer up.writeMu.Unlock()
	return up.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close closes the upstream socket and clears the owning session's
// reference. Safe to call more than once.
func (r *Relay) Close(up *UpstreamConnection) {
	if up == nil {
		return
	}
	up.teardownOnce.Do(func() {
		up.conn.Close()
		up.owner.clearUpstream(up)
		infra.GlobalMetrics.UpstreamClosed()
	})
}

// readLoop forwards every upstream message to the owning session's client
// socket until the upstream closes or errors.
func (r *Relay) readLoop(up *UpstreamConnection) {
	for {
		_, msg, err := up.conn.ReadMessage()
		if err != nil {
			r.logger.Warn("Upstream feed closed",
				slog.String("client", up.owner.ID),
				slog.Any("error", err))
			r.Close(up)
			return
		}

		var parsed any
		if err := json.Unmarshal(msg, &parsed); err != nil {
			r.logger.Debug("Dropping non-JSON upstream frame", slog.Any("error", err))
			continue
		}

		infra.GlobalMetrics.RecordUpstreamMessage()
		if err := up.owner.Send(serverEnvelope{Type: TypeUpstreamData, Data: parsed}); err != nil {
			// Closed client socket: stop erroring, just drop.
			infra.GlobalMetrics.RecordDrop()
		}
	}
}

// write sends one JSON command on the upstream socket.
func (up *UpstreamConnection) write(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	up.writeMu.Lock()
	defer up.writeMu.Unlock()
	return up.conn.WriteMessage(websocket.TextMessage, payload)
}

// streamParams converts market symbols ("BTC/USDT", "btcusdt") to the
// upstream's "<symbol>@ticker" stream names.
func streamParams(symbols []string) []string {
	params := make([]string, len(symbols))
	for i, s := range symbols {
		params[i] = strings.ToLower(strings.ReplaceAll(s, "/", "")) + "@ticker"
	}
	return params
}
