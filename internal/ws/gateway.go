package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tradegate/internal/domain"
	"tradegate/internal/infra"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const keepAliveInterval = 30 * time.Second

// Gateway accepts browser WebSocket connections, tracks their sessions and
// lazily opens upstream exchange feeds on their behalf.
type Gateway struct {
	registry *Registry
	relay    *Relay
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewGateway creates the WebSocket endpoint handler.
func NewGateway(registry *Registry, relay *Relay) *Gateway {
	return &Gateway{
		registry: registry,
		relay:    relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Cross-origin policy is enforced by the REST layer; the browser
			// client connects from arbitrary dev origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: slog.Default().With("module", "ws_gateway"),
	}
}

// ServeHTTP upgrades the connection and runs the session until the socket
// closes. Teardown is synchronous: upstream feed, keep-alive timer and
// registry entry are all released before this handler returns.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	demo := r.URL.Query().Get("demo") == "true"
	sess := NewClientSession(uuid.NewString(), conn, demo)
	g.registry.Add(sess)
	infra.GlobalMetrics.SessionOpened()
	g.logger.Info("Client connected",
		slog.String("client", sess.ID),
		slog.Bool("demo", demo))

	welcome := serverEnvelope{
		Type: TypeConnection,
		Data: connectionData{
			Message:  "Connected to trading server",
			ClientID: sess.ID,
			IsDemo:   demo,
		},
	}
	if err := sess.Send(welcome); err != nil {
		g.logger.Warn("Welcome send failed", slog.String("client", sess.ID), slog.Any("error", err))
	}

	go g.keepAlive(sess)
	g.readLoop(sess)
	g.closeSession(sess)
}

// readLoop processes client frames until the socket closes from either end.
func (g *Gateway) readLoop(sess *ClientSession) {
	for {
		_, msg, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		g.handleMessage(sess, msg)
	}
}

func (g *Gateway) handleMessage(sess *ClientSession, msg []byte) {
	var env clientEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		// Bad payloads never close the session.
		g.logger.Warn("Dropping malformed client message",
			slog.String("client", sess.ID),
			slog.Any("error", err))
		return
	}

	switch env.Type {
	case TypePing:
		g.handlePing(sess, env)
	case TypeSubscribe:
		g.handleSubscribe(sess, env)
	case TypeUnsubscribe:
		g.handleUnsubscribe(sess, env)
	case TypeUpstreamPassthrough:
		// Without an open upstream there is nothing to forward to; the
		// command is dropped like any other unroutable frame.
		if err := g.relay.Forward(sess, env.Data); err != nil && !errors.Is(err, domain.ErrNoUpstream) {
			g.logger.Warn("Passthrough forward failed",
				slog.String("client", sess.ID),
				slog.Any("error", err))
		}
	default:
		// Unknown types are dropped without an error envelope.
	}
}

func (g *Gateway) handlePing(sess *ClientSession, env clientEnvelope) {
	pong := serverEnvelope{
		Type:      TypePong,
		Timestamp: time.Now().UnixMilli(),
		Echo:      env.Timestamp,
	}
	if err := sess.Send(pong); err != nil {
		g.logger.Debug("Pong send failed", slog.String("client", sess.ID), slog.Any("error", err))
	}
}

func (g *Gateway) handleSubscribe(sess *ClientSession, env clientEnvelope) {
	var data subscriptionData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Channel == "" {
		g.logger.Warn("Dropping malformed subscribe", slog.String("client", sess.ID))
		return
	}

	sub := toSubscription(data)
	sess.AddSubscription(sub)

	ack := serverEnvelope{Type: TypeSubscribed, Data: subscriptionData{
		Channel:    data.Channel,
		StrategyID: data.StrategyID,
	}}
	if err := sess.Send(ack); err != nil {
		g.logger.Debug("Subscribe ack failed", slog.String("client", sess.ID), slog.Any("error", err))
	}

	// Demo sessions asking for a live feed get one upstream socket, opened
	// on the first qualifying subscription.
	if sess.IsDemo && sub.WantsStream() && sess.Upstream() == nil {
		if _, err := g.relay.Open(context.Background(), sess, sub.Symbols); err != nil {
			g.logger.Error("Upstream open failed",
				slog.String("client", sess.ID),
				slog.Any("error", err))
		}
	}
}

func (g *Gateway) handleUnsubscribe(sess *ClientSession, env clientEnvelope) {
	var data subscriptionData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Channel == "" {
		g.logger.Warn("Dropping malformed unsubscribe", slog.String("client", sess.ID))
		return
	}

	remaining := sess.RemoveSubscription(data.Channel, data.StrategyID)

	ack := serverEnvelope{Type: TypeUnsubscribed, Data: subscriptionData{
		Channel:    data.Channel,
		StrategyID: data.StrategyID,
	}}
	if err := sess.Send(ack); err != nil {
		g.logger.Debug("Unsubscribe ack failed", slog.String("client", sess.ID), slog.Any("error", err))
	}

	// Removing the last subscription releases the upstream feed.
	if remaining == 0 {
		if up := sess.Upstream(); up != nil {
			g.relay.Close(up)
		}
	}
}

func toSubscription(data subscriptionData) domain.Subscription {
	return domain.Subscription{
		Channel:    data.Channel,
		StrategyID: data.StrategyID,
		Symbols:    data.Symbols,
	}
}

// keepAlive pings the client on a fixed interval while the socket is open.
func (g *Gateway) keepAlive(sess *ClientSession) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sess.done:
			return
		case <-ticker.C:
			ping := serverEnvelope{Type: TypePing, Timestamp: time.Now().UnixMilli()}
			if err := sess.Send(ping); err != nil {
				return
			}
		}
	}
}

// closeSession runs the synchronous teardown: upstream feed, keep-alive
// timer, registry entry, client socket. Idempotent.
func (g *Gateway) closeSession(sess *ClientSession) {
	if !sess.markClosed() {
		return
	}
	if up := sess.Upstream(); up != nil {
		g.relay.Close(up)
	}
	g.registry.Remove(sess.ID)
	sess.conn.Close()
	infra.GlobalMetrics.SessionClosed()
	g.logger.Info("Client disconnected", slog.String("client", sess.ID))
}
