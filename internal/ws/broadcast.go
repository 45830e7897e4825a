package ws

import (
	"log/slog"

	"tradegate/internal/domain"
	"tradegate/internal/infra"
)

// Broadcaster is the surface other backend components use to push events to
// matching live sessions without holding a reference to the gateway itself.
type Broadcaster interface {
	BroadcastToScope(scope string, payload any)
	BroadcastToDemoSessions(payload any)
}

// Hub fans internal events out over the session registry.
type Hub struct {
	registry *Registry
	logger   *slog.Logger
}

// NewHub creates a broadcast hub over the given registry.
func NewHub(registry *Registry) *Hub {
	return &Hub{
		registry: registry,
		logger:   slog.Default().With("module", "broadcast"),
	}
}

// BroadcastToScope delivers a trade event to every open session subscribed
// to the trades channel with a matching or wildcard scope. A failing client
// never blocks delivery to the others.
func (h *Hub) BroadcastToScope(scope string, payload any) {
	env := serverEnvelope{
		Type: TypeTradeUpdate,
		Data: tradeUpdateData{Scope: scope, Payload: payload},
	}
	h.registry.ForEach(func(sess *ClientSession) {
		if !sess.HasSubscription(domain.ChannelTrades, scope) {
			return
		}
		h.deliver(sess, env)
	})
}

// BroadcastToDemoSessions delivers simulated market data to every session
// running in demo mode.
func (h *Hub) BroadcastToDemoSessions(payload any) {
	env := serverEnvelope{Type: TypeMarketData, Data: payload}
	h.registry.ForEach(func(sess *ClientSession) {
		if !sess.IsDemo {
			return
		}
		h.deliver(sess, env)
	})
}

func (h *Hub) deliver(sess *ClientSession, env serverEnvelope) {
	if sess.IsClosed() {
		return
	}
	if err := sess.Send(env); err != nil {
		infra.GlobalMetrics.RecordDrop()
		h.logger.Warn("Broadcast delivery failed",
			slog.String("client", sess.ID),
			slog.String("type", env.Type),
			slog.Any("error", err))
		return
	}
	infra.GlobalMetrics.RecordBroadcast()
}
