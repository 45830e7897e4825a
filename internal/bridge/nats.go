// Package bridge connects the gateway's broadcast surface to the message
// bus so backend trade workers can notify browser sessions without linking
// against the gateway process.
package bridge

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"tradegate/internal/infra"
	"tradegate/internal/ws"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
)

// TradeEvent is the envelope trade workers publish when an order executes.
type TradeEvent struct {
	ID         string          `json:"id"`
	StrategyID string          `json:"strategyId"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	Timestamp  int64           `json:"timestamp"`
}

// Bridge subscribes to the gateway subjects and fans events out through the
// injected Broadcaster.
type Bridge struct {
	url         string
	prefix      string
	broadcaster ws.Broadcaster

	nc     *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

// New creates a bridge. Call Start to connect; a bridge with an empty URL
// is disabled and Start becomes a no-op.
func New(cfg *infra.Config, broadcaster ws.Broadcaster) *Bridge {
	return &Bridge{
		url:         cfg.NATS.URL,
		prefix:      cfg.NATS.SubjectPrefix,
		broadcaster: broadcaster,
		logger:      slog.Default().With("module", "nats_bridge"),
	}
}

// Start connects to the message bus and installs the subscriptions.
func (b *Bridge) Start() error {
	if b.url == "" {
		b.logger.Info("NATS bridge disabled, no URL configured")
		return nil
	}

	nc, err := nats.Connect(b.url,
		nats.Name("tradegate-bridge"),
		nats.Timeout(5*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.logger.Warn("NATS disconnected, attempting reconnect", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return err
	}
	b.nc = nc

	tradeSub, err := nc.Subscribe(b.prefix+".trades.>", b.onTrade)
	if err != nil {
		nc.Close()
		return err
	}
	marketSub, err := nc.Subscribe(b.prefix+".marketdata", b.onMarketData)
	if err != nil {
		nc.Close()
		return err
	}
	b.subs = append(b.subs, tradeSub, marketSub)

	b.logger.Info("NATS bridge started", slog.String("prefix", b.prefix))
	return nil
}

// Stop drains the subscriptions and closes the connection.
func (b *Bridge) Stop() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	if b.nc != nil {
		b.nc.Close()
	}
}

// onTrade decodes a trade event and broadcasts it to the scope named by the
// subject suffix. Decode failures are logged and dropped, never propagated.
func (b *Bridge) onTrade(msg *nats.Msg) {
	scope := ScopeFromSubject(b.prefix, msg.Subject)
	if scope == "" {
		b.logger.Warn("Ignoring trade event with empty scope", slog.String("subject", msg.Subject))
		return
	}

	var event TradeEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		b.logger.Warn("Dropping malformed trade event",
			slog.String("subject", msg.Subject),
			slog.Any("error", err))
		return
	}

	b.broadcaster.BroadcastToScope(scope, event)
}

// onMarketData forwards simulated market data to every demo session.
func (b *Bridge) onMarketData(msg *nats.Msg) {
	var payload any
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		b.logger.Warn("Dropping malformed market data event", slog.Any("error", err))
		return
	}
	b.broadcaster.BroadcastToDemoSessions(payload)
}

// ScopeFromSubject extracts the strategy scope from a trades subject,
// e.g. "gateway.trades.strategy-42" -> "strategy-42".
func ScopeFromSubject(prefix, subject string) string {
	return strings.TrimPrefix(subject, prefix+".trades.")
}
