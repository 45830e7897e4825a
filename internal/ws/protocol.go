package ws

import "encoding/json"

// Client -> gateway message types.
const (
	TypePing                = "ping"
	TypeSubscribe           = "subscribe"
	TypeUnsubscribe         = "unsubscribe"
	TypeUpstreamPassthrough = "upstream_passthrough"
)

// Gateway -> client message types.
const (
	TypeConnection   = "connection"
	TypePong         = "pong"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeUpstreamData = "upstream_data"
	TypeTradeUpdate  = "trade_update"
	TypeMarketData   = "market_data"
)

// clientEnvelope is a single-line JSON text frame received from a browser.
// Ping carries its timestamp at the top level, everything else nests in data.
type clientEnvelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// serverEnvelope is a single-line JSON text frame sent to a browser.
type serverEnvelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Echo      int64  `json:"echo,omitempty"`
}

// subscriptionData is the payload of subscribe/unsubscribe commands.
type subscriptionData struct {
	Channel    string   `json:"channel"`
	StrategyID string   `json:"strategyId"`
	Symbols    []string `json:"symbols,omitempty"`
}

// connectionData is the welcome payload sent right after an accept.
type connectionData struct {
	Message  string `json:"message"`
	ClientID string `json:"clientId"`
	IsDemo   bool   `json:"isDemo"`
}

// tradeUpdateData wraps a broadcast trade event with its scope.
type tradeUpdateData struct {
	Scope   string `json:"scope"`
	Payload any    `json:"payload"`
}
