package domain

const (
	// ChannelTrades carries executed-trade notifications scoped by strategy.
	ChannelTrades = "trades"

	// ScopeAll subscribes a session to every scope of a channel.
	ScopeAll = "all"
)

// Subscription is a client's declared interest in a channel, optionally
// narrowed to one strategy scope and a list of market symbols.
type Subscription struct {
	Channel    string
	StrategyID string
	Symbols    []string
}

// Key returns the exact identity used for subscribe/unsubscribe matching.
func (s Subscription) Key() string {
	return s.Channel + ":" + s.StrategyID
}

// Matches reports whether the subscription covers the given channel and scope.
// A subscription with the wildcard scope matches every scope of its channel.
func (s Subscription) Matches(channel, scope string) bool {
	if s.Channel != channel {
		return false
	}
	return s.StrategyID == ScopeAll || s.StrategyID == scope
}

// WantsStream reports whether the subscription asks for a live upstream feed.
// Only trades subscriptions carrying market symbols open an upstream socket.
func (s Subscription) WantsStream() bool {
	return s.Channel == ChannelTrades && len(s.Symbols) > 0
}
