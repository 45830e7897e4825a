package ws

import (
	"encoding/json"
	"sync"

	"tradegate/internal/domain"

	"github.com/gorilla/websocket"
)

// ClientSession is the server-side state of one open browser connection.
// Its mutable fields are only touched by the gateway and relay while handling
// an event for this specific session.
type ClientSession struct {
	ID     string
	IsDemo bool

	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla allows one concurrent writer per conn

	mu            sync.Mutex
	subscriptions []domain.Subscription
	upstream      *UpstreamConnection
	closed        bool

	// done stops the keep-alive timer; closed exactly once during teardown.
	done chan struct{}
}

// NewClientSession wraps an accepted client socket.
func NewClientSession(id string, conn *websocket.Conn, demo bool) *ClientSession {
	return &ClientSession{
		ID:     id,
		IsDemo: demo,
		conn:   conn,
		done:   make(chan struct{}),
	}
}

// Send writes one JSON text frame to the client. Writes are serialized so
// outbound messages are delivered in the order they were enqueued.
func (s *ClientSession) Send(env serverEnvelope) error {
	if s.IsClosed() {
		return domain.ErrSessionClosed
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// AddSubscription appends a subscription to the session.
func (s *ClientSession) AddSubscription(sub domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions = append(s.subscriptions, sub)
}

// RemoveSubscription deletes every subscription with an exact
// (channel, scope) match and returns how many subscriptions remain.
func (s *ClientSession) RemoveSubscription(channel, strategyID string) int {
	key := domain.Subscription{Channel: channel, StrategyID: strategyID}.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.subscriptions[:0]
	for _, sub := range s.subscriptions {
		if sub.Key() != key {
			kept = append(kept, sub)
		}
	}
	s.subscriptions = kept
	return len(kept)
}

// HasSubscription reports whether any subscription covers the channel/scope,
// honoring the wildcard scope.
func (s *ClientSession) HasSubscription(channel, scope string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscriptions {
		if sub.Matches(channel, scope) {
			return true
		}
	}
	return false
}

// SubscriptionCount returns the number of active subscriptions.
func (s *ClientSession) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscriptions)
}

// Upstream returns the session's owned upstream connection, if any.
func (s *ClientSession) Upstream() *UpstreamConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstream
}

// setUpstream records ownership of a freshly opened upstream connection.
func (s *ClientSession) setUpstream(up *UpstreamConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upstream = up
}

// clearUpstream drops the reference, but only if it still points at the
// given connection. Stale teardowns must not clobber a newer upstream.
func (s *ClientSession) clearUpstream(up *UpstreamConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upstream == up {
		s.upstream = nil
	}
}

// IsClosed reports whether teardown has started.
func (s *ClientSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// markClosed flips the session to its terminal state and stops the
// keep-alive timer. Returns false if the session was already closed.
func (s *ClientSession) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.done)
	return true
}
