// ABOUTME: Connection states and the fan-out notifier for agent state transitions.
// ABOUTME: Subscribers receive typed Transition values on buffered channels.

package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each transition subscriber.
const subscriberBufferSize = 64

// ConnectionState is the lifecycle state of one agent's connection.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateAuthenticated
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON output.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transition is published every time an agent changes state. Err is the
// cause when the agent drops to Disconnected.
type Transition struct {
	Address string
	From    ConnectionState
	To      ConnectionState
	Err     error
	At      time.Time
}

// MarshalJSON renders the transition for the events stream.
func (t Transition) MarshalJSON() ([]byte, error) {
	out := struct {
		Address string          `json:"address"`
		From    ConnectionState `json:"from"`
		To      ConnectionState `json:"to"`
		Error   string          `json:"error,omitempty"`
		At      time.Time       `json:"at"`
	}{
		Address: t.Address,
		From:    t.From,
		To:      t.To,
		At:      t.At,
	}
	if t.Err != nil {
		out.Error = t.Err.Error()
	}
	return json.Marshal(out)
}

type subscription struct {
	address string
	ch      chan Transition
}

// StateNotifier provides in-memory pub/sub for agent transitions. A
// subscriber may follow one address or, with an empty address, every agent.
type StateNotifier struct {
	mu          sync.RWMutex
	subscribers map[string]subscription
	closed      bool
	logger      *slog.Logger
}

// NewStateNotifier creates a notifier. Pass nil logger for default.
func NewStateNotifier(logger *slog.Logger) *StateNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateNotifier{
		subscribers: make(map[string]subscription),
		logger:      logger.With("component", "notifier"),
	}
}

// Subscribe registers for transitions of address ("" for all agents). The
// subscription is removed and its channel closed when ctx is cancelled.
func (n *StateNotifier) Subscribe(ctx context.Context, address string) (<-chan Transition, string) {
	subID := uuid.New().String()
	ch := make(chan Transition, subscriberBufferSize)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch, subID
	}
	n.subscribers[subID] = subscription{address: address, ch: ch}
	n.mu.Unlock()

	n.logger.Debug("subscriber added", "sub_id", subID, "address", address)

	go func() {
		<-ctx.Done()
		n.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish delivers t to every matching subscriber. Non-blocking: transitions
// are dropped for subscribers whose channels are full.
func (n *StateNotifier) Publish(t Transition) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for id, sub := range n.subscribers {
		if sub.address != "" && sub.address != t.Address {
			continue
		}
		select {
		case sub.ch <- t:
		default:
			n.logger.Debug("dropped transition for slow subscriber",
				"sub_id", id,
				"address", t.Address,
				"to", t.To)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (n *StateNotifier) Unsubscribe(subID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub, ok := n.subscribers[subID]
	if !ok {
		return
	}
	delete(n.subscribers, subID)
	close(sub.ch)

	n.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (n *StateNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for id, sub := range n.subscribers {
		close(sub.ch)
		delete(n.subscribers, id)
	}
	n.closed = true

	n.logger.Debug("notifier closed")
}

// Len returns the number of active subscribers.
func (n *StateNotifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscribers)
}
