package eventbus

import (
	"strings"
	"sync"
	"time"
)

// Push topics. Keyed topics carry the entity key after the colon, e.g.
// "market_updated:neutron1abc...". Subscribing to the bare family name
// receives every keyed event of that family.
const (
	FamilyNewTransaction = "new_transaction"
	FamilyMarketUpdated  = "market_updated"
	FamilyPositionUpdate = "position_updated"
)

// MarketUpdated is the keyed topic for one market's state changes.
func MarketUpdated(marketID string) string {
	return FamilyMarketUpdated + ":" + marketID
}

// PositionUpdated is the keyed topic for one user's position changes.
func PositionUpdated(userAddress string) string {
	return FamilyPositionUpdate + ":" + userAddress
}

// NewTransaction is the keyed topic for ledger rows written in one market.
func NewTransaction(marketID string) string {
	return FamilyNewTransaction + ":" + marketID
}

// Event represents a projection change routed through the bus.
type Event struct {
	Topic     string
	Height    uint64
	Timestamp time.Time
	Data      interface{}
}

// Bus is an in-process event bus that routes events to subscribers based on
// topic. It uses Go channels for delivery and is safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan<- Event
	closed      bool
}

// New creates a new Bus ready for use.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan<- Event),
	}
}

// Subscribe registers a channel to receive events published on the topic.
// The caller is responsible for creating the channel with sufficient buffer
// capacity; slow subscribers will have events dropped.
func (b *Bus) Subscribe(topic string, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
}

// Unsubscribe removes a channel from a topic. The channel is not closed.
func (b *Bus) Unsubscribe(topic string, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[topic]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[topic]) == 0 {
		delete(b.subscribers, topic)
	}
}

// Publish sends an event to all subscribers of its exact topic and, for
// keyed topics, to subscribers of the bare family as well. If a subscriber's
// channel is full, the event is dropped for that subscriber. Publish is a
// no-op after Close has been called.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.deliver(b.subscribers[evt.Topic], evt)
	if family, _, ok := strings.Cut(evt.Topic, ":"); ok {
		b.deliver(b.subscribers[family], evt)
	}
}

func (b *Bus) deliver(subs []chan<- Event, evt Event) {
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			// drop if subscriber is slow
		}
	}
}

// Close marks the bus as closed. After Close, Publish is a no-op.
// Close does not close subscriber channels; that is the caller's responsibility.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
