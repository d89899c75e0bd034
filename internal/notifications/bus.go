package notifications

import (
	"strings"
	"sync"
	"time"
)

// Event is a transient notification emitted on lifecycle and payment changes.
// Events are delivered best effort to currently connected subscribers and are
// never persisted.
type Event struct {
	Type      string         `json:"type"`
	OrderID   string         `json:"orderId,omitempty"`
	Status    string         `json:"status,omitempty"`
	Message   string         `json:"message,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// OperatorChannel is the shared channel every operator session joins.
const OperatorChannel = "operators"

// CustomerChannel returns the per-customer channel key.
func CustomerChannel(customerID string) string {
	return "customer:" + strings.TrimSpace(customerID)
}

const defaultBufferSize = 16

// Subscription is a live attachment to a single channel. Events arrive on C
// until Close is called; slow consumers lose events rather than block senders.
type Subscription struct {
	C chan Event

	bus     *Bus
	channel string
	once    sync.Once
}

// Close detaches the subscription and releases its buffer.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.bus != nil {
			s.bus.unsubscribe(s)
		}
		close(s.C)
	})
}

// Bus fans events out to channel subscribers within this process.
type Bus struct {
	mu       sync.RWMutex
	channels map[string]map[*Subscription]struct{}
	buffer   int
}

// BusOption customises bus behaviour.
type BusOption func(*Bus)

// WithBufferSize overrides the per-subscription buffer.
func WithBufferSize(size int) BusOption {
	return func(b *Bus) {
		if size > 0 {
			b.buffer = size
		}
	}
}

// NewBus constructs an empty notification bus.
func NewBus(opts ...BusOption) *Bus {
	bus := &Bus{
		channels: make(map[string]map[*Subscription]struct{}),
		buffer:   defaultBufferSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(bus)
		}
	}
	return bus
}

// Subscribe attaches a new subscriber to the channel.
func (b *Bus) Subscribe(channel string) *Subscription {
	sub := &Subscription{
		C:       make(chan Event, b.buffer),
		bus:     b,
		channel: channel,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.channels[channel]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.channels[channel] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.channels[sub.channel]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.channels, sub.channel)
		}
	}
}

// Broadcast delivers the event to every subscriber of the channel without
// blocking. It returns the number of subscribers that received the event;
// subscribers with full buffers are skipped.
func (b *Bus) Broadcast(channel string, event Event) int {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for sub := range b.channels[channel] {
		select {
		case sub.C <- event:
			delivered++
		default:
		}
	}
	return delivered
}

// Close detaches and closes every subscription on every channel.
func (b *Bus) Close() {
	b.mu.Lock()
	channels := b.channels
	b.channels = make(map[string]map[*Subscription]struct{})
	b.mu.Unlock()

	for _, subs := range channels {
		for sub := range subs {
			sub.once.Do(func() {
				close(sub.C)
			})
		}
	}
}

// SubscriberCount reports the live subscriber count for a channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}
