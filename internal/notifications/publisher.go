package notifications

import (
	"context"
	"strings"
)

// Publisher adapts the in-process bus to the notifier contract the services
// expect. Broadcasts are non-blocking; delivery is best effort.
type Publisher struct {
	bus *Bus
}

// NewPublisher wraps the bus for service-side fan-out.
func NewPublisher(bus *Bus) *Publisher {
	return &Publisher{bus: bus}
}

// NotifyOperators pushes the event to every connected operator session.
func (p *Publisher) NotifyOperators(ctx context.Context, event Event) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Broadcast(OperatorChannel, event)
}

// NotifyCustomer pushes the event to the customer's channel, if any session is
// connected.
func (p *Publisher) NotifyCustomer(ctx context.Context, customerID string, event Event) {
	if p == nil || p.bus == nil || strings.TrimSpace(customerID) == "" {
		return
	}
	p.bus.Broadcast(CustomerChannel(customerID), event)
}
