package billing

import "github.com/alyanaluz/gatekeeper/internal/domain/entities"

// EventType enumerates the provider webhook event types this service acts
// on. Anything else is accepted and ignored for forward compatibility.
type EventType string

const (
	EventSubscriptionCreated EventType = "customer.subscription.created"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
)

// Actionable reports whether the event type affects entitlement state
func (t EventType) Actionable() bool {
	switch t {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return true
	}
	return false
}

// Event is a provider webhook event after strict decoding at the boundary.
// Events arrive at-least-once and possibly out of order; Status is derived
// solely from the event's own payload, so applying the same event twice or
// in any order converges to the provider's reported state. Events are not
// persisted beyond their effect on the entitlement record.
type Event struct {
	ID         string
	Type       EventType
	AccountRef string
	Status     entities.Status
	Detail     string
}
