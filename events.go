package fleetAuth

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event.
type EventType string

const (
	EventChallengeIssued         EventType = "challenge.issued"
	EventChallengeDeliveryFailed EventType = "challenge.delivery_failed"
	EventPrincipalRegistered     EventType = "principal.registered"
	EventPrincipalAuthenticated  EventType = "principal.authenticated"
	EventTokenRefreshed          EventType = "token.refreshed"
	EventPrincipalLoggedOut      EventType = "principal.logged_out"
)

// Event is a domain event produced by an operation. The Engine returns events
// in result values and never publishes them itself.
type Event struct {
	ID          string
	Type        EventType
	PrincipalID string
	Identifier  string
	Role        string
	OccurredAt  time.Time
}

func (e *Engine) newEvent(t EventType, principalID, identifier string, role Role) Event {
	ev := Event{
		ID:          uuid.NewString(),
		Type:        t,
		PrincipalID: principalID,
		Identifier:  identifier,
		OccurredAt:  e.now().UTC(),
	}
	if role.Valid() {
		ev.Role = role.String()
	}
	return ev
}
