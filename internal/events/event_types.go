package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventLeadCreated      EventType = "lead_created"
	EventLeadStateChanged EventType = "lead_state_changed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	LeadID    string      `json:"lead_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps an event with a fresh id and the current UTC time.
func NewEvent(eventType EventType, leadID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		LeadID:    leadID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// LeadCreatedPayload payload.
type LeadCreatedPayload struct {
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// LeadStateChangedPayload payload.
type LeadStateChangedPayload struct {
	NewState string `json:"new_state"`
}
