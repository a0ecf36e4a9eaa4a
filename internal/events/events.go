// Package events describes the domain events emitted by the bookkeeping
// services and the publishers that deliver them.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event types.
const (
	TypeUserRegistered = "user.registered"
	TypeRecordCreated  = "record.created"
	TypeRecordUpdated  = "record.updated"
	TypeRecordDeleted  = "record.deleted"
)

// Event is a single domain event.
type Event struct {
	Type       string    `json:"type"`
	UserID     int64     `json:"user_id"`
	RecordID   int64     `json:"record_id,omitempty"`
	IsIncome   bool      `json:"is_income,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New returns an event of the given type stamped with the current time.
func New(eventType string, userID int64) Event {
	return Event{Type: eventType, UserID: userID, OccurredAt: time.Now().UTC()}
}

// ToJSON converts the event to JSON bytes.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events to a downstream consumer.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
