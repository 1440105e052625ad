package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/shoutboard/internal/model"
)

// Event topic constants
const (
	TopicMessageActivated = "board.message.activated"
	TopicMessageExpired   = "board.message.expired"

	// TopicAll matches every board topic (NATS wildcard syntax).
	TopicAll = "board.message.>"
)

// Names of the events a viewer receives on the stream.
const (
	EventInitialState     = "initial-state"
	EventMessageActivated = "message-activated"
	EventMessageExpired   = "message-expired"
)

// EventName maps a bus topic to the event name viewers see.
func EventName(topic string) string {
	switch topic {
	case TopicMessageActivated:
		return EventMessageActivated
	case TopicMessageExpired:
		return EventMessageExpired
	}
	return topic
}

// MessageActivated announces that a message entered displaying, either from
// the queue or by resurfacing.
type MessageActivated struct {
	ID          string    `json:"id"`
	Author      *string   `json:"author"`
	Body        string    `json:"body"`
	DisplayedAt time.Time `json:"displayedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// NewMessageActivated builds the event for a message that is displaying.
func NewMessageActivated(m *model.Message) MessageActivated {
	e := MessageActivated{ID: m.ID, Author: m.Author, Body: m.Body}
	if m.DisplayedAt != nil {
		e.DisplayedAt = *m.DisplayedAt
	}
	if m.ExpiresAt != nil {
		e.ExpiresAt = *m.ExpiresAt
	}
	return e
}

// MessageExpired announces that a message left displaying. DisplayedAt
// identifies which display occurrence ended.
type MessageExpired struct {
	ID          string     `json:"id"`
	DisplayedAt *time.Time `json:"displayedAt,omitempty"`
}

// NewMessageExpired builds the event for a message that just expired.
func NewMessageExpired(m *model.Message) MessageExpired {
	return MessageExpired{ID: m.ID, DisplayedAt: m.DisplayedAt}
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
