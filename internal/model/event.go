package model

import "time"

// EventKind names an entry in the display log.
type EventKind string

const (
	EventActivated  EventKind = "activated"
	EventResurfaced EventKind = "resurfaced"
	EventExpired    EventKind = "expired"
)

// Event is an append-only record of one lifecycle transition. Occurrence is
// the message's display count at the time, so a resurfaced message keeps a
// separate entry per time it was shown.
type Event struct {
	ID         int64     `json:"id"`
	MessageID  string    `json:"messageId"`
	Kind       EventKind `json:"kind"`
	Occurrence int       `json:"occurrence"`
	At         time.Time `json:"at"`
	Instance   string    `json:"instance,omitempty"`
}
