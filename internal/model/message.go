package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a message.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusDisplaying Status = "displaying"
	StatusExpired    Status = "expired"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusDisplaying, StatusExpired:
		return true
	}
	return false
}

// Message is a single board submission and its display state.
//
// DisplayedAt and ExpiresAt are nil exactly while the message is queued and
// are written together, once per entry into the displaying status.
type Message struct {
	ID           string     `json:"id"`
	Author       *string    `json:"author"`
	Body         string     `json:"body"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	DisplayedAt  *time.Time `json:"displayedAt"`
	ExpiresAt    *time.Time `json:"expiresAt"`
	DisplayCount int        `json:"displayCount"`
}

// AuthorName returns the author or "anonymous" when none was given.
func (m *Message) AuthorName() string {
	if m.Author == nil {
		return "anonymous"
	}
	return *m.Author
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	if m.Author != nil {
		a := *m.Author
		c.Author = &a
	}
	if m.DisplayedAt != nil {
		t := *m.DisplayedAt
		c.DisplayedAt = &t
	}
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Transition is a conditional status change: it applies only while the
// message is still in From. Entering displaying stamps DisplayedAt with At
// and ExpiresAt with At+Duration. Leaving displaying additionally requires
// ExpiresAt <= At.
type Transition struct {
	ID       string
	From     Status
	To       Status
	At       time.Time
	Duration time.Duration
}

// Activate returns the queued -> displaying transition for id.
func Activate(id string, at time.Time, d time.Duration) Transition {
	return Transition{ID: id, From: StatusQueued, To: StatusDisplaying, At: at, Duration: d}
}

// Resurface returns the expired -> displaying transition for id.
func Resurface(id string, at time.Time, d time.Duration) Transition {
	return Transition{ID: id, From: StatusExpired, To: StatusDisplaying, At: at, Duration: d}
}

// Expire returns the displaying -> expired transition for id.
func Expire(id string, at time.Time) Transition {
	return Transition{ID: id, From: StatusDisplaying, To: StatusExpired, At: at}
}

// ExpiresAt returns the expiry stamped by a transition into displaying.
func (t Transition) ExpiresAt() time.Time {
	return t.At.Add(t.Duration)
}

// Validate rejects transitions outside the lifecycle graph.
func (t Transition) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transition: empty message id")
	}
	switch {
	case t.From == StatusQueued && t.To == StatusDisplaying,
		t.From == StatusExpired && t.To == StatusDisplaying:
		if t.Duration <= 0 {
			return fmt.Errorf("transition %s: display duration must be positive", t.ID)
		}
		return nil
	case t.From == StatusDisplaying && t.To == StatusExpired:
		return nil
	}
	return fmt.Errorf("transition %s: %s -> %s is not allowed", t.ID, t.From, t.To)
}

// Apply mutates m as the transition describes. Callers must have checked
// the guard already; Apply only writes fields.
func (t Transition) Apply(m *Message) {
	m.Status = t.To
	if t.To == StatusDisplaying {
		at := t.At
		exp := t.ExpiresAt()
		m.DisplayedAt = &at
		m.ExpiresAt = &exp
		m.DisplayCount++
	}
}

// Matches reports whether m currently satisfies the transition guard.
func (t Transition) Matches(m *Message) bool {
	if m.Status != t.From {
		return false
	}
	if t.From == StatusDisplaying {
		return m.ExpiresAt != nil && !m.ExpiresAt.After(t.At)
	}
	return true
}

// Stats summarises the board.
type Stats struct {
	Queued     int `json:"queued"`
	Displaying int `json:"displaying"`
	Expired    int `json:"expired"`
	MaxActive  int `json:"maxActive"`
	Viewers    int `json:"viewers"`
}
