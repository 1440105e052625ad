package store

import (
	"context"
	"errors"
	"time"

	"github.com/alfredjeanlab/shoutboard/internal/idgen"
	"github.com/alfredjeanlab/shoutboard/internal/model"
)

var (
	// ErrTransitionConflict is returned by Transition when the message was
	// no longer in the expected state. Another actor got there first; it is
	// not a failure.
	ErrTransitionConflict = errors.New("transition conflict")

	// ErrNotFound is returned when a message does not exist.
	ErrNotFound = errors.New("message not found")

	// ErrExists is returned by CreateMessage when the id is taken.
	ErrExists = errors.New("message already exists")
)

// Store defines the persistence interface for board messages.
//
// Status only changes through Transition, which must apply atomically and
// only when the record still satisfies the transition guard. Everything
// else in the scheduler relies on that.
type Store interface {
	// Messages
	CreateMessage(ctx context.Context, m *model.Message) error
	SeedMessage(ctx context.Context, m *model.Message) (bool, error) // insert unless the id exists
	GetMessage(ctx context.Context, id string) (*model.Message, error)

	// Lifecycle
	Transition(ctx context.Context, t model.Transition) (*model.Message, error)

	// Queries
	CountByStatus(ctx context.Context, status model.Status) (int, error)                     // "" counts all
	FindOldest(ctx context.Context, status model.Status, limit int) ([]*model.Message, error) // createdAt, id ascending; "" matches all; 0 is unlimited
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Message, error)          // displaying with expiresAt <= now
	ListActive(ctx context.Context, limit int) ([]*model.Message, error)                      // displaying by displayedAt ascending
	SampleByStatus(ctx context.Context, status model.Status, n int) ([]*model.Message, error)

	// Display log
	RecordEvent(ctx context.Context, e *model.Event) error
	ListEvents(ctx context.Context, messageID string) ([]*model.Event, error)

	// Connection
	Ping(ctx context.Context) error
	Close() error
}

// Prepare fills the fields a new message gets on insert: an id when the
// caller left it empty, status queued, no display window, and a creation
// time. Times are kept at millisecond precision on every backend.
func Prepare(m *model.Message, now time.Time) error {
	if m.ID == "" {
		id, err := idgen.Generate()
		if err != nil {
			return err
		}
		m.ID = id
	}
	m.Status = model.StatusQueued
	m.DisplayedAt = nil
	m.ExpiresAt = nil
	m.DisplayCount = 0
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.CreatedAt = m.CreatedAt.UTC().Truncate(time.Millisecond)
	return nil
}
