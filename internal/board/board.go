// Package board holds the request-side operations on the message board:
// posting a message and reading the current display state.
package board

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store"
)

// MaxListLimit caps how many active messages one read returns.
const MaxListLimit = 200

// Service validates submissions and reads the store. It never changes a
// message's status and never publishes; that is the scheduler's job.
type Service struct {
	store     store.Store
	limits    model.Limits
	maxActive int
	now       func() time.Time
}

// New creates a service. maxActive is the display ceiling, used as the
// default list size and reported in stats.
func New(s store.Store, limits model.Limits, maxActive int) *Service {
	if limits.MaxBody <= 0 {
		limits.MaxBody = model.DefaultMaxBodyLength
	}
	if limits.MaxAuthor <= 0 {
		limits.MaxAuthor = model.DefaultMaxAuthorLength
	}
	return &Service{store: s, limits: limits, maxActive: maxActive, now: time.Now}
}

// Limits returns the submission limits in force.
func (s *Service) Limits() model.Limits {
	return s.limits
}

// Create validates a submission and queues it. It returns a
// *model.ValidationError without touching the store when the submission is
// rejected.
func (s *Service) Create(ctx context.Context, author *string, body string) (*model.Message, error) {
	sub, err := s.limits.Normalize(model.Submission{Author: author, Body: body})
	if err != nil {
		return nil, err
	}
	m := &model.Message{
		Author:    sub.Author,
		Body:      sub.Body,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

// Get returns one message by id, or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*model.Message, error) {
	return s.store.GetMessage(ctx, id)
}

// Events returns the display log of one message, oldest first. It returns
// store.ErrNotFound when the message does not exist.
func (s *Service) Events(ctx context.Context, id string) ([]*model.Event, error) {
	if _, err := s.store.GetMessage(ctx, id); err != nil {
		return nil, err
	}
	evs, err := s.store.ListEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return evs, nil
}

// ListActive returns the displaying messages ordered by when they started
// displaying. A non-positive limit means the display ceiling.
func (s *Service) ListActive(ctx context.Context, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = s.maxActive
	}
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.store.ListActive(ctx, limit)
}

// Stats counts messages per status.
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{MaxActive: s.maxActive}
	for _, c := range []struct {
		status model.Status
		dst    *int
	}{
		{model.StatusQueued, &st.Queued},
		{model.StatusDisplaying, &st.Displaying},
		{model.StatusExpired, &st.Expired},
	} {
		n, err := s.store.CountByStatus(ctx, c.status)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c.status, err)
		}
		*c.dst = n
	}
	return st, nil
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
