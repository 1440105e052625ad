// Package memory implements store.Store in process memory. It is meant for
// development and tests; it cannot be shared between server processes.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store"
)

var errClosed = errors.New("memory store closed")

// Store keeps messages in a map guarded by a single mutex.
type Store struct {
	mu       sync.RWMutex
	messages map[string]*model.Message
	events   []*model.Event
	nextEvt  int64
	closed   bool
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{messages: make(map[string]*model.Message)}
}

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	if err := store.Prepare(m, time.Now()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, ok := s.messages[m.ID]; ok {
		return fmt.Errorf("create %s: %w", m.ID, store.ErrExists)
	}
	s.messages[m.ID] = m.Clone()
	return nil
}

func (s *Store) SeedMessage(ctx context.Context, m *model.Message) (bool, error) {
	if err := store.Prepare(m, time.Now()); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if _, ok := s.messages[m.ID]; ok {
		return false, nil
	}
	s.messages[m.ID] = m.Clone()
	return true, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	m, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *Store) Transition(ctx context.Context, t model.Transition) (*model.Message, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	m, ok := s.messages[t.ID]
	if !ok || !t.Matches(m) {
		return nil, store.ErrTransitionConflict
	}
	t.Apply(m)
	return m.Clone(), nil
}

func (s *Store) CountByStatus(ctx context.Context, status model.Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if status == "" {
		return len(s.messages), nil
	}
	n := 0
	for _, m := range s.messages {
		if m.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *Store) FindOldest(ctx context.Context, status model.Status, limit int) ([]*model.Message, error) {
	return s.collect(status, limit, nil, func(a, b *model.Message) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Message, error) {
	due := func(m *model.Message) bool { return m.ExpiresAt != nil && !m.ExpiresAt.After(now) }
	return s.collect(model.StatusDisplaying, limit, due, func(a, b *model.Message) bool {
		if !a.ExpiresAt.Equal(*b.ExpiresAt) {
			return a.ExpiresAt.Before(*b.ExpiresAt)
		}
		return a.ID < b.ID
	})
}

func (s *Store) ListActive(ctx context.Context, limit int) ([]*model.Message, error) {
	return s.collect(model.StatusDisplaying, limit, nil, func(a, b *model.Message) bool {
		if !a.DisplayedAt.Equal(*b.DisplayedAt) {
			return a.DisplayedAt.Before(*b.DisplayedAt)
		}
		return a.ID < b.ID
	})
}

func (s *Store) SampleByStatus(ctx context.Context, status model.Status, n int) ([]*model.Message, error) {
	all, err := s.collect(status, 0, nil, nil)
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// collect returns clones of the messages with the given status (all when
// empty) that pass keep, sorted by less and cut to limit.
func (s *Store) collect(status model.Status, limit int, keep func(*model.Message) bool, less func(a, b *model.Message) bool) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var out []*model.Message
	for _, m := range s.messages {
		if status != "" && m.Status != status {
			continue
		}
		if keep != nil && !keep(m) {
			continue
		}
		out = append(out, m.Clone())
	}
	if less != nil {
		sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RecordEvent(ctx context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.nextEvt++
	e.ID = s.nextEvt
	c := *e
	s.events = append(s.events, &c)
	return nil
}

func (s *Store) ListEvents(ctx context.Context, messageID string) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var out []*model.Event
	for _, e := range s.events {
		if e.MessageID == messageID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkOpen()
}

// Close marks the store closed; later calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) checkOpen() error {
	if s.closed {
		return errClosed
	}
	return nil
}
