// Package storetest is a conformance suite for store.Store implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store"
)

// Base is the reference time used by the suite.
var Base = time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)

// Run exercises s against the Store contract. newStore must return an
// empty store each time it is called; the suite closes nothing itself.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateDuplicate", testCreateDuplicate},
		{"SeedIsIdempotent", testSeed},
		{"FindOldestIsFIFO", testFindOldest},
		{"Activate", testActivate},
		{"ExpireGuard", testExpireGuard},
		{"Resurface", testResurface},
		{"TransitionUnknownID", testTransitionUnknown},
		{"CountByStatus", testCount},
		{"ListDue", testListDue},
		{"ListActive", testListActive},
		{"SampleByStatus", testSample},
		{"ConcurrentActivate", testConcurrentActivate},
		{"Events", testEvents},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func strPtr(s string) *string { return &s }

// add inserts a queued message created offset after Base.
func add(t *testing.T, s store.Store, id string, offset time.Duration) *model.Message {
	t.Helper()
	m := &model.Message{ID: id, Body: "body of " + id, CreatedAt: Base.Add(offset)}
	require.NoError(t, s.CreateMessage(context.Background(), m))
	return m
}

// activate moves id into displaying at Base+at for d.
func activate(t *testing.T, s store.Store, id string, at, d time.Duration) *model.Message {
	t.Helper()
	m, err := s.Transition(context.Background(), model.Activate(id, Base.Add(at), d))
	require.NoError(t, err)
	return m
}

func ids(msgs []*model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()

	anon := &model.Message{Body: "Great job team!"}
	require.NoError(t, s.CreateMessage(ctx, anon))
	assert.Regexp(t, `^msg-`, anon.ID)
	assert.Equal(t, model.StatusQueued, anon.Status)
	assert.False(t, anon.CreatedAt.IsZero())

	got, err := s.GetMessage(ctx, anon.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Author)
	assert.Equal(t, "Great job team!", got.Body)
	assert.Equal(t, model.StatusQueued, got.Status)
	assert.Nil(t, got.DisplayedAt)
	assert.Nil(t, got.ExpiresAt)
	assert.Equal(t, 0, got.DisplayCount)
	assert.True(t, anon.CreatedAt.Equal(got.CreatedAt), "createdAt %v != %v", got.CreatedAt, anon.CreatedAt)

	named := &model.Message{Author: strPtr("Alice"), Body: "hi", CreatedAt: Base}
	require.NoError(t, s.CreateMessage(ctx, named))
	got, err = s.GetMessage(ctx, named.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Author)
	assert.Equal(t, "Alice", *got.Author)
	assert.True(t, Base.Equal(got.CreatedAt))

	_, err = s.GetMessage(ctx, "msg-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCreateDuplicate(t *testing.T, s store.Store) {
	add(t, s, "m1", 0)
	err := s.CreateMessage(context.Background(), &model.Message{ID: "m1", Body: "again"})
	assert.ErrorIs(t, err, store.ErrExists)
}

func testSeed(t *testing.T, s store.Store) {
	ctx := context.Background()
	inserted, err := s.SeedMessage(ctx, &model.Message{ID: "placeholder-1", Body: "Welcome"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.SeedMessage(ctx, &model.Message{ID: "placeholder-1", Body: "Welcome again"})
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := s.CountByStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := s.GetMessage(ctx, "placeholder-1")
	require.NoError(t, err)
	assert.Equal(t, "Welcome", got.Body)
}

func testFindOldest(t *testing.T, s store.Store) {
	ctx := context.Background()
	add(t, s, "c", 2*time.Second)
	add(t, s, "a", 0)
	add(t, s, "b2", time.Second)
	add(t, s, "b1", time.Second)

	got, err := s.FindOldest(ctx, model.StatusQueued, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b1", "b2"}, ids(got))

	activate(t, s, "a", 0, time.Minute)
	got, err = s.FindOldest(ctx, model.StatusQueued, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2", "c"}, ids(got))

	all, err := s.FindOldest(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids(all))
}

func testActivate(t *testing.T, s store.Store) {
	ctx := context.Background()
	add(t, s, "m1", 0)

	m := activate(t, s, "m1", 5*time.Second, time.Minute)
	assert.Equal(t, model.StatusDisplaying, m.Status)
	require.NotNil(t, m.DisplayedAt)
	require.NotNil(t, m.ExpiresAt)
	assert.True(t, Base.Add(5*time.Second).Equal(*m.DisplayedAt))
	assert.True(t, Base.Add(65*time.Second).Equal(*m.ExpiresAt))
	assert.Equal(t, 1, m.DisplayCount)
	assert.Equal(t, "body of m1", m.Body)

	_, err := s.Transition(ctx, model.Activate("m1", Base.Add(6*time.Second), time.Minute))
	assert.ErrorIs(t, err, store.ErrTransitionConflict)

	got, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, Base.Add(5*time.Second).Equal(*got.DisplayedAt), "displayedAt changed during the occurrence")
}

func testExpireGuard(t *testing.T, s store.Store) {
	ctx := context.Background()
	add(t, s, "m1", 0)
	activate(t, s, "m1", 0, time.Minute)

	_, err := s.Transition(ctx, model.Expire("m1", Base.Add(59*time.Second)))
	assert.ErrorIs(t, err, store.ErrTransitionConflict)

	m, err := s.Transition(ctx, model.Expire("m1", Base.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, m.Status)

	_, err = s.Transition(ctx, model.Expire("m1", Base.Add(2*time.Minute)))
	assert.ErrorIs(t, err, store.ErrTransitionConflict)

	// A queued message cannot be expired.
	add(t, s, "m2", time.Second)
	_, err = s.Transition(ctx, model.Expire("m2", Base.Add(time.Hour)))
	assert.ErrorIs(t, err, store.ErrTransitionConflict)
}

func testResurface(t *testing.T, s store.Store) {
	ctx := context.Background()
	add(t, s, "m1", 0)
	activate(t, s, "m1", 0, time.Minute)

	// Only expired messages resurface.
	_, err := s.Transition(ctx, model.Resurface("m1", Base.Add(time.Minute), time.Minute))
	assert.ErrorIs(t, err, store.ErrTransitionConflict)

	_, err = s.Transition(ctx, model.Expire("m1", Base.Add(time.Minute)))
	require.NoError(t, err)

	m, err := s.Transition(ctx, model.Resurface("m1", Base.Add(2*time.Minute), 30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, model.StatusDisplaying, m.Status)
	assert.Equal(t, 2, m.DisplayCount)
	assert.True(t, Base.Add(2*time.Minute).Equal(*m.DisplayedAt))
	assert.True(t, Base.Add(150*time.Second).Equal(*m.ExpiresAt))

	// An expiry computed against the previous occurrence must not apply.
	_, err = s.Transition(ctx, model.Expire("m1", Base.Add(time.Minute)))
	assert.ErrorIs(t, err, store.ErrTransitionConflict)
}

func testTransitionUnknown(t *testing.T, s store.Store) {
	_, err := s.Transition(context.Background(), model.Activate("nope", Base, time.Minute))
	assert.ErrorIs(t, err, store.ErrTransitionConflict)

	_, err = s.Transition(context.Background(), model.Transition{ID: "nope", From: model.StatusExpired, To: model.StatusQueued})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrTransitionConflict)
}

func testCount(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		add(t, s, fmt.Sprintf("m%d", i), time.Duration(i)*time.Second)
	}
	activate(t, s, "m0", 0, time.Minute)
	activate(t, s, "m1", 0, time.Minute)
	_, err := s.Transition(ctx, model.Expire("m0", Base.Add(time.Minute)))
	require.NoError(t, err)

	for status, want := range map[model.Status]int{
		model.StatusQueued:     3,
		model.StatusDisplaying: 1,
		model.StatusExpired:    1,
		"":                     5,
	} {
		n, err := s.CountByStatus(ctx, status)
		require.NoError(t, err)
		assert.Equal(t, want, n, "count(%q)", status)
	}
}

func testListDue(t *testing.T, s store.Store) {
	ctx := context.Background()
	add(t, s, "short", 0)
	add(t, s, "long", time.Second)
	add(t, s, "later", 2*time.Second)
	activate(t, s, "long", 0, 2*time.Minute)
	activate(t, s, "short", 0, time.Minute)
	activate(t, s, "later", 0, 10*time.Minute)

	due, err := s.ListDue(ctx, Base.Add(5*time.Minute), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"short", "long"}, ids(due))

	due, err = s.ListDue(ctx, Base.Add(time.Minute), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"short"}, ids(due))

	due, err = s.ListDue(ctx, Base.Add(59*time.Second), 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.ListDue(ctx, Base.Add(time.Hour), 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func testListActive(t *testing.T, s store.Store) {
	ctx := context.Background()
	add(t, s, "a", 0)
	add(t, s, "b", time.Second)
	add(t, s, "c", 2*time.Second)
	add(t, s, "q", 3*time.Second)
	activate(t, s, "c", time.Second, time.Minute)
	activate(t, s, "a", 3*time.Second, time.Minute)
	activate(t, s, "b", 2*time.Second, time.Minute)

	active, err := s.ListActive(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(active))

	active, err = s.ListActive(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(active))
}

func testSample(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("m%d", i)
		add(t, s, id, time.Duration(i)*time.Second)
		if i < 4 {
			activate(t, s, id, 0, time.Second)
			_, err := s.Transition(ctx, model.Expire(id, Base.Add(time.Second)))
			require.NoError(t, err)
		}
	}

	got, err := s.SampleByStatus(ctx, model.StatusExpired, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	seen := map[string]bool{}
	for _, m := range got {
		assert.Equal(t, model.StatusExpired, m.Status)
		assert.False(t, seen[m.ID], "duplicate %s in sample", m.ID)
		seen[m.ID] = true
	}

	got, err = s.SampleByStatus(ctx, model.StatusExpired, 10)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = s.SampleByStatus(ctx, model.StatusDisplaying, 2)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testConcurrentActivate(t *testing.T, s store.Store) {
	add(t, s, "m1", 0)

	const workers = 16
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Transition(context.Background(), model.Activate("m1", Base.Add(time.Duration(i)*time.Millisecond), time.Minute))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, store.ErrTransitionConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())
}

func testEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	e1 := &model.Event{MessageID: "m1", Kind: model.EventActivated, Occurrence: 1, At: Base, Instance: "a"}
	e2 := &model.Event{MessageID: "m2", Kind: model.EventActivated, Occurrence: 1, At: Base}
	e3 := &model.Event{MessageID: "m1", Kind: model.EventExpired, Occurrence: 1, At: Base.Add(time.Minute), Instance: "b"}
	for _, e := range []*model.Event{e1, e2, e3} {
		require.NoError(t, s.RecordEvent(ctx, e))
	}
	assert.Greater(t, e3.ID, e1.ID)

	got, err := s.ListEvents(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.EventActivated, got[0].Kind)
	assert.Equal(t, "a", got[0].Instance)
	assert.Equal(t, model.EventExpired, got[1].Kind)
	assert.True(t, Base.Add(time.Minute).Equal(got[1].At))

	got, err = s.ListEvents(ctx, "none")
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.NoError(t, s.Ping(ctx))
}
