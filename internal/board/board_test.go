package board

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store"
	"github.com/alfredjeanlab/shoutboard/internal/store/memory"
)

func strPtr(s string) *string { return &s }

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	t.Cleanup(func() { st.Close() })
	return New(st, model.DefaultLimits(), 3), st
}

func TestCreate_QueuesMessage(t *testing.T) {
	svc, st := newService(t)
	now := time.Date(2025, 12, 3, 9, 30, 0, 123456789, time.UTC)
	svc.now = func() time.Time { return now }

	m, err := svc.Create(context.Background(), strPtr("  Alice "), "  Great year, everyone!  ")
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "Alice", *m.Author)
	assert.Equal(t, "Great year, everyone!", m.Body)
	assert.Equal(t, model.StatusQueued, m.Status)
	assert.Equal(t, now.Truncate(time.Millisecond), m.CreatedAt)
	assert.Nil(t, m.DisplayedAt)
	assert.Nil(t, m.ExpiresAt)
	assert.Zero(t, m.DisplayCount)

	got, err := st.GetMessage(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestCreate_AnonymousAuthor(t *testing.T) {
	svc, _ := newService(t)

	for _, author := range []*string{nil, strPtr(""), strPtr("   ")} {
		m, err := svc.Create(context.Background(), author, "hello")
		require.NoError(t, err)
		assert.Nil(t, m.Author)
		assert.Equal(t, "anonymous", m.AuthorName())
	}
}

func TestCreate_RejectsWithoutInsert(t *testing.T) {
	tests := []struct {
		name   string
		author *string
		body   string
		field  string
	}{
		{"empty body", nil, "", "body"},
		{"blank body", nil, " \t\n", "body"},
		{"oversize body", nil, strings.Repeat("x", 141), "body"},
		{"oversize author", strPtr(strings.Repeat("a", 101)), "hi", "author"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newService(t)

			m, err := svc.Create(context.Background(), tt.author, tt.body)
			assert.Nil(t, m)

			var ve *model.ValidationError
			require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
			require.Len(t, ve.Errors, 1)
			assert.Equal(t, tt.field, ve.Errors[0].Field)

			n, err := st.CountByStatus(context.Background(), "")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestCreate_BodyLengthCountsCharacters(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Create(context.Background(), nil, strings.Repeat("🎉", 140))
	assert.NoError(t, err)

	_, err = svc.Create(context.Background(), nil, strings.Repeat("🎉", 141))
	assert.Error(t, err)
}

func TestCreate_StoreFailure(t *testing.T) {
	svc, st := newService(t)
	require.NoError(t, st.Close())

	_, err := svc.Create(context.Background(), nil, "hello")
	require.Error(t, err)

	var ve *model.ValidationError
	assert.False(t, errors.As(err, &ve))
}

func TestListActive_OrderAndLimit(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	base := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, st.CreateMessage(ctx, &model.Message{ID: id, Body: id}))
		// Activate in reverse so displayedAt order differs from insert order.
		_, err := st.Transition(ctx, model.Activate(id, base.Add(time.Duration(5-i)*time.Second), time.Minute))
		require.NoError(t, err)
	}

	got, err := svc.ListActive(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"e", "d", "c"}, ids(got))

	got, err = svc.ListActive(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = svc.ListActive(ctx, MaxListLimit+1)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestStats(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, st.CreateMessage(ctx, &model.Message{ID: id, Body: id}))
	}
	_, err := st.Transition(ctx, model.Activate("a", now, time.Minute))
	require.NoError(t, err)
	_, err = st.Transition(ctx, model.Activate("b", now, time.Second))
	require.NoError(t, err)
	_, err = st.Transition(ctx, model.Expire("b", now.Add(time.Second)))
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &model.Stats{Queued: 1, Displaying: 1, Expired: 1, MaxActive: 3}, stats)
}

func TestEvents_NotFound(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Events(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func ids(ms []*model.Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
