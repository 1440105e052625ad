package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store"
	"github.com/alfredjeanlab/shoutboard/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}

func TestClosedStoreFails(t *testing.T) {
	s := New()
	assert.NoError(t, s.CreateMessage(context.Background(), &model.Message{ID: "m1", Body: "x"}))
	assert.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
	assert.Error(t, s.CreateMessage(context.Background(), &model.Message{Body: "x"}))
	_, err := s.CountByStatus(context.Background(), model.StatusDisplaying)
	assert.Error(t, err)

	m, err := s.GetMessage(context.Background(), "m1")
	assert.Nil(t, m)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)

	evs, err := s.ListEvents(context.Background(), "m1")
	assert.Nil(t, evs)
	assert.Error(t, err)
}

func TestReturnedMessagesAreCopies(t *testing.T) {
	s := New()
	m := &model.Message{ID: "m1", Body: "original"}
	assert.NoError(t, s.CreateMessage(context.Background(), m))
	m.Body = "mutated"

	got, err := s.GetMessage(context.Background(), "m1")
	assert.NoError(t, err)
	assert.Equal(t, "original", got.Body)
}
