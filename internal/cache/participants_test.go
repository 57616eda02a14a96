package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messagely/internal/apperrors"
)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) MessageParticipants(ctx context.Context, id int64) (string, string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.String(1), args.Error(2)
}

func TestParticipantCache_ReadThrough(t *testing.T) {
	lookup := &mockLookup{}
	lookup.On("MessageParticipants", mock.Anything, int64(1)).Return("a", "b", nil).Once()

	c, err := NewParticipantCache(lookup, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 3; i++ {
		from, to, err := c.MessageParticipants(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "a", from)
		assert.Equal(t, "b", to)
	}
	assert.Equal(t, 1, c.Len())
	lookup.AssertNumberOfCalls(t, "MessageParticipants", 1)
}

func TestParticipantCache_DoesNotCacheErrors(t *testing.T) {
	lookup := &mockLookup{}
	lookup.On("MessageParticipants", mock.Anything, int64(404)).Return("", "", apperrors.NotFound("message", "404"))
	lookup.On("MessageParticipants", mock.Anything, int64(500)).Return("", "", errors.New("db down"))

	c, err := NewParticipantCache(lookup, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 2; i++ {
		_, _, err := c.MessageParticipants(context.Background(), 404)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		_, _, err = c.MessageParticipants(context.Background(), 500)
		assert.EqualError(t, err, "db down")
	}
	assert.Equal(t, 0, c.Len())
	lookup.AssertNumberOfCalls(t, "MessageParticipants", 4)
}
