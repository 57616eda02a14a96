package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"messagely/internal/apperrors"
	"messagely/internal/models"
)

func seedUsers(t *testing.T, s *Store, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, s.InsertUser(context.Background(), &models.User{
			Username:  name,
			FirstName: name + "-first",
			LastName:  name + "-last",
			Phone:     "555-5555",
			JoinedAt:  time.Now(),
		}))
	}
}

func TestStore_Users(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedUsers(t, s, "b", "a")

	err := s.InsertUser(ctx, &models.User{Username: "a", PasswordHash: "other"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	u, err := s.GetUserByUsername(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a-first", u.FirstName)
	assert.Nil(t, u.LastLoginAt)

	_, err = s.GetUserByUsername(ctx, "zed")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	at := time.Now()
	require.NoError(t, s.UpdateLastLogin(ctx, "a", at))
	u, err = s.GetUserByUsername(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, u.LastLoginAt)
	assert.True(t, at.Equal(*u.LastLoginAt))
	assert.ErrorIs(t, s.UpdateLastLogin(ctx, "zed", at), apperrors.ErrNotFound)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a", users[0].Username)
	assert.Equal(t, "b", users[1].Username)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedUsers(t, s, "a")

	u, err := s.GetUserByUsername(ctx, "a")
	require.NoError(t, err)
	u.FirstName = "mutated"

	again, err := s.GetUserByUsername(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a-first", again.FirstName)
}

func TestStore_Messages(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedUsers(t, s, "a", "b", "c")

	m1 := &models.Message{FromUsername: "a", ToUsername: "b", Body: "whats up", SentAt: time.Now()}
	require.NoError(t, s.InsertMessage(ctx, m1))
	m2 := &models.Message{FromUsername: "c", ToUsername: "a", Body: "who am i", SentAt: time.Now()}
	require.NoError(t, s.InsertMessage(ctx, m2))
	assert.Equal(t, int64(1), m1.ID)
	assert.Equal(t, int64(2), m2.ID)

	err := s.InsertMessage(ctx, &models.Message{FromUsername: "a", ToUsername: "zed", Body: "x"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := s.GetMessageByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "whats up", got.Body)
	_, err = s.GetMessageByID(ctx, 42)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	detail, err := s.GetMessageDetail(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "c", detail.FromUser.Username)
	assert.Equal(t, "a-last", detail.ToUser.LastName)
	assert.Equal(t, "555-5555", detail.ToUser.Phone)

	sent, err := s.ListSent(ctx, "a")
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "b", sent[0].ToUser.Username)

	received, err := s.ListReceived(ctx, "a")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "c", received[0].FromUser.Username)

	require.NoError(t, s.Reset(ctx))
	_, err = s.GetMessageByID(ctx, 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_MarkReadConcurrently(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedUsers(t, s, "a", "b")
	msg := &models.Message{FromUsername: "a", ToUsername: "b", Body: "hi", SentAt: time.Now()}
	require.NoError(t, s.InsertMessage(ctx, msg))

	const readers = 16
	receipts := make([]*models.ReadReceipt, readers)
	var g errgroup.Group
	for i := 0; i < readers; i++ {
		i := i
		g.Go(func() error {
			r, err := s.MarkMessageRead(ctx, msg.ID, time.Now().Add(time.Duration(i)*time.Minute))
			receipts[i] = r
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, r := range receipts {
		assert.True(t, receipts[0].ReadAt.Equal(r.ReadAt), "every caller sees the first read time")
	}

	_, err := s.MarkMessageRead(ctx, 99, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetUserByUsername(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}
