package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"messagely/internal/apperrors"
)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) MessageParticipants(ctx context.Context, id int64) (string, string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.String(1), args.Error(2)
}

func as(username string) context.Context {
	return WithIdentity(context.Background(), &Identity{Username: username})
}

func TestRequireLoggedIn(t *testing.T) {
	assert.NoError(t, Enforce(as("alice"), RequireLoggedIn()))
	assert.ErrorIs(t, Enforce(context.Background(), RequireLoggedIn()), apperrors.ErrUnauthorized)
	assert.ErrorIs(t, Enforce(as(""), RequireLoggedIn()), apperrors.ErrUnauthorized)
}

func TestRequireSameUser(t *testing.T) {
	assert.NoError(t, Enforce(as("alice"), RequireSameUser("alice")))
	assert.ErrorIs(t, Enforce(as("bob"), RequireSameUser("alice")), apperrors.ErrUnauthorized)
	assert.ErrorIs(t, Enforce(context.Background(), RequireSameUser("alice")), apperrors.ErrUnauthorized)
	assert.ErrorIs(t, Enforce(as("Alice"), RequireSameUser("alice")), apperrors.ErrUnauthorized)
}

func TestRequireMessageParticipant(t *testing.T) {
	lookup := &mockLookup{}
	lookup.On("MessageParticipants", mock.Anything, int64(1)).Return("alice", "bob", nil)
	lookup.On("MessageParticipants", mock.Anything, int64(404)).Return("", "", apperrors.NotFound("message", "404"))
	lookup.On("MessageParticipants", mock.Anything, int64(500)).Return("", "", errors.New("disk on fire"))
	authz := NewAuthorizer(lookup)

	assert.NoError(t, Enforce(as("alice"), authz.RequireMessageParticipant(1)))
	assert.NoError(t, Enforce(as("bob"), authz.RequireMessageParticipant(1)))
	assert.ErrorIs(t, Enforce(as("carol"), authz.RequireMessageParticipant(1)), apperrors.ErrUnauthorized)

	err := Enforce(as("alice"), authz.RequireMessageParticipant(404))
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)

	err = Enforce(as("alice"), authz.RequireMessageParticipant(500))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestRequireMessageRecipient(t *testing.T) {
	lookup := &mockLookup{}
	lookup.On("MessageParticipants", mock.Anything, int64(1)).Return("alice", "bob", nil)
	lookup.On("MessageParticipants", mock.Anything, int64(404)).Return("", "", apperrors.NotFound("message", "404"))
	authz := NewAuthorizer(lookup)

	assert.NoError(t, Enforce(as("bob"), authz.RequireMessageRecipient(1)))
	assert.ErrorIs(t, Enforce(as("alice"), authz.RequireMessageRecipient(1)), apperrors.ErrUnauthorized)
	assert.ErrorIs(t, Enforce(as("carol"), authz.RequireMessageRecipient(1)), apperrors.ErrUnauthorized)
	assert.ErrorIs(t, Enforce(as("bob"), authz.RequireMessageRecipient(404)), apperrors.ErrUnauthorized)
}

func TestMessageGuards_AnonymousSkipsLookup(t *testing.T) {
	lookup := &mockLookup{}
	authz := NewAuthorizer(lookup)

	assert.ErrorIs(t, Enforce(context.Background(), authz.RequireMessageParticipant(1)), apperrors.ErrUnauthorized)
	assert.ErrorIs(t, Enforce(context.Background(), authz.RequireMessageRecipient(1)), apperrors.ErrUnauthorized)
	lookup.AssertNotCalled(t, "MessageParticipants", mock.Anything, mock.Anything)
}

func TestEnforce_StopsAtFirstRejection(t *testing.T) {
	lookup := &mockLookup{}
	authz := NewAuthorizer(lookup)

	err := Enforce(as("alice"), RequireSameUser("bob"), authz.RequireMessageRecipient(1))
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	lookup.AssertNotCalled(t, "MessageParticipants", mock.Anything, mock.Anything)

	assert.NoError(t, Enforce(as("alice")))
}
