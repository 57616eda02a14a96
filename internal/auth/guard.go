package auth

import (
	"context"
	"errors"
	"fmt"

	"messagely/internal/apperrors"
	"messagely/internal/metrics"
)

// Guard is a named precondition on a protected action. Check returns nil to
// let the call through and an error to stop it.
type Guard struct {
	name  string
	check func(ctx context.Context) error
}

// Name identifies the guard in logs and metrics.
func (g Guard) Name() string { return g.name }

// Check runs the guard against the identity carried by ctx.
func (g Guard) Check(ctx context.Context) error {
	return g.check(ctx)
}

// Enforce runs guards in order and stops at the first rejection.
func Enforce(ctx context.Context, guards ...Guard) error {
	for _, g := range guards {
		if err := g.Check(ctx); err != nil {
			if errors.Is(err, apperrors.ErrUnauthorized) {
				metrics.GuardRejections.WithLabelValues(g.name).Inc()
			}
			return err
		}
	}
	return nil
}

// ParticipantLookup resolves the sender and recipient of a message.
// A missing message must be reported with an error wrapping
// apperrors.ErrNotFound.
type ParticipantLookup interface {
	MessageParticipants(ctx context.Context, messageID int64) (from, to string, err error)
}

// CurrentUser returns the identity attached to ctx or ErrUnauthorized.
func CurrentUser(ctx context.Context) (*Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.Username == "" {
		return nil, apperrors.Unauthorized()
	}
	return id, nil
}

// RequireLoggedIn rejects anonymous callers.
func RequireLoggedIn() Guard {
	return Guard{
		name: "logged_in",
		check: func(ctx context.Context) error {
			_, err := CurrentUser(ctx)
			return err
		},
	}
}

// RequireSameUser rejects callers other than username. Anonymous and
// mismatched callers get the same error.
func RequireSameUser(username string) Guard {
	return Guard{
		name: "same_user",
		check: func(ctx context.Context) error {
			id, err := CurrentUser(ctx)
			if err != nil {
				return err
			}
			if id.Username != username {
				return apperrors.Unauthorized()
			}
			return nil
		},
	}
}

// Authorizer builds the guards that depend on stored messages.
type Authorizer struct {
	messages ParticipantLookup
}

// NewAuthorizer creates an Authorizer resolving participants with lookup.
func NewAuthorizer(lookup ParticipantLookup) *Authorizer {
	return &Authorizer{messages: lookup}
}

// RequireMessageParticipant lets through the sender and the recipient of
// the message. A missing message is rejected as Unauthorized so message ids
// cannot be probed.
func (a *Authorizer) RequireMessageParticipant(messageID int64) Guard {
	return Guard{
		name: "message_participant",
		check: func(ctx context.Context) error {
			id, err := CurrentUser(ctx)
			if err != nil {
				return err
			}
			from, to, err := a.participants(ctx, messageID)
			if err != nil {
				return err
			}
			if id.Username != from && id.Username != to {
				return apperrors.Unauthorized()
			}
			return nil
		},
	}
}

// RequireMessageRecipient lets through the recipient of the message only.
// Missing messages are handled as in RequireMessageParticipant.
func (a *Authorizer) RequireMessageRecipient(messageID int64) Guard {
	return Guard{
		name: "message_recipient",
		check: func(ctx context.Context) error {
			id, err := CurrentUser(ctx)
			if err != nil {
				return err
			}
			_, to, err := a.participants(ctx, messageID)
			if err != nil {
				return err
			}
			if id.Username != to {
				return apperrors.Unauthorized()
			}
			return nil
		},
	}
}

func (a *Authorizer) participants(ctx context.Context, messageID int64) (string, string, error) {
	from, to, err := a.messages.MessageParticipants(ctx, messageID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return "", "", apperrors.Unauthorized()
	}
	if err != nil {
		return "", "", fmt.Errorf("resolve participants of message %d: %w", messageID, err)
	}
	return from, to, nil
}
