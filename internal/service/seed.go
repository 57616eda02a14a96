package service

import (
	"context"
	"errors"
	"fmt"

	"messagely/internal/apperrors"
)

// SeedPassword is the password of every seeded user.
const SeedPassword = "password"

var seedMessages = []struct {
	from, to, body string
}{
	{"a", "b", "whats up"},
	{"b", "a", "the sky"},
	{"a", "b", "yer funny bro"},
	{"b", "a", "not yer bro, friend"},
	{"a", "b", "not yer friend, guy"},
	{"c", "a", "who am i"},
	{"c", "b", "who am i"},
}

// Seed registers the demo users a, b and c and their conversation. Users
// that already exist are left alone, and the conversation is only written
// when all three users were created by this call.
func Seed(ctx context.Context, users *UserService, messages *MessageService) error {
	created := 0
	for _, name := range []string{"a", "b", "c"} {
		_, err := users.Register(ctx, RegisterInput{
			Username:  name,
			Password:  SeedPassword,
			FirstName: name,
			LastName:  name,
			Phone:     "555-5555",
		})
		if errors.Is(err, apperrors.ErrConflict) {
			users.logger.Info().Str("username", name).Msg("Seed user exists, skipping")
			continue
		}
		if err != nil {
			return fmt.Errorf("seed user %s: %w", name, err)
		}
		created++
	}
	if created < 3 {
		return nil
	}

	for _, m := range seedMessages {
		if _, err := messages.Create(ctx, m.from, CreateMessageInput{ToUsername: m.to, Body: m.body}); err != nil {
			return fmt.Errorf("seed message %s->%s: %w", m.from, m.to, err)
		}
	}
	users.logger.Info().Int("messages", len(seedMessages)).Msg("Seed data created")
	return nil
}
