// Package service holds the registration, login and messaging actions shared
// by the HTTP and TCP transports. Callers are expected to run the matching
// auth guards first.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"messagely/internal/apperrors"
	"messagely/internal/metrics"
	"messagely/internal/models"
	"messagely/internal/validation"
)

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Username  string `json:"username" validate:"required,alphanum,max=64"`
	Password  string `json:"password" validate:"required,maxbytes=72"`
	FirstName string `json:"first_name" validate:"required,max=128"`
	LastName  string `json:"last_name" validate:"required,max=128"`
	Phone     string `json:"phone" validate:"required,max=32"`
}

// UserService handles registration, authentication and user lookups.
type UserService struct {
	users    UserStore
	messages MessageStore
	hasher   Hasher
	logger   zerolog.Logger
	now      func() time.Time

	dummyOnce   sync.Once
	dummyDigest string
}

// dummyPassword is hashed once to give lookups of unknown users the cost of
// a real password check.
const dummyPassword = "messagely-unknown-user"

// NewUserService creates a UserService.
func NewUserService(users UserStore, messages MessageStore, hasher Hasher, logger zerolog.Logger) *UserService {
	return &UserService{
		users:    users,
		messages: messages,
		hasher:   hasher,
		logger:   logger.With().Str("component", "users").Logger(),
		now:      time.Now,
	}
}

// Register creates a user and returns its profile. Registration counts as
// the first login.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.Profile, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &models.User{
		Username:     in.Username,
		PasswordHash: digest,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		JoinedAt:     now,
		LastLoginAt:  &now,
	}
	if err := s.users.InsertUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info().Str("username", user.Username).Msg("User registered")
	return user.Profile(), nil
}

// Authenticate reports whether password belongs to username. An unknown
// user is a mismatch, not an error, and costs the same password check.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (bool, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, apperrors.ErrNotFound) {
		s.hasher.Verify(ctx, password, s.unknownUserDigest())
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("authenticate %s: %w", username, err)
	}
	return s.hasher.Verify(ctx, password, user.PasswordHash), nil
}

func (s *UserService) unknownUserDigest() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash(context.Background(), dummyPassword)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to hash dummy password")
			return
		}
		s.dummyDigest = digest
	})
	return s.dummyDigest
}

// UpdateLoginTimestamp records a successful login of username.
func (s *UserService) UpdateLoginTimestamp(ctx context.Context, username string) error {
	return s.users.UpdateLastLogin(ctx, username, s.now())
}

// Login authenticates the user and, on success, records the login. Bad
// credentials yield an InvalidCredentials error.
func (s *UserService) Login(ctx context.Context, username, password string) error {
	ok, err := s.Authenticate(ctx, username, password)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues(metrics.LoginError).Inc()
		return err
	}
	if !ok {
		metrics.LoginAttempts.WithLabelValues(metrics.LoginFailure).Inc()
		s.logger.Info().Str("username", username).Msg("Login rejected")
		return apperrors.InvalidCredentials()
	}
	if err := s.UpdateLoginTimestamp(ctx, username); err != nil {
		metrics.LoginAttempts.WithLabelValues(metrics.LoginError).Inc()
		return err
	}
	metrics.LoginAttempts.WithLabelValues(metrics.LoginSuccess).Inc()
	return nil
}

// Get returns the profile of username.
func (s *UserService) Get(ctx context.Context, username string) (*models.Profile, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

// All lists every user.
func (s *UserService) All(ctx context.Context) ([]*models.UserSummary, error) {
	return s.users.ListUsers(ctx)
}

// MessagesFrom lists the messages username sent.
func (s *UserService) MessagesFrom(ctx context.Context, username string) ([]*models.SentMessage, error) {
	if _, err := s.users.GetUserByUsername(ctx, username); err != nil {
		return nil, err
	}
	return s.messages.ListSent(ctx, username)
}

// MessagesTo lists the messages username received.
func (s *UserService) MessagesTo(ctx context.Context, username string) ([]*models.ReceivedMessage, error) {
	if _, err := s.users.GetUserByUsername(ctx, username); err != nil {
		return nil, err
	}
	return s.messages.ListReceived(ctx, username)
}
