package service

import (
	"context"
	"time"

	"messagely/internal/models"
)

// UserStore persists users.
type UserStore interface {
	InsertUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, username string, at time.Time) error
	ListUsers(ctx context.Context) ([]*models.UserSummary, error)
}

// MessageStore persists messages.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	GetMessageByID(ctx context.Context, id int64) (*models.Message, error)
	GetMessageDetail(ctx context.Context, id int64) (*models.MessageDetail, error)
	MarkMessageRead(ctx context.Context, id int64, at time.Time) (*models.ReadReceipt, error)
	ListSent(ctx context.Context, username string) ([]*models.SentMessage, error)
	ListReceived(ctx context.Context, username string) ([]*models.ReceivedMessage, error)
}

// Hasher hashes and checks passwords.
type Hasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, digest string) bool
}
