package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"messagely/internal/models"
	"messagely/internal/validation"
)

// CreateMessageInput is a message about to be sent by the caller.
type CreateMessageInput struct {
	ToUsername string `json:"to_username" validate:"required,alphanum,max=64"`
	Body       string `json:"body" validate:"required,max=10000"`
}

// MessageService creates, reads and marks messages.
type MessageService struct {
	messages MessageStore
	logger   zerolog.Logger
	now      func() time.Time
}

// NewMessageService creates a MessageService.
func NewMessageService(messages MessageStore, logger zerolog.Logger) *MessageService {
	return &MessageService{
		messages: messages,
		logger:   logger.With().Str("component", "messages").Logger(),
		now:      time.Now,
	}
}

// Create sends a message from fromUsername. An unknown recipient is NotFound.
func (s *MessageService) Create(ctx context.Context, fromUsername string, in CreateMessageInput) (*models.Message, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	msg := &models.Message{
		FromUsername: fromUsername,
		ToUsername:   in.ToUsername,
		Body:         in.Body,
		SentAt:       s.now().UTC(),
	}
	if err := s.messages.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.logger.Debug().Int64("message_id", msg.ID).Str("from", msg.FromUsername).Str("to", msg.ToUsername).Msg("Message stored")
	return msg, nil
}

// Get returns the message with both participants.
func (s *MessageService) Get(ctx context.Context, id int64) (*models.MessageDetail, error) {
	return s.messages.GetMessageDetail(ctx, id)
}

// MarkRead records that the recipient read the message. Repeated calls
// return the first read time.
func (s *MessageService) MarkRead(ctx context.Context, id int64) (*models.ReadReceipt, error) {
	return s.messages.MarkMessageRead(ctx, id, s.now())
}

// MessageParticipants returns the sender and recipient of message id.
func (s *MessageService) MessageParticipants(ctx context.Context, id int64) (string, string, error) {
	msg, err := s.messages.GetMessageByID(ctx, id)
	if err != nil {
		return "", "", err
	}
	return msg.FromUsername, msg.ToUsername, nil
}
