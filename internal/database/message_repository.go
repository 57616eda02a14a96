package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mattn/go-sqlite3"

	"messagely/internal/apperrors"
	"messagely/internal/models"
)

// MessageRepository handles message database operations
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// InsertMessage stores msg and sets its ID.
func (r *MessageRepository) InsertMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (from_username, to_username, body, sent_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query, msg.FromUsername, msg.ToUsername, msg.Body, msg.SentAt.UTC())
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return apperrors.NotFound("user", msg.ToUsername)
		}
		return fmt.Errorf("failed to create message: %w", err)
	}

	// Get the created message ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get message ID: %w", err)
	}
	msg.ID = id
	return nil
}

// GetMessageByID retrieves a message by ID
func (r *MessageRepository) GetMessageByID(ctx context.Context, id int64) (*models.Message, error) {
	msg := &models.Message{}
	var readAt sql.NullTime
	query := `
		SELECT id, from_username, to_username, body, sent_at, read_at
		FROM messages WHERE id = ?
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID, &msg.FromUsername, &msg.ToUsername, &msg.Body, &msg.SentAt, &readAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, messageNotFound(id)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	msg.ReadAt = timePtr(readAt)
	return msg, nil
}

// GetMessageDetail retrieves a message with both participants
func (r *MessageRepository) GetMessageDetail(ctx context.Context, id int64) (*models.MessageDetail, error) {
	query := `
		SELECT m.id,
		       f.username, f.first_name, f.last_name, f.phone,
		       t.username, t.first_name, t.last_name, t.phone,
		       m.body, m.sent_at, m.read_at
		FROM messages m
		JOIN users f ON m.from_username = f.username
		JOIN users t ON m.to_username = t.username
		WHERE m.id = ?
	`
	msg := &models.MessageDetail{FromUser: &models.UserSummary{}, ToUser: &models.UserSummary{}}
	var readAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.FromUser.Username, &msg.FromUser.FirstName, &msg.FromUser.LastName, &msg.FromUser.Phone,
		&msg.ToUser.Username, &msg.ToUser.FirstName, &msg.ToUser.LastName, &msg.ToUser.Phone,
		&msg.Body, &msg.SentAt, &readAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, messageNotFound(id)
		}
		return nil, fmt.Errorf("failed to get message detail: %w", err)
	}
	msg.ReadAt = timePtr(readAt)
	return msg, nil
}

// MarkMessageRead sets read_at of an unread message to at. A message that
// was already read keeps its first read time, which is returned.
func (r *MessageRepository) MarkMessageRead(ctx context.Context, id int64, at time.Time) (*models.ReadReceipt, error) {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read_at = ? WHERE id = ? AND read_at IS NULL`, at.UTC(), id); err != nil {
		return nil, fmt.Errorf("failed to mark message read: %w", err)
	}

	receipt := &models.ReadReceipt{}
	var readAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT id, read_at FROM messages WHERE id = ?`, id).Scan(&receipt.ID, &readAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, messageNotFound(id)
		}
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}
	if !readAt.Valid {
		return nil, fmt.Errorf("message %d has no read time after update", id)
	}
	receipt.ReadAt = readAt.Time
	return receipt, nil
}

// ListSent returns the messages sent by username, oldest first.
func (r *MessageRepository) ListSent(ctx context.Context, username string) ([]*models.SentMessage, error) {
	query := `
		SELECT m.id, m.body, m.sent_at, m.read_at,
		       t.username, t.first_name, t.last_name, t.phone
		FROM messages m
		JOIN users t ON m.to_username = t.username
		WHERE m.from_username = ?
		ORDER BY m.id
	`
	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list sent messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.SentMessage{}
	for rows.Next() {
		msg := &models.SentMessage{ToUser: &models.UserSummary{}}
		var readAt sql.NullTime
		err := rows.Scan(
			&msg.ID, &msg.Body, &msg.SentAt, &readAt,
			&msg.ToUser.Username, &msg.ToUser.FirstName, &msg.ToUser.LastName, &msg.ToUser.Phone,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.ReadAt = timePtr(readAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sent messages: %w", err)
	}
	return messages, nil
}

// ListReceived returns the messages sent to username, oldest first.
func (r *MessageRepository) ListReceived(ctx context.Context, username string) ([]*models.ReceivedMessage, error) {
	query := `
		SELECT m.id, m.body, m.sent_at, m.read_at,
		       f.username, f.first_name, f.last_name, f.phone
		FROM messages m
		JOIN users f ON m.from_username = f.username
		WHERE m.to_username = ?
		ORDER BY m.id
	`
	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list received messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.ReceivedMessage{}
	for rows.Next() {
		msg := &models.ReceivedMessage{FromUser: &models.UserSummary{}}
		var readAt sql.NullTime
		err := rows.Scan(
			&msg.ID, &msg.Body, &msg.SentAt, &readAt,
			&msg.FromUser.Username, &msg.FromUser.FirstName, &msg.FromUser.LastName, &msg.FromUser.Phone,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.ReadAt = timePtr(readAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list received messages: %w", err)
	}
	return messages, nil
}

func messageNotFound(id int64) error {
	return apperrors.NotFound("message", strconv.FormatInt(id, 10))
}
