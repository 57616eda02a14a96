// Package memstore keeps users and messages in process memory. It backs the
// "memory" store driver and the transport tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"messagely/internal/apperrors"
	"messagely/internal/models"
)

// Store manages all users and messages of this process
type Store struct {
	mu       sync.RWMutex
	users    map[string]models.User
	messages []models.Message
	nextID   int64
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:  make(map[string]models.User),
		nextID: 1,
	}
}

// InsertUser adds a new user. A taken username yields ErrConflict.
func (s *Store) InsertUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Username]; exists {
		return apperrors.Conflict(fmt.Sprintf("Username %s is already taken", user.Username))
	}
	s.users[user.Username] = cloneUser(*user)
	return nil
}

// GetUserByUsername returns a copy of the user
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[username]
	if !exists {
		return nil, apperrors.NotFound("user", username)
	}
	u := cloneUser(user)
	return &u, nil
}

// UpdateLastLogin sets the last login time of username
func (s *Store) UpdateLastLogin(ctx context.Context, username string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[username]
	if !exists {
		return apperrors.NotFound("user", username)
	}
	at = at.UTC()
	user.LastLoginAt = &at
	s.users[username] = user
	return nil
}

// ListUsers returns every user ordered by username
func (s *Store) ListUsers(ctx context.Context) ([]*models.UserSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*models.UserSummary, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, &models.UserSummary{
			Username:  u.Username,
			FirstName: u.FirstName,
			LastName:  u.LastName,
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// InsertMessage stores msg and assigns its ID. Both participants must exist.
func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, username := range []string{msg.FromUsername, msg.ToUsername} {
		if _, exists := s.users[username]; !exists {
			return apperrors.NotFound("user", username)
		}
	}
	msg.ID = s.nextID
	s.nextID++
	stored := *msg
	stored.SentAt = stored.SentAt.UTC()
	stored.ReadAt = nil
	s.messages = append(s.messages, stored)
	return nil
}

// GetMessageByID returns a copy of the message
func (s *Store) GetMessageByID(ctx context.Context, id int64) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.indexOf(id)
	if !ok {
		return nil, messageNotFound(id)
	}
	msg := cloneMessage(s.messages[i])
	return &msg, nil
}

// GetMessageDetail returns the message with both participants
func (s *Store) GetMessageDetail(ctx context.Context, id int64) (*models.MessageDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.indexOf(id)
	if !ok {
		return nil, messageNotFound(id)
	}
	msg := cloneMessage(s.messages[i])
	from, to := s.users[msg.FromUsername], s.users[msg.ToUsername]
	return &models.MessageDetail{
		ID:       msg.ID,
		FromUser: from.Summary(),
		ToUser:   to.Summary(),
		Body:     msg.Body,
		SentAt:   msg.SentAt,
		ReadAt:   msg.ReadAt,
	}, nil
}

// MarkMessageRead sets the read time of an unread message. A message that
// was already read keeps its first read time.
func (s *Store) MarkMessageRead(ctx context.Context, id int64, at time.Time) (*models.ReadReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.indexOf(id)
	if !ok {
		return nil, messageNotFound(id)
	}
	if s.messages[i].ReadAt == nil {
		at = at.UTC()
		s.messages[i].ReadAt = &at
	}
	return &models.ReadReceipt{ID: id, ReadAt: *s.messages[i].ReadAt}, nil
}

// ListSent returns the messages sent by username, oldest first
func (s *Store) ListSent(ctx context.Context, username string) ([]*models.SentMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.SentMessage{}
	for _, m := range s.messages {
		if m.FromUsername != username {
			continue
		}
		m = cloneMessage(m)
		to := s.users[m.ToUsername]
		out = append(out, &models.SentMessage{
			ID:     m.ID,
			ToUser: to.Summary(),
			Body:   m.Body,
			SentAt: m.SentAt,
			ReadAt: m.ReadAt,
		})
	}
	return out, nil
}

// ListReceived returns the messages sent to username, oldest first
func (s *Store) ListReceived(ctx context.Context, username string) ([]*models.ReceivedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.ReceivedMessage{}
	for _, m := range s.messages {
		if m.ToUsername != username {
			continue
		}
		m = cloneMessage(m)
		from := s.users[m.FromUsername]
		out = append(out, &models.ReceivedMessage{
			ID:       m.ID,
			FromUser: from.Summary(),
			Body:     m.Body,
			SentAt:   m.SentAt,
			ReadAt:   m.ReadAt,
		})
	}
	return out, nil
}

// Reset removes every user and message
func (s *Store) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]models.User)
	s.messages = nil
	return nil
}

// indexOf relies on messages being appended in ID order.
func (s *Store) indexOf(id int64) (int, bool) {
	i := sort.Search(len(s.messages), func(i int) bool { return s.messages[i].ID >= id })
	if i < len(s.messages) && s.messages[i].ID == id {
		return i, true
	}
	return 0, false
}

func cloneUser(u models.User) models.User {
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		u.LastLoginAt = &t
	}
	return u
}

func cloneMessage(m models.Message) models.Message {
	if m.ReadAt != nil {
		t := *m.ReadAt
		m.ReadAt = &t
	}
	return m
}

func messageNotFound(id int64) error {
	return apperrors.NotFound("message", strconv.FormatInt(id, 10))
}
