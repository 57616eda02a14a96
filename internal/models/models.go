package models

import (
	"time"
)

// User represents a registered user
type User struct {
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"` // Never include in JSON
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Phone        string     `json:"phone"`
	JoinedAt     time.Time  `json:"join_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
}

// Profile returns the public view of the user.
func (u *User) Profile() *Profile {
	return &Profile{
		Username:    u.Username,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Phone:       u.Phone,
		JoinedAt:    u.JoinedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

// Summary returns the short view of the user embedded in message details.
func (u *User) Summary() *UserSummary {
	return &UserSummary{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
	}
}

// Profile is a user without credentials
type Profile struct {
	Username    string     `json:"username"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Phone       string     `json:"phone"`
	JoinedAt    time.Time  `json:"join_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

// UserSummary is the listing view of a user
type UserSummary struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

// Message represents a message between two users
type Message struct {
	ID           int64      `json:"id"`
	FromUsername string     `json:"from_username"`
	ToUsername   string     `json:"to_username"`
	Body         string     `json:"body"`
	SentAt       time.Time  `json:"sent_at"`
	ReadAt       *time.Time `json:"read_at"`
}

// MessageDetail is a message with both participants expanded
type MessageDetail struct {
	ID       int64        `json:"id"`
	FromUser *UserSummary `json:"from_user"`
	ToUser   *UserSummary `json:"to_user"`
	Body     string       `json:"body"`
	SentAt   time.Time    `json:"sent_at"`
	ReadAt   *time.Time   `json:"read_at"`
}

// SentMessage is an entry of a user's outbox
type SentMessage struct {
	ID     int64        `json:"id"`
	ToUser *UserSummary `json:"to_user"`
	Body   string       `json:"body"`
	SentAt time.Time    `json:"sent_at"`
	ReadAt *time.Time   `json:"read_at"`
}

// ReceivedMessage is an entry of a user's inbox
type ReceivedMessage struct {
	ID       int64        `json:"id"`
	FromUser *UserSummary `json:"from_user"`
	Body     string       `json:"body"`
	SentAt   time.Time    `json:"sent_at"`
	ReadAt   *time.Time   `json:"read_at"`
}

// ReadReceipt is returned when a message is marked read
type ReadReceipt struct {
	ID     int64     `json:"id"`
	ReadAt time.Time `json:"read_at"`
}
