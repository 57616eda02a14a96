package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"messagely/internal/apperrors"
	"messagely/internal/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// InsertUser stores a new user. A taken username yields apperrors.ErrConflict
// and leaves the table unchanged.
func (r *UserRepository) InsertUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, password_hash, first_name, last_name, phone, join_at, last_login_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.Username, user.PasswordHash, user.FirstName, user.LastName, user.Phone,
		user.JoinedAt.UTC(), nullTime(user.LastLoginAt),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique) {
			return apperrors.Conflict(fmt.Sprintf("Username %s is already taken", user.Username))
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByUsername retrieves a user by username
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	var lastLogin sql.NullTime
	query := `
		SELECT username, password_hash, first_name, last_name, phone, join_at, last_login_at
		FROM users WHERE username = ?
	`
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&user.Username, &user.PasswordHash, &user.FirstName, &user.LastName,
		&user.Phone, &user.JoinedAt, &lastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("user", username)
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	user.LastLoginAt = timePtr(lastLogin)
	return user, nil
}

// UpdateLastLogin sets the last login time of username.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, username string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE username = ?`, at.UTC(), username)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("user", username)
	}
	return nil
}

// ListUsers returns every user ordered by username.
func (r *UserRepository) ListUsers(ctx context.Context) ([]*models.UserSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT username, first_name, last_name FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*models.UserSummary{}
	for rows.Next() {
		u := &models.UserSummary{}
		if err := rows.Scan(&u.Username, &u.FirstName, &u.LastName); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func isConstraint(err error, codes ...sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	for _, code := range codes {
		if sqliteErr.ExtendedCode == code {
			return true
		}
	}
	return false
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
