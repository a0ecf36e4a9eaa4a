package storage

import (
	"context"
	"time"

	"budget-tracker/internal/models"
)

// CreateSession stores a new session for a user.
func (db *DB) CreateSession(ctx context.Context, s *models.Session) error {
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, expires_at, last_activity, persistent) VALUES (?, ?, ?, ?, ?)",
		s.Token, s.UserID, s.ExpiresAt.UTC(), now, s.Persistent,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	s.LastActivity = now
	return nil
}

// SessionInfo holds session validation data.
type SessionInfo struct {
	User    *models.User
	Session models.Session
}

// ValidateSessionWithInfo checks if a session token is valid and returns session details.
func (db *DB) ValidateSessionWithInfo(ctx context.Context, token string) (*SessionInfo, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT u.id, u.name, u.email, u.password_hash, u.picture, u.created_at,
		       s.token, s.user_id, s.expires_at, s.last_activity, s.persistent
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?
	`, token, time.Now().UTC())

	var u models.User
	var s models.Session
	if err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Picture, &u.CreatedAt,
		&s.Token, &s.UserID, &s.ExpiresAt, &s.LastActivity, &s.Persistent,
	); err != nil {
		return nil, notFound(err)
	}
	return &SessionInfo{User: &u, Session: s}, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		time.Now().UTC(), newExpiresAt.UTC(), token,
	)
	return err
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions and reports how many were deleted.
func (db *DB) CleanExpiredSessions(ctx context.Context) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
