// Package service holds the authentication and bookkeeping logic. Every
// operation takes the acting user's ID explicitly; nothing is read from
// ambient request state.
package service

import (
	"context"
	"errors"
	"time"

	"budget-tracker/internal/events"
	applog "budget-tracker/internal/log"
	"budget-tracker/internal/models"
	"budget-tracker/internal/storage"
)

var (
	// ErrDuplicateIdentity is returned when a name or email is already registered.
	ErrDuplicateIdentity = errors.New("name or email already registered")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnauthenticated is returned when no valid session exists.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrNotFound is returned when a record does not exist or belongs to another user.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAmount is returned for amounts outside 0..MaxAmount.
	ErrInvalidAmount = errors.New("amount out of range")
)

// MaxAmount bounds a single record so balances stay well inside int64.
const MaxAmount int64 = 1_000_000_000_000

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
}

// SessionStore persists login sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	ValidateSessionWithInfo(ctx context.Context, token string) (*storage.SessionInfo, error)
	RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

// RecordStore persists records. Every lookup is scoped to an owner.
type RecordStore interface {
	CreateRecord(ctx context.Context, r *models.Record) (int64, error)
	GetRecord(ctx context.Context, userID, id int64) (*models.Record, error)
	ListRecordsByOwner(ctx context.Context, userID int64, limit, offset int) ([]models.Record, error)
	CountRecordsByOwner(ctx context.Context, userID int64) (int, error)
	UpdateRecord(ctx context.Context, r *models.Record) error
	DeleteRecord(ctx context.Context, userID, id int64) error
	BalanceByOwner(ctx context.Context, userID int64) (int64, error)
}

// publish sends e and only logs a failure: the local write already succeeded.
func publish(ctx context.Context, p events.Publisher, e events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Failed to publish event",
			applog.FieldOperation, applog.OpPublish,
			applog.FieldEventType, e.Type,
			applog.FieldUserID, e.UserID,
			applog.FieldError, err)
	}
}
