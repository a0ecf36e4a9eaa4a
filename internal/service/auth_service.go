package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"budget-tracker/internal/auth"
	"budget-tracker/internal/events"
	applog "budget-tracker/internal/log"
	"budget-tracker/internal/models"
	"budget-tracker/internal/storage"
)

const (
	// SessionDuration is how long remembered sessions last (30 days).
	SessionDuration = 30 * 24 * time.Hour
	// ShortSessionDuration is how long sessions last without "remember me".
	ShortSessionDuration = 12 * time.Hour
)

// Identity is the result of authenticating a session token.
type Identity struct {
	User    *models.User
	Session models.Session
	// Renewed reports that the session expiry was pushed forward.
	Renewed bool
}

// AuthService registers users and manages their sessions.
type AuthService struct {
	users     UserStore
	sessions  SessionStore
	publisher events.Publisher
	now       func() time.Time
}

// NewAuthService creates an AuthService. A nil publisher disables events.
func NewAuthService(users UserStore, sessions SessionStore, publisher events.Publisher) *AuthService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &AuthService{users: users, sessions: sessions, publisher: publisher, now: time.Now}
}

// SessionLifetime returns how long a session lasts.
func SessionLifetime(persistent bool) time.Duration {
	if persistent {
		return SessionDuration
	}
	return ShortSessionDuration
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with a bcrypt-hashed password.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if len(password) > auth.MaxPasswordBytes {
		return nil, auth.ErrPasswordTooLong
	}
	if err := s.ensureAvailable(ctx, 0, name, email); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, name, email, hash)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "User registered",
		applog.FieldOperation, applog.OpRegister,
		applog.FieldUserID, user.ID)
	publish(ctx, s.publisher, events.New(events.TypeUserRegistered, user.ID))
	return user, nil
}

// Login checks the credentials and opens a session. Unknown email and wrong
// password both yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string, remember bool) (*models.Session, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	session := &models.Session{
		Token:      token,
		UserID:     user.ID,
		ExpiresAt:  s.now().Add(SessionLifetime(remember)),
		Persistent: remember,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "User logged in",
		applog.FieldOperation, applog.OpLogin,
		applog.FieldUserID, user.ID)
	return session, nil
}

// Logout destroys the session. Unknown or empty tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Authenticate resolves a session token to its user. Sessions in the second
// half of their lifetime are renewed for a full lifetime.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	info, err := s.sessions.ValidateSessionWithInfo(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("validate session: %w", err)
	}

	id := &Identity{User: info.User, Session: info.Session}

	now := s.now()
	lifetime := SessionLifetime(info.Session.Persistent)
	if info.Session.ExpiresAt.Sub(now) < lifetime/2 {
		newExpiresAt := now.Add(lifetime)
		if err := s.sessions.RenewSession(ctx, token, newExpiresAt); err != nil {
			// The current session is still valid; keep using it.
			applog.FromContext(ctx).WarnContext(ctx, "Failed to renew session",
				applog.FieldUserID, info.User.ID,
				applog.FieldError, err)
		} else {
			id.Session.ExpiresAt = newExpiresAt
			id.Session.LastActivity = now
			id.Renewed = true
		}
	}
	return id, nil
}

// UpdateProfile changes the user's name and email, and the picture when one is given.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, name, email, picture string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if err := s.ensureAvailable(ctx, userID, name, email); err != nil {
		return nil, err
	}

	user.Name = name
	user.Email = email
	if picture != "" {
		user.Picture = picture
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// CleanExpiredSessions removes sessions past their expiry.
func (s *AuthService) CleanExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.CleanExpiredSessions(ctx)
}

// ensureAvailable fails when name or email belongs to a user other than self.
func (s *AuthService) ensureAvailable(ctx context.Context, self int64, name, email string) error {
	if u, err := s.users.GetUserByEmail(ctx, email); err == nil && u.ID != self {
		return ErrDuplicateIdentity
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("find user by email: %w", err)
	}
	if u, err := s.users.GetUserByName(ctx, name); err == nil && u.ID != self {
		return ErrDuplicateIdentity
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("find user by name: %w", err)
	}
	return nil
}
