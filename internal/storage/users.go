package storage

import (
	"context"
	"time"

	"budget-tracker/internal/models"
)

const userColumns = "id, name, email, password_hash, picture, created_at"

// CreateUser inserts a new user. A taken name or email yields ErrAlreadyExists.
func (db *DB) CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error) {
	result, err := db.conn.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, picture, created_at) VALUES (?, ?, ?, ?, ?)",
		name, email, passwordHash, models.DefaultPicture, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.scanUser(db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetUserByEmail retrieves a user by email address.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.scanUser(db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// GetUserByName retrieves a user by display name.
func (db *DB) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	return db.scanUser(db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE name = ?", name))
}

// UpdateUser saves the name, email and picture of u.
func (db *DB) UpdateUser(ctx context.Context, u *models.User) error {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE users SET name = ?, email = ?, picture = ? WHERE id = ?",
		u.Name, u.Email, u.Picture, u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Picture, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}
