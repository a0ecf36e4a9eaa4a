package models

import "time"

// DefaultPicture is the profile picture assigned to new users.
const DefaultPicture = "default.svg"

// User represents a registered account.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Picture      string    `json:"picture"`
	CreatedAt    time.Time `json:"created_at"`
}

// Record is a single income or expense entry owned by a user.
type Record struct {
	ID       int64     `json:"id"`
	Date     time.Time `json:"date"`
	IsIncome bool      `json:"is_income"`
	Amount   int64     `json:"amount"`
	UserID   int64     `json:"user_id"`
}

// Signed returns the amount as it contributes to a balance.
func (r Record) Signed() int64 {
	if r.IsIncome {
		return r.Amount
	}
	return -r.Amount
}

// Session represents a logged-in browser session.
type Session struct {
	Token        string    `json:"token"`
	UserID       int64     `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
	Persistent   bool      `json:"persistent"`
}
