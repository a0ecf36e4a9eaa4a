package storage

import (
	"context"
	"database/sql"
	"time"

	"budget-tracker/internal/models"
)

const recordColumns = "id, date, is_income, amount, user_id"

// CreateRecord inserts r and returns its new ID. A zero Date means now.
func (db *DB) CreateRecord(ctx context.Context, r *models.Record) (int64, error) {
	if r.Date.IsZero() {
		r.Date = time.Now()
	}
	result, err := db.conn.ExecContext(ctx,
		"INSERT INTO records (date, is_income, amount, user_id) VALUES (?, ?, ?, ?)",
		r.Date.UTC(), r.IsIncome, r.Amount, r.UserID,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetRecord retrieves a record by ID, restricted to the given owner.
func (db *DB) GetRecord(ctx context.Context, userID, id int64) (*models.Record, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE id = ? AND user_id = ?",
		id, userID,
	)
	r, err := scanRecord(row)
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// ListRecordsByOwner returns up to limit records of userID, newest first.
func (db *DB) ListRecordsByOwner(ctx context.Context, userID int64, limit, offset int) ([]models.Record, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE user_id = ? ORDER BY date DESC, id DESC LIMIT ? OFFSET ?",
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// CountRecordsByOwner returns how many records userID owns.
func (db *DB) CountRecordsByOwner(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE user_id = ?", userID,
	).Scan(&count)
	return count, err
}

// UpdateRecord changes the income flag and amount of a record owned by r.UserID.
func (db *DB) UpdateRecord(ctx context.Context, r *models.Record) error {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE records SET is_income = ?, amount = ? WHERE id = ? AND user_id = ?",
		r.IsIncome, r.Amount, r.ID, r.UserID,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// DeleteRecord removes a record owned by userID.
func (db *DB) DeleteRecord(ctx context.Context, userID, id int64) error {
	result, err := db.conn.ExecContext(ctx,
		"DELETE FROM records WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// BalanceByOwner sums the records of userID, income positive and expenses negative.
func (db *DB) BalanceByOwner(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN is_income THEN amount ELSE -amount END), 0)
		FROM records
		WHERE user_id = ?
	`, userID).Scan(&balance)
	return balance, err
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var r models.Record
	if err := row.Scan(&r.ID, &r.Date, &r.IsIncome, &r.Amount, &r.UserID); err != nil {
		return nil, err
	}
	return &r, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
