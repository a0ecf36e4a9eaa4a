package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budget-tracker/internal/events"
	applog "budget-tracker/internal/log"
	"budget-tracker/internal/models"
	"budget-tracker/internal/storage"
)

// DefaultPageSize is the number of records shown per page.
const DefaultPageSize = 3

// Page is one page of a user's records, newest first.
type Page struct {
	Items  []models.Record
	Number int
	Size   int
	Total  int
	Pages  int
}

// HasPrev reports whether an earlier page exists.
func (p Page) HasPrev() bool { return p.Number > 1 }

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool { return p.Number < p.Pages }

// PrevNum is the number of the previous page.
func (p Page) PrevNum() int { return p.Number - 1 }

// NextNum is the number of the next page.
func (p Page) NextNum() int { return p.Number + 1 }

// RecordService manages a user's income and expense records.
type RecordService struct {
	records   RecordStore
	publisher events.Publisher
	now       func() time.Time
}

// NewRecordService creates a RecordService. A nil publisher disables events.
func NewRecordService(records RecordStore, publisher events.Publisher) *RecordService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &RecordService{records: records, publisher: publisher, now: time.Now}
}

// Create stores a new record for userID dated now and returns its ID.
func (s *RecordService) Create(ctx context.Context, userID int64, isIncome bool, amount int64) (int64, error) {
	if amount < 0 || amount > MaxAmount {
		return 0, ErrInvalidAmount
	}
	r := &models.Record{
		Date:     s.now(),
		IsIncome: isIncome,
		Amount:   amount,
		UserID:   userID,
	}
	id, err := s.records.CreateRecord(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("create record: %w", err)
	}
	r.ID = id

	applog.FromContext(ctx).InfoContext(ctx, "Record created",
		applog.FieldOperation, applog.OpCreate,
		applog.FieldUserID, userID,
		applog.FieldRecordID, id)
	publish(ctx, s.publisher, recordEvent(events.TypeRecordCreated, r))
	return id, nil
}

// List returns page number page of userID's records. A page past the end
// is empty, not an error.
func (s *RecordService) List(ctx context.Context, userID int64, page, pageSize int) (*Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}

	total, err := s.records.CountRecordsByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	p := &Page{
		Number: page,
		Size:   pageSize,
		Total:  total,
		Pages:  (total + pageSize - 1) / pageSize,
	}

	if page > p.Pages {
		return p, nil
	}
	offset := (page - 1) * pageSize

	items, err := s.records.ListRecordsByOwner(ctx, userID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	p.Items = items
	return p, nil
}

// Get returns one of userID's records.
func (s *RecordService) Get(ctx context.Context, userID, recordID int64) (*models.Record, error) {
	r, err := s.records.GetRecord(ctx, userID, recordID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

// Update changes the flag and amount of one of userID's records.
func (s *RecordService) Update(ctx context.Context, userID, recordID int64, isIncome bool, amount int64) error {
	if amount < 0 || amount > MaxAmount {
		return ErrInvalidAmount
	}
	r := &models.Record{ID: recordID, UserID: userID, IsIncome: isIncome, Amount: amount}
	if err := s.records.UpdateRecord(ctx, r); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update record: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Record updated",
		applog.FieldOperation, applog.OpUpdate,
		applog.FieldUserID, userID,
		applog.FieldRecordID, recordID)
	publish(ctx, s.publisher, recordEvent(events.TypeRecordUpdated, r))
	return nil
}

// Delete removes one of userID's records.
func (s *RecordService) Delete(ctx context.Context, userID, recordID int64) error {
	if err := s.records.DeleteRecord(ctx, userID, recordID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete record: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Record deleted",
		applog.FieldOperation, applog.OpDelete,
		applog.FieldUserID, userID,
		applog.FieldRecordID, recordID)
	publish(ctx, s.publisher, recordEvent(events.TypeRecordDeleted, &models.Record{ID: recordID, UserID: userID}))
	return nil
}

// Balance sums userID's records, adding income and subtracting expenses.
// A user without records has a balance of 0; store failures are returned.
func (s *RecordService) Balance(ctx context.Context, userID int64) (int64, error) {
	balance, err := s.records.BalanceByOwner(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("compute balance: %w", err)
	}
	return balance, nil
}

func recordEvent(eventType string, r *models.Record) events.Event {
	e := events.New(eventType, r.UserID)
	e.RecordID = r.ID
	e.IsIncome = r.IsIncome
	e.Amount = r.Amount
	return e
}
