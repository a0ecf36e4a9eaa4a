package service

import (
	"context"
	"errors"
	"sync"

	"budget-tracker/internal/events"
	"budget-tracker/internal/models"
	"budget-tracker/internal/storage"
)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var errStoreDown = errors.New("store down")

// brokenRecords fails every call.
type brokenRecords struct{}

func (brokenRecords) CreateRecord(context.Context, *models.Record) (int64, error) {
	return 0, errStoreDown
}
func (brokenRecords) GetRecord(context.Context, int64, int64) (*models.Record, error) {
	return nil, errStoreDown
}
func (brokenRecords) ListRecordsByOwner(context.Context, int64, int, int) ([]models.Record, error) {
	return nil, errStoreDown
}
func (brokenRecords) CountRecordsByOwner(context.Context, int64) (int, error) {
	return 0, errStoreDown
}
func (brokenRecords) UpdateRecord(context.Context, *models.Record) error { return errStoreDown }
func (brokenRecords) DeleteRecord(context.Context, int64, int64) error  { return errStoreDown }
func (brokenRecords) BalanceByOwner(context.Context, int64) (int64, error) {
	return 0, errStoreDown
}

var (
	_ UserStore    = (*storage.DB)(nil)
	_ SessionStore = (*storage.DB)(nil)
	_ RecordStore  = (*storage.DB)(nil)
	_ RecordStore  = brokenRecords{}
)
