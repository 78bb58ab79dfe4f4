package correlation

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests. Not for production use.

type MemoryRepo struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Insert(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.AICallID == rec.AICallID || existing.TelephonyCallID == rec.TelephonyCallID {
			return ErrDuplicate
		}
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *MemoryRepo) GetByAICallID(ctx context.Context, id string) (Record, error) {
	return r.find(func(rec Record) bool { return rec.AICallID == id })
}

func (r *MemoryRepo) GetByTelephonyID(ctx context.Context, id string) (Record, error) {
	return r.find(func(rec Record) bool { return rec.TelephonyCallID == id })
}

func (r *MemoryRepo) LatestByCallerNumber(ctx context.Context, number string, since time.Time) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best Record
	found := false
	for _, rec := range r.records {
		if rec.CallerNumber != number || rec.CreatedAt.Before(since) {
			continue
		}
		if !found || rec.CreatedAt.After(best.CreatedAt) {
			best = rec
			found = true
		}
	}
	if !found {
		return Record{}, ErrNotFound
	}
	return best, nil
}

func (r *MemoryRepo) find(match func(Record) bool) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if match(rec) {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}
