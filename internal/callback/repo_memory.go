package callback

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests. Not for production use.

type MemoryRepo struct {
	mu       sync.Mutex
	requests map[string]*Request
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{requests: make(map[string]*Request)}
}

func (r *MemoryRepo) Insert(ctx context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := req
	r.requests[req.ID] = &cp
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return *req, nil
}

func (r *MemoryRepo) Due(ctx context.Context, now time.Time, limit int) ([]Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Request
	for _, req := range r.requests {
		switch {
		case req.Status == StatusPending:
			out = append(out, *req)
		case req.Status == StatusFailed && req.RetryCount < req.MaxRetries &&
			req.NextRetryAt != nil && !req.NextRetryAt.After(now):
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Urgency.Rank() != out[j].Urgency.Rank() {
			return out[i].Urgency.Rank() > out[j].Urgency.Rank()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) MarkPosted(ctx context.Context, id, responsePayload string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return ErrNotFound
	}
	req.Status = StatusPosted
	req.ResponsePayload = responsePayload
	t := at
	req.PostedAt = &t
	req.NextRetryAt = nil
	req.ErrorMessage = ""
	return nil
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, id, errMsg string, retryCount int, nextRetryAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return ErrNotFound
	}
	req.Status = StatusFailed
	req.ErrorMessage = errMsg
	req.RetryCount = retryCount
	req.NextRetryAt = nextRetryAt
	return nil
}

func (r *MemoryRepo) Requeue(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != StatusFailed {
		return ErrNotFound
	}
	req.Status = StatusPending
	req.RetryCount = 0
	req.NextRetryAt = nil
	req.ErrorMessage = ""
	return nil
}

func (r *MemoryRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Status]int)
	for _, req := range r.requests {
		out[req.Status]++
	}
	return out, nil
}
