package toolcall

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests. Not for production use.

type MemoryRepo struct {
	mu      sync.Mutex
	entries map[string]*LogEntry
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{entries: make(map[string]*LogEntry)}
}

func (r *MemoryRepo) Insert(ctx context.Context, e LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := e
	r.entries[e.ID] = &cp
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return LogEntry{}, ErrNotFound
	}
	return *e, nil
}

func (r *MemoryRepo) SetOutcome(ctx context.Context, id string, status Status, result, errMsg string, processedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Status == StatusSuccess {
		return false, nil
	}
	e.Status = status
	e.Result = result
	e.ErrorMessage = errMsg
	t := processedAt
	e.ProcessedAt = &t
	return true, nil
}

func (r *MemoryRepo) IncrementRetry(ctx context.Context, id string) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return 0, 0, ErrNotFound
	}
	if e.RetryCount >= e.MaxRetries {
		return 0, 0, ErrRetriesExhausted
	}
	e.RetryCount++
	e.Status = StatusRetrying
	return e.RetryCount, e.MaxRetries, nil
}

func (r *MemoryRepo) ListFailedForRetry(ctx context.Context, limit int) ([]LogEntry, error) {
	return r.listWhere(limit, func(e *LogEntry) bool {
		return e.Status == StatusFailed && e.RetryCount < e.MaxRetries
	})
}

func (r *MemoryRepo) ListPending(ctx context.Context, limit int) ([]LogEntry, error) {
	return r.listWhere(limit, func(e *LogEntry) bool {
		return e.Status == StatusPending
	})
}

func (r *MemoryRepo) listWhere(limit int, keep func(*LogEntry) bool) ([]LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []LogEntry
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, *e)
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

func (r *MemoryRepo) RecentByTool(ctx context.Context, toolName string, since time.Time, statuses []Status) ([]LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	allowed := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}

	var out []LogEntry
	for _, e := range r.entries {
		if e.ToolName == toolName && !e.CreatedAt.Before(since) && allowed[e.Status] {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Status]int)
	for _, e := range r.entries {
		out[e.Status]++
	}
	return out, nil
}
