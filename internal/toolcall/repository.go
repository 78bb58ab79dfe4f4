package toolcall

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("toolcall: log entry not found")
	// ErrRetriesExhausted is returned by IncrementRetry when the entry
	// exists but its retry budget is spent.
	ErrRetriesExhausted = errors.New("toolcall: retries exhausted")
)

// Repository is the persistence contract for the reliability log.
//
// It is append-mostly: Insert plus narrow, guarded mutations. No Delete by
// design.
type Repository interface {
	Insert(ctx context.Context, e LogEntry) error
	Get(ctx context.Context, id string) (LogEntry, error)

	// SetOutcome records a terminal or intermediate outcome. It must not
	// overwrite a success row (terminal wins). Returns false when no row
	// was updated (unknown id or terminal-protected).
	SetOutcome(ctx context.Context, id string, status Status, result, errMsg string, processedAt time.Time) (bool, error)

	// IncrementRetry atomically bumps retry_count and moves the entry to
	// retrying, guarded by retry_count < max_retries. Returns the new
	// counters, or ErrRetriesExhausted / ErrNotFound.
	IncrementRetry(ctx context.Context, id string) (retryCount, maxRetries int, err error)

	// ListFailedForRetry returns failed entries that still have retry
	// budget, urgency desc then created_at asc.
	ListFailedForRetry(ctx context.Context, limit int) ([]LogEntry, error)

	// ListPending returns pending entries, urgency desc then created_at asc.
	ListPending(ctx context.Context, limit int) ([]LogEntry, error)

	// RecentByTool returns entries for one tool created at or after since,
	// restricted to the given statuses, most recent first.
	RecentByTool(ctx context.Context, toolName string, since time.Time, statuses []Status) ([]LogEntry, error)

	CountByStatus(ctx context.Context) (map[Status]int, error)
}
