package insight

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("insight: record not found")

// FinalizeInput carries the terminal state for one query record.
type FinalizeInput struct {
	Status               Status
	MatchedToolCallLogID string
	CardContent          string
	RoutedToType         string
	RoutedToID           string
	ErrorMessage         string
	ProcessingTimeMS     int64
}

// Repository persists insight query audit rows.
type Repository interface {
	Insert(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)

	// Finalize sets the terminal state. Guarded so a record is finalized
	// exactly once; a second call is a no-op.
	Finalize(ctx context.Context, id string, in FinalizeInput) error

	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// PostgresRepo persists records in the insight_cards table.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO insight_cards (
  id, inbound_call_id, caller_number, target_number, matched_tool_call_log_id,
  card_content, routed_to_type, routed_to_id, status, error_message,
  processing_time_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.InboundCallID, rec.CallerNumber, rec.TargetNumber, rec.MatchedToolCallLogID,
		rec.CardContent, rec.RoutedToType, rec.RoutedToID, rec.Status, rec.ErrorMessage,
		rec.ProcessingTimeMS, rec.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Record, error) {
	const q = `
SELECT id, inbound_call_id, caller_number, target_number, matched_tool_call_log_id,
       card_content, routed_to_type, routed_to_id, status, error_message,
       processing_time_ms, created_at
FROM insight_cards
WHERE id = $1
`
	var rec Record
	var matchedID, cardContent, routedType, routedID, errMsg sql.NullString
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID, &rec.InboundCallID, &rec.CallerNumber, &rec.TargetNumber, &matchedID,
		&cardContent, &routedType, &routedID, &rec.Status, &errMsg,
		&rec.ProcessingTimeMS, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec.MatchedToolCallLogID = matchedID.String
	rec.CardContent = cardContent.String
	rec.RoutedToType = routedType.String
	rec.RoutedToID = routedID.String
	rec.ErrorMessage = errMsg.String
	return rec, nil
}

func (r *PostgresRepo) Finalize(ctx context.Context, id string, in FinalizeInput) error {
	const q = `
UPDATE insight_cards
SET status = $2, matched_tool_call_log_id = $3, card_content = $4,
    routed_to_type = $5, routed_to_id = $6, error_message = $7, processing_time_ms = $8
WHERE id = $1 AND status = 'pending'
`
	_, err := r.db.ExecContext(ctx, q,
		id, in.Status, in.MatchedToolCallLogID, in.CardContent,
		in.RoutedToType, in.RoutedToID, in.ErrorMessage, in.ProcessingTimeMS,
	)
	return err
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	const q = `SELECT status, COUNT(*) FROM insight_cards GROUP BY status`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}

// MemoryRepo is an in-memory Repository for tests.

type MemoryRepo struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[string]*Record)}
}

func (r *MemoryRepo) Insert(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

func (r *MemoryRepo) Finalize(ctx context.Context, id string, in FinalizeInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Status != StatusPending {
		return nil
	}
	rec.Status = in.Status
	rec.MatchedToolCallLogID = in.MatchedToolCallLogID
	rec.CardContent = in.CardContent
	rec.RoutedToType = in.RoutedToType
	rec.RoutedToID = in.RoutedToID
	rec.ErrorMessage = in.ErrorMessage
	rec.ProcessingTimeMS = in.ProcessingTimeMS
	return nil
}

func (r *MemoryRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Status]int)
	for _, rec := range r.records {
		out[rec.Status]++
	}
	return out, nil
}
