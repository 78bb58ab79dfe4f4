package callback

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("callback: request not found")

// Repository is the persistence contract for callback requests.
type Repository interface {
	Insert(ctx context.Context, r Request) error
	Get(ctx context.Context, id string) (Request, error)

	// Due returns deliverable requests: pending, or failed with
	// next_retry_at <= now and retry budget remaining. Ordered urgency
	// desc then created_at asc, capped at limit.
	Due(ctx context.Context, now time.Time, limit int) ([]Request, error)

	MarkPosted(ctx context.Context, id, responsePayload string, at time.Time) error

	// MarkFailed records a failed attempt. nextRetryAt is nil for a
	// permanent failure (budget exhausted), which freezes the row.
	MarkFailed(ctx context.Context, id, errMsg string, retryCount int, nextRetryAt *time.Time) error

	// Requeue resets a permanently failed request back to pending with a
	// fresh retry budget. Operator action only.
	Requeue(ctx context.Context, id string) error

	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// PostgresRepo persists requests in the callback_requests table.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, req Request) error {
	const q = `
INSERT INTO callback_requests (
  id, callback_number, caller_name, subject, concern, urgency_level,
  source_call_id, tool_call_log_id, status, retry_count, max_retries,
  next_retry_at, posted_at, response_payload, error_message, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`
	_, err := r.db.ExecContext(ctx, q,
		req.ID, req.CallbackNumber, req.CallerName, req.Subject, req.Concern, req.Urgency,
		req.SourceCallID, req.ToolCallLogID, req.Status, req.RetryCount, req.MaxRetries,
		req.NextRetryAt, req.PostedAt, req.ResponsePayload, req.ErrorMessage, req.CreatedAt,
	)
	return err
}

const selectRequest = `
SELECT id, callback_number, caller_name, subject, concern, urgency_level,
       source_call_id, tool_call_log_id, status, retry_count, max_retries,
       next_retry_at, posted_at, response_payload, error_message, created_at
FROM callback_requests
`

func (r *PostgresRepo) Get(ctx context.Context, id string) (Request, error) {
	row := r.db.QueryRowContext(ctx, selectRequest+`WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	return req, err
}

func (r *PostgresRepo) Due(ctx context.Context, now time.Time, limit int) ([]Request, error) {
	q := selectRequest + `
WHERE status = 'pending'
   OR (status = 'failed' AND retry_count < max_retries AND next_retry_at IS NOT NULL AND next_retry_at <= $1)
ORDER BY CASE urgency_level WHEN 'critical' THEN 2 WHEN 'urgent' THEN 1 ELSE 0 END DESC, created_at ASC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) MarkPosted(ctx context.Context, id, responsePayload string, at time.Time) error {
	const q = `
UPDATE callback_requests
SET status = 'posted', response_payload = $2, posted_at = $3, next_retry_at = NULL, error_message = ''
WHERE id = $1
`
	return r.exec(ctx, q, id, responsePayload, at)
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, errMsg string, retryCount int, nextRetryAt *time.Time) error {
	const q = `
UPDATE callback_requests
SET status = 'failed', error_message = $2, retry_count = $3, next_retry_at = $4
WHERE id = $1
`
	return r.exec(ctx, q, id, errMsg, retryCount, nextRetryAt)
}

func (r *PostgresRepo) Requeue(ctx context.Context, id string) error {
	const q = `
UPDATE callback_requests
SET status = 'pending', retry_count = 0, next_retry_at = NULL, error_message = ''
WHERE id = $1 AND status = 'failed'
`
	return r.exec(ctx, q, id)
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	const q = `SELECT status, COUNT(*) FROM callback_requests GROUP BY status`
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

func (r *PostgresRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (Request, error) {
	var req Request
	var callerName, subject, concern, sourceCallID, toolCallLogID, responsePayload, errMsg sql.NullString
	var nextRetryAt, postedAt sql.NullTime

	err := row.Scan(
		&req.ID, &req.CallbackNumber, &callerName, &subject, &concern, &req.Urgency,
		&sourceCallID, &toolCallLogID, &req.Status, &req.RetryCount, &req.MaxRetries,
		&nextRetryAt, &postedAt, &responsePayload, &errMsg, &req.CreatedAt,
	)
	if err != nil {
		return Request{}, err
	}

	req.CallerName = callerName.String
	req.Subject = subject.String
	req.Concern = concern.String
	req.SourceCallID = sourceCallID.String
	req.ToolCallLogID = toolCallLogID.String
	req.ResponsePayload = responsePayload.String
	req.ErrorMessage = errMsg.String
	if nextRetryAt.Valid {
		t := nextRetryAt.Time
		req.NextRetryAt = &t
	}
	if postedAt.Valid {
		t := postedAt.Time
		req.PostedAt = &t
	}
	return req, nil
}
