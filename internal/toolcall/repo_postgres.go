package toolcall

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresRepo persists the reliability log in the tool_call_logs table.
//
// Urgency ordering is computed in SQL so that queue draining is consistent
// with Urgency.Rank regardless of which process reads the queue.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const urgencyRankSQL = `CASE urgency_level WHEN 'critical' THEN 2 WHEN 'urgent' THEN 1 ELSE 0 END`

func (r *PostgresRepo) Insert(ctx context.Context, e LogEntry) error {
	params, err := json.Marshal(e.Parameters)
	if err != nil {
		return fmt.Errorf("toolcall: marshal parameters: %w", err)
	}
	const q = `
INSERT INTO tool_call_logs (
  id, tool_name, tool_parameters, ai_call_id, telephony_call_id, call_log_id,
  callback_number, caller_name, urgency_level, status, retry_count, max_retries,
  result, error_message, created_at, processed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`
	_, err = r.db.ExecContext(ctx, q,
		e.ID, e.ToolName, params, e.AICallID, e.TelephonyCallID, e.CallLogID,
		e.CallbackNumber, e.CallerName, e.Urgency, e.Status, e.RetryCount, e.MaxRetries,
		e.Result, e.ErrorMessage, e.CreatedAt, e.ProcessedAt,
	)
	return err
}

const selectColumns = `
SELECT id, tool_name, tool_parameters, ai_call_id, telephony_call_id, call_log_id,
       callback_number, caller_name, urgency_level, status, retry_count, max_retries,
       result, error_message, created_at, processed_at
FROM tool_call_logs
`

func (r *PostgresRepo) Get(ctx context.Context, id string) (LogEntry, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+`WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return LogEntry{}, ErrNotFound
	}
	return e, err
}

func (r *PostgresRepo) SetOutcome(ctx context.Context, id string, status Status, result, errMsg string, processedAt time.Time) (bool, error) {
	const q = `
UPDATE tool_call_logs
SET status = $2, result = $3, error_message = $4, processed_at = $5
WHERE id = $1 AND status <> 'success'
`
	res, err := r.db.ExecContext(ctx, q, id, status, result, errMsg, processedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepo) IncrementRetry(ctx context.Context, id string) (int, int, error) {
	const q = `
UPDATE tool_call_logs
SET retry_count = retry_count + 1, status = 'retrying'
WHERE id = $1 AND retry_count < max_retries
RETURNING retry_count, max_retries
`
	var retryCount, maxRetries int
	err := r.db.QueryRowContext(ctx, q, id).Scan(&retryCount, &maxRetries)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing row from an exhausted one.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return 0, 0, getErr
		}
		return 0, 0, ErrRetriesExhausted
	}
	if err != nil {
		return 0, 0, err
	}
	return retryCount, maxRetries, nil
}

func (r *PostgresRepo) ListFailedForRetry(ctx context.Context, limit int) ([]LogEntry, error) {
	q := selectColumns + `
WHERE status = 'failed' AND retry_count < max_retries
ORDER BY ` + urgencyRankSQL + ` DESC, created_at ASC
LIMIT $1
`
	return r.queryEntries(ctx, q, limit)
}

func (r *PostgresRepo) ListPending(ctx context.Context, limit int) ([]LogEntry, error) {
	q := selectColumns + `
WHERE status = 'pending'
ORDER BY ` + urgencyRankSQL + ` DESC, created_at ASC
LIMIT $1
`
	return r.queryEntries(ctx, q, limit)
}

func (r *PostgresRepo) RecentByTool(ctx context.Context, toolName string, since time.Time, statuses []Status) ([]LogEntry, error) {
	// statuses is always a short fixed list; build placeholders explicitly.
	args := []any{toolName, since}
	in := ""
	for i, s := range statuses {
		if i > 0 {
			in += ","
		}
		in += fmt.Sprintf("$%d", len(args)+1)
		args = append(args, s)
	}
	q := selectColumns + `
WHERE tool_name = $1 AND created_at >= $2 AND status IN (` + in + `)
ORDER BY created_at DESC
`
	return r.queryEntries(ctx, q, args...)
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	const q = `SELECT status, COUNT(*) FROM tool_call_logs GROUP BY status`
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

func (r *PostgresRepo) queryEntries(ctx context.Context, q string, args ...any) ([]LogEntry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (LogEntry, error) {
	var e LogEntry
	var params []byte
	var aiID, telID, callLogID, cbNumber, callerName, result, errMsg sql.NullString
	var processedAt sql.NullTime

	err := row.Scan(
		&e.ID, &e.ToolName, &params, &aiID, &telID, &callLogID,
		&cbNumber, &callerName, &e.Urgency, &e.Status, &e.RetryCount, &e.MaxRetries,
		&result, &errMsg, &e.CreatedAt, &processedAt,
	)
	if err != nil {
		return LogEntry{}, err
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &e.Parameters); err != nil {
			return LogEntry{}, fmt.Errorf("toolcall: unmarshal parameters: %w", err)
		}
	}
	e.AICallID = aiID.String
	e.TelephonyCallID = telID.String
	e.CallLogID = callLogID.String
	e.CallbackNumber = cbNumber.String
	e.CallerName = callerName.String
	e.Result = result.String
	e.ErrorMessage = errMsg.String
	if processedAt.Valid {
		t := processedAt.Time
		e.ProcessedAt = &t
	}
	return e, nil
}
