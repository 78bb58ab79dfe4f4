package correlation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound  = errors.New("correlation: record not found")
	ErrDuplicate = errors.New("correlation: identifier already mapped")
)

// Repository is the persistence contract for correlation records.
// Create-once, read-many; no update or delete methods by design.
type Repository interface {
	Insert(ctx context.Context, rec Record) error
	GetByAICallID(ctx context.Context, id string) (Record, error)
	GetByTelephonyID(ctx context.Context, id string) (Record, error)

	// LatestByCallerNumber returns the most recent record whose normalized
	// caller number equals number and which was created at or after since.
	LatestByCallerNumber(ctx context.Context, number string, since time.Time) (Record, error)
}

// PostgresRepo stores records in the call_correlation table, which carries
// unique indexes on ai_call_id and telephony_call_id.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO call_correlation (id, ai_call_id, telephony_call_id, caller_number, callee_number, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.AICallID, rec.TelephonyCallID, rec.CallerNumber, rec.CalleeNumber, rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

const selectRecord = `
SELECT id, ai_call_id, telephony_call_id, caller_number, callee_number, created_at
FROM call_correlation
`

func (r *PostgresRepo) GetByAICallID(ctx context.Context, id string) (Record, error) {
	return r.getOne(ctx, selectRecord+`WHERE ai_call_id = $1`, id)
}

func (r *PostgresRepo) GetByTelephonyID(ctx context.Context, id string) (Record, error) {
	return r.getOne(ctx, selectRecord+`WHERE telephony_call_id = $1`, id)
}

func (r *PostgresRepo) LatestByCallerNumber(ctx context.Context, number string, since time.Time) (Record, error) {
	q := selectRecord + `
WHERE caller_number = $1 AND created_at >= $2
ORDER BY created_at DESC
LIMIT 1
`
	return r.getOne(ctx, q, number, since)
}

func (r *PostgresRepo) getOne(ctx context.Context, q string, args ...any) (Record, error) {
	var rec Record
	err := r.db.QueryRowContext(ctx, q, args...).Scan(
		&rec.ID, &rec.AICallID, &rec.TelephonyCallID, &rec.CallerNumber, &rec.CalleeNumber, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
