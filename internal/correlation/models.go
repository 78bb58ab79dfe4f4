package correlation

import "time"

// Record binds the two platforms' identifiers for one call.
//
// Invariants:
// - 1:1 mapping in both directions (unique indexes on both id columns).
// - Immutable once created; retained for audit and time-windowed matching.
//
// Caller and callee numbers are stored normalized (E.164) so that the
// degraded number-based fallback can compare equality directly.

type Record struct {
	ID              string    `json:"id" db:"id"`
	AICallID        string    `json:"ai_call_id" db:"ai_call_id"`
	TelephonyCallID string    `json:"telephony_call_id" db:"telephony_call_id"`
	CallerNumber    string    `json:"caller_number" db:"caller_number"`
	CalleeNumber    string    `json:"callee_number" db:"callee_number"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
