package callback

import (
	"time"

	"callbridge/internal/toolcall"
)

// Request is a deferred delivery obligation: caller information that could
// not be routed to a human immediately and must be POSTed downstream later.
//
// Invariant: next_retry_at is set only while status=failed and
// retry_count < max_retries; once posted or permanently failed it is frozen.

type Request struct {
	ID string `json:"id" db:"id"`

	CallbackNumber string `json:"callback_number" db:"callback_number"`
	CallerName     string `json:"caller_name,omitempty" db:"caller_name"`

	// Subject and Concern describe what the caller needs (for a veterinary
	// client this is the pet and the complaint; the fields are generic).
	Subject string `json:"subject,omitempty" db:"subject"`
	Concern string `json:"concern,omitempty" db:"concern"`

	Urgency toolcall.Urgency `json:"urgency_level" db:"urgency_level"`

	SourceCallID  string `json:"source_call_id,omitempty" db:"source_call_id"`
	ToolCallLogID string `json:"tool_call_log_id,omitempty" db:"tool_call_log_id"`

	Status     Status `json:"status" db:"status"`
	RetryCount int    `json:"retry_count" db:"retry_count"`
	MaxRetries int    `json:"max_retries" db:"max_retries"`

	NextRetryAt     *time.Time `json:"next_retry_at,omitempty" db:"next_retry_at"`
	PostedAt        *time.Time `json:"posted_at,omitempty" db:"posted_at"`
	ResponsePayload string     `json:"response_payload,omitempty" db:"response_payload"`
	ErrorMessage    string     `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Status string

const (
	StatusPending Status = "pending"
	StatusPosted  Status = "posted"
	StatusFailed  Status = "failed"
)

// PermanentlyFailed reports whether the request is out of retry budget.
func (r Request) PermanentlyFailed() bool {
	return r.Status == StatusFailed && r.RetryCount >= r.MaxRetries
}

// backoffLadder is the fixed retry schedule, indexed by retry_count and
// capped at the last rung.
var backoffLadder = []time.Duration{5 * time.Minute, 15 * time.Minute, 60 * time.Minute}

// BackoffDelay returns the delay before the given retry attempt
// (retryCount >= 1). Monotonically non-decreasing.
func BackoffDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	if retryCount > len(backoffLadder) {
		retryCount = len(backoffLadder)
	}
	return backoffLadder[retryCount-1]
}
