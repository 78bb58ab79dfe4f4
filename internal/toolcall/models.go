package toolcall

import "time"

// LogEntry is one row of the tool-call reliability log: one AI-triggered
// action, created at invocation time and mutated only by the component
// that observes the outcome.
//
// Invariants:
// - retry_count is monotonically non-decreasing.
// - success is terminal; failed is terminal once retry_count >= max_retries.
// - rows are never deleted (audit trail).

type LogEntry struct {
	ID       string         `json:"id" db:"id"`
	ToolName string         `json:"tool_name" db:"tool_name"`
	// Parameters is the structured tool invocation payload, stored as JSONB.
	Parameters map[string]any `json:"tool_parameters" db:"tool_parameters"`

	// Correlation identifiers. All optional, at least one expected.
	AICallID        string `json:"ai_call_id,omitempty" db:"ai_call_id"`
	TelephonyCallID string `json:"telephony_call_id,omitempty" db:"telephony_call_id"`
	CallLogID       string `json:"call_log_id,omitempty" db:"call_log_id"`

	CallbackNumber string  `json:"callback_number,omitempty" db:"callback_number"`
	CallerName     string  `json:"caller_name,omitempty" db:"caller_name"`
	Urgency        Urgency `json:"urgency_level" db:"urgency_level"`

	Status       Status `json:"status" db:"status"`
	RetryCount   int    `json:"retry_count" db:"retry_count"`
	MaxRetries   int    `json:"max_retries" db:"max_retries"`
	Result       string `json:"result,omitempty" db:"result"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRetrying Status = "retrying"
)

type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// Rank orders urgencies for queue draining: critical > urgent > normal.
// Unknown values rank lowest.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 2
	case UrgencyUrgent:
		return 1
	default:
		return 0
	}
}

// ParseUrgency maps free-form input to a known urgency, defaulting to normal.
func ParseUrgency(s string) Urgency {
	switch Urgency(s) {
	case UrgencyUrgent:
		return UrgencyUrgent
	case UrgencyCritical:
		return UrgencyCritical
	default:
		return UrgencyNormal
	}
}

// Tool names this core dispatches on. Other tools are logged but executed
// by collaborators.
const (
	ToolTransferCall    = "transfer_call"
	ToolCollectCallback = "collect_caller_info"
	ToolEndCall         = "end_call"
)
