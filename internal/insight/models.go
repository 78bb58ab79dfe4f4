package insight

import "time"

// Record is the audit row for one inbound pre-routing query.
//
// Invariants:
// - Status is finalized exactly once (pending -> terminal).
// - ProcessingTimeMS is always recorded, including on timeout.

type Record struct {
	ID            string `json:"id" db:"id"`
	InboundCallID string `json:"inbound_call_id" db:"inbound_call_id"`
	CallerNumber  string `json:"caller_number" db:"caller_number"`
	TargetNumber  string `json:"target_number" db:"target_number"`

	MatchedToolCallLogID string `json:"matched_tool_call_log_id,omitempty" db:"matched_tool_call_log_id"`
	CardContent          string `json:"card_content,omitempty" db:"card_content"`

	RoutedToType string `json:"routed_to_type,omitempty" db:"routed_to_type"`
	RoutedToID   string `json:"routed_to_id,omitempty" db:"routed_to_id"`

	Status           Status `json:"status" db:"status"`
	ErrorMessage     string `json:"error_message,omitempty" db:"error_message"`
	ProcessingTimeMS int64  `json:"processing_time_ms" db:"processing_time_ms"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusNoMatch Status = "no_match"
	StatusSkipped Status = "skipped"
)

// Target is one routing destination on the receiving platform.
type Target struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Decision is the routing response owed to the receiving platform. It is
// always well-formed: at minimum the default target.
type Decision struct {
	Routing []Target `json:"routing"`
}
