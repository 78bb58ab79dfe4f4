package telephony

import (
	"context"
	"errors"

	"callbridge/internal/routing"
)

// TransferCommand is the routing plan handed to the carrier execution
// layer: which live call leg to act on and where to dial.
type TransferCommand struct {
	// TelephonyCallID identifies the live leg at the carrier
	// (e.g. a Twilio CallSid).
	TelephonyCallID string `json:"telephony_call_id"`

	Route routing.Route `json:"route"`

	// CallerName is optional display context forwarded to the agent leg.
	CallerName string `json:"caller_name,omitempty"`
}

// TransferExecutor is the provider-agnostic boundary that bridges the
// caller to the resolved destination. Leg bridging mechanics are owned by
// the carrier integration; this core only hands over the plan.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Implementations must be safe for concurrent use.
type TransferExecutor interface {
	Name() string
	ExecuteTransfer(ctx context.Context, cmd TransferCommand) error
}

var ErrMissingCallID = errors.New("telephony: telephony_call_id required")

// NoopExecutor accepts every well-formed command without side effects.
// Used in wiring before a carrier integration is configured, and in tests.
type NoopExecutor struct{}

func (NoopExecutor) Name() string { return "noop" }

func (NoopExecutor) ExecuteTransfer(ctx context.Context, cmd TransferCommand) error {
	if cmd.TelephonyCallID == "" {
		return ErrMissingCallID
	}
	return nil
}
