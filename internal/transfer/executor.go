package transfer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"callbridge/internal/callback"
	"callbridge/internal/correlation"
	"callbridge/internal/monitoring"
	"callbridge/internal/routing"
	"callbridge/internal/telephony"
	"callbridge/internal/toolcall"
)

// Executor runs the transfer tool invocation end to end: audit, identifier
// resolution, destination routing, the idempotency claim, and the handoff
// to the carrier execution boundary.
//
// Concurrency: two concurrent transfer invocations for the same call are
// not serialized upstream. The Redis claim is what prevents a double dial;
// the reliability log is an audit trail, not a mutex.

type Executor struct {
	Correlations *correlation.Service
	Log          *toolcall.Service
	Claims       Claimer
	Carrier      telephony.TransferExecutor
	Callbacks    *callback.Processor

	Client   routing.ClientConfig
	ClaimTTL time.Duration

	Logger  *slog.Logger
	Metrics *monitoring.Metrics
}

// Request is one transfer tool invocation as received from the AI platform.
type Request struct {
	Destination string

	AICallID        string
	TelephonyCallID string
	CallLogID       string

	CallbackNumber string
	CallerName     string
	Urgency        toolcall.Urgency
	Reason         string
}

// Outcome is the single terminal response owed to the AI platform for
// this invocation. Exactly one Outcome is produced per Execute call.
type Outcome struct {
	LogID  string        `json:"log_id"`
	Status OutcomeStatus `json:"status"`
	// Message is caller-facing: what the AI should tell the human.
	Message string        `json:"message"`
	Route   routing.Route `json:"route,omitempty"`
	// CallbackQueued is set when carrier failure degraded to a deferred
	// callback delivery.
	CallbackQueued bool `json:"callback_queued,omitempty"`
}

type OutcomeStatus string

const (
	OutcomeTransferred        OutcomeStatus = "transferred"
	OutcomeAlreadyTransferred OutcomeStatus = "already_transferred"
	OutcomeFailed             OutcomeStatus = "failed"
)

const (
	msgConnecting = "Connecting you now, one moment please."
	msgApology    = "I'm sorry, I wasn't able to connect you right now."
	msgCallback   = "I'm sorry, I couldn't connect you right now. Someone will call you back shortly."
)

const defaultClaimTTL = 2 * time.Minute

// Execute runs the transfer. It never panics a live call and never
// returns without a terminal outcome.
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	log := e.logger()

	logID := e.Log.Record(ctx, toolcall.RecordInput{
		ToolName: toolcall.ToolTransferCall,
		Parameters: map[string]any{
			"destination": req.Destination,
			"reason":      req.Reason,
		},
		AICallID:        req.AICallID,
		TelephonyCallID: req.TelephonyCallID,
		CallLogID:       req.CallLogID,
		CallbackNumber:  req.CallbackNumber,
		CallerName:      req.CallerName,
		Urgency:         req.Urgency,
	})

	dest := strings.TrimSpace(req.Destination)
	if dest == "" || correlation.IsTemplatePlaceholder(dest) {
		// Permanent validation error: not retried.
		e.Log.MarkFailure(ctx, logID, "invalid destination: "+req.Destination)
		return Outcome{LogID: logID, Status: OutcomeFailed, Message: msgApology}
	}

	res, err := e.Correlations.Resolve(ctx, correlation.ResolveHints{
		AICallID:        req.AICallID,
		TelephonyCallID: req.TelephonyCallID,
		CallbackNumber:  req.CallbackNumber,
	})
	if err != nil {
		// Correlation miss: abort this action only, flag for manual
		// reconciliation; the call itself continues.
		log.Warn("transfer aborted: no correlation", "log_id", logID, "ai_call_id", req.AICallID)
		e.Log.MarkFailure(ctx, logID, "correlation miss: no mapping for supplied identifiers")
		return Outcome{LogID: logID, Status: OutcomeFailed, Message: msgApology}
	}
	telCallID := res.Record.TelephonyCallID
	if res.Degraded {
		log.Warn("transfer using degraded correlation", "log_id", logID, "via", res.Via, "telephony_call_id", telCallID)
	}

	claimed := e.claim(ctx, telCallID, logID)
	if !claimed {
		if e.Metrics != nil {
			e.Metrics.TransferClaimRejects.Inc()
		}
		log.Info("duplicate transfer suppressed", "log_id", logID, "telephony_call_id", telCallID)
		e.Log.MarkSuccess(ctx, logID, `{"already_transferred":true}`)
		return Outcome{LogID: logID, Status: OutcomeAlreadyTransferred, Message: msgConnecting}
	}

	route := routing.Resolve(dest, e.Client)

	err = e.Carrier.ExecuteTransfer(ctx, telephony.TransferCommand{
		TelephonyCallID: telCallID,
		Route:           route,
		CallerName:      req.CallerName,
	})
	if err != nil {
		// Free the claim so a later retry may dial.
		e.release(ctx, telCallID, logID)
		log.Error("carrier transfer failed", "log_id", logID, "telephony_call_id", telCallID, "err", err)
		e.Log.MarkFailure(ctx, logID, err.Error())

		if e.Callbacks != nil && req.CallbackNumber != "" {
			_, cbErr := e.Callbacks.Enqueue(ctx, callback.Request{
				CallbackNumber: req.CallbackNumber,
				CallerName:     req.CallerName,
				Concern:        req.Reason,
				Urgency:        req.Urgency,
				SourceCallID:   telCallID,
				ToolCallLogID:  logID,
			})
			if cbErr == nil {
				return Outcome{LogID: logID, Status: OutcomeFailed, Message: msgCallback, CallbackQueued: true}
			}
			log.Error("callback fallback enqueue failed", "log_id", logID, "err", cbErr)
		}
		return Outcome{LogID: logID, Status: OutcomeFailed, Message: msgApology}
	}

	routeJSON, _ := json.Marshal(route)
	e.Log.MarkSuccess(ctx, logID, string(routeJSON))
	return Outcome{LogID: logID, Status: OutcomeTransferred, Message: msgConnecting, Route: route}
}

func (e *Executor) claim(ctx context.Context, telCallID, owner string) bool {
	if e.Claims == nil || telCallID == "" {
		return true
	}
	ttl := e.ClaimTTL
	if ttl <= 0 {
		ttl = defaultClaimTTL
	}
	ok, err := e.Claims.Acquire(ctx, claimKey(telCallID), owner, ttl)
	if err != nil {
		// Claim infrastructure failure: prefer connecting the caller over
		// strict exactly-once. Logged for reconciliation.
		e.logger().Error("transfer claim check failed, proceeding", "telephony_call_id", telCallID, "err", err)
		return true
	}
	return ok
}

func (e *Executor) release(ctx context.Context, telCallID, owner string) {
	if e.Claims == nil || telCallID == "" {
		return
	}
	if err := e.Claims.Release(ctx, claimKey(telCallID), owner); err != nil {
		e.logger().Warn("transfer claim release failed", "telephony_call_id", telCallID, "err", err)
	}
}

func claimKey(telCallID string) string {
	return "transfer:claim:" + telCallID
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
