package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"callbridge/internal/callback"
	"callbridge/internal/correlation"
	"callbridge/internal/insight"
	"callbridge/internal/reporting"
	"callbridge/internal/toolcall"
	"callbridge/internal/transfer"
	"callbridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Correlations *correlation.Service
	Log          *toolcall.Service
	Transfers    *transfer.Executor
	Callbacks    *callback.Processor
	Matcher      *insight.Matcher
	Stats        *reporting.Service
}

// --- Platform webhooks ---

type callSetupRequest struct {
	AICallID        string `json:"ai_call_id"`
	TelephonyCallID string `json:"telephony_call_id"`
	CallerNumber    string `json:"caller_number"`
	CalleeNumber    string `json:"callee_number"`
}

// CallSetup binds the AI platform's call id to the carrier's call id at
// call establishment. The binding is create-once: a repeated webhook for
// either id is a conflict, never an overwrite.
func (h Handlers) CallSetup(c *gin.Context) {
	var req callSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AICallID == "" || req.TelephonyCallID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "ai_call_id and telephony_call_id required"})
		return
	}

	rec, err := h.Correlations.Create(c.Request.Context(), req.AICallID, req.TelephonyCallID, req.CallerNumber, req.CalleeNumber)
	if errors.Is(err, correlation.ErrDuplicate) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call ids already mapped"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("call setup failed", "ai_call_id", req.AICallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "correlation write failed"})
		return
	}
	c.JSON(http.StatusCreated, rec)
}

type toolInvocationRequest struct {
	ToolName        string         `json:"tool_name"`
	AICallID        string         `json:"ai_call_id"`
	TelephonyCallID string         `json:"telephony_call_id"`
	CallLogID       string         `json:"call_log_id"`
	Parameters      map[string]any `json:"parameters"`
}

func (r toolInvocationRequest) param(key string) string {
	if r.Parameters == nil {
		return ""
	}
	if v, ok := r.Parameters[key].(string); ok {
		return v
	}
	return ""
}

// ToolInvocation receives one AI-triggered tool call and dispatches it.
// Every invocation gets exactly one terminal JSON response, always 200:
// the AI platform needs a speakable result, not an HTTP error.
func (h Handlers) ToolInvocation(c *gin.Context) {
	var req toolInvocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ToolName == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tool_name required"})
		return
	}
	ctx := c.Request.Context()

	switch req.ToolName {
	case toolcall.ToolTransferCall:
		out := h.Transfers.Execute(ctx, transfer.Request{
			Destination:     req.param("destination"),
			AICallID:        req.AICallID,
			TelephonyCallID: req.TelephonyCallID,
			CallLogID:       req.CallLogID,
			CallbackNumber:  req.param("callback_number"),
			CallerName:      req.param("caller_name"),
			Urgency:         toolcall.ParseUrgency(req.param("urgency")),
			Reason:          req.param("reason"),
		})
		c.JSON(http.StatusOK, out)

	case toolcall.ToolCollectCallback:
		h.collectCallback(c, req)

	case toolcall.ToolEndCall:
		logID := h.Log.Record(ctx, toolcall.RecordInput{
			ToolName:        req.ToolName,
			Parameters:      req.Parameters,
			AICallID:        req.AICallID,
			TelephonyCallID: req.TelephonyCallID,
			CallLogID:       req.CallLogID,
		})
		h.Log.MarkSuccess(ctx, logID, `{"ended":true}`)
		c.JSON(http.StatusOK, gin.H{"log_id": logID, "status": "success"})

	default:
		logID := h.Log.Record(ctx, toolcall.RecordInput{
			ToolName:        req.ToolName,
			Parameters:      req.Parameters,
			AICallID:        req.AICallID,
			TelephonyCallID: req.TelephonyCallID,
			CallLogID:       req.CallLogID,
		})
		h.Log.MarkFailure(ctx, logID, "unsupported tool")
		c.JSON(http.StatusOK, gin.H{"log_id": logID, "status": "failed", "message": "unsupported tool"})
	}
}

func (h Handlers) collectCallback(c *gin.Context, req toolInvocationRequest) {
	ctx := c.Request.Context()
	urgency := toolcall.ParseUrgency(req.param("urgency"))

	logID := h.Log.Record(ctx, toolcall.RecordInput{
		ToolName:        req.ToolName,
		Parameters:      req.Parameters,
		AICallID:        req.AICallID,
		TelephonyCallID: req.TelephonyCallID,
		CallLogID:       req.CallLogID,
		CallbackNumber:  req.param("callback_number"),
		CallerName:      req.param("caller_name"),
		Urgency:         urgency,
	})

	number := req.param("callback_number")
	if number == "" {
		h.Log.MarkFailure(ctx, logID, "callback_number required")
		c.JSON(http.StatusOK, gin.H{"log_id": logID, "status": "failed", "message": "callback_number required"})
		return
	}

	// Two-phase: accept and persist now, deliver on the next sweep.
	cb, err := h.Callbacks.Enqueue(ctx, callback.Request{
		CallbackNumber: number,
		CallerName:     req.param("caller_name"),
		Subject:        req.param("subject"),
		Concern:        req.param("concern"),
		Urgency:        urgency,
		SourceCallID:   req.TelephonyCallID,
		ToolCallLogID:  logID,
	})
	if err != nil {
		logger.FromGin(c).Error("callback enqueue failed", "log_id", logID, "err", err)
		h.Log.MarkFailure(ctx, logID, "callback enqueue failed: "+err.Error())
		c.JSON(http.StatusOK, gin.H{"log_id": logID, "status": "failed", "message": "could not save the callback request"})
		return
	}

	h.Log.MarkSuccess(ctx, logID, `{"callback_request_id":"`+cb.ID+`"}`)
	c.JSON(http.StatusOK, gin.H{"log_id": logID, "status": "success", "callback_request_id": cb.ID})
}

type ringToRequest struct {
	CallID string `json:"call_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// RingTo answers the receiving platform's pre-routing query. The response
// is always a well-formed routing decision, delivered within the
// platform's deadline.
func (h Handlers) RingTo(c *gin.Context) {
	var req ringToRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	dec := h.Matcher.HandleQuery(c.Request.Context(), insight.Query{
		InboundCallID: req.CallID,
		CallerNumber:  req.From,
		TargetNumber:  req.To,
	})
	c.JSON(http.StatusOK, dec)
}

// --- Ops API ---

func (h Handlers) ListFailedToolCalls(c *gin.Context) {
	entries, err := h.Log.ListFailedForRetry(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tool_calls": entries})
}

func (h Handlers) ListPendingToolCalls(c *gin.Context) {
	entries, err := h.Log.ListPending(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tool_calls": entries})
}

func (h Handlers) GetToolCall(c *gin.Context) {
	entry, err := h.Log.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, toolcall.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// RetryToolCall bumps the retry budget accounting for a failed entry.
func (h Handlers) RetryToolCall(c *gin.Context) {
	state, err := h.Log.IncrementRetry(c.Request.Context(), c.Param("id"))
	if errors.Is(err, toolcall.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "retry failed"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h Handlers) GetCorrelation(c *gin.Context) {
	rec, err := h.Correlations.LookupByAICallID(c.Request.Context(), c.Param("ai_call_id"))
	if errors.Is(err, correlation.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// RequeueCallback resets a permanently failed callback for fresh delivery.
func (h Handlers) RequeueCallback(c *gin.Context) {
	err := h.Callbacks.Requeue(c.Request.Context(), c.Param("id"))
	if errors.Is(err, callback.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no requeueable request"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "requeue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "pending"})
}

func (h Handlers) GetStats(c *gin.Context) {
	stats, err := h.Stats.Snapshot(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stats query failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || n <= 0 || n > 500 {
		return 50
	}
	return n
}
