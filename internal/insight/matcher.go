package insight

import (
	"context"
	"log/slog"
	"time"

	"callbridge/internal/monitoring"
	"callbridge/internal/phone"
	"callbridge/internal/toolcall"

	"github.com/google/uuid"
)

// TransferSource exposes the matchable slice of the tool-call log.
type TransferSource interface {
	RecentTransfers(ctx context.Context, window time.Duration) ([]toolcall.LogEntry, error)
}

// MatcherConfig carries the tunables for inbound pre-routing queries.
type MatcherConfig struct {
	// Window is how far back a transfer entry stays matchable.
	Window time.Duration
	// Deadline bounds how long the receiving platform waits for our
	// routing decision. Work past the deadline continues for audit only.
	Deadline time.Duration

	DefaultTarget Target
}

const (
	defaultWindow   = 60 * time.Second
	defaultDeadline = 2500 * time.Millisecond
	// backgroundGrace bounds post-deadline audit work.
	backgroundGrace = 15 * time.Second
)

// Matcher answers inbound pre-routing queries: find the transfer we just
// initiated for this caller, surface a context card to the answering
// agent, and hand back a routing decision before the platform's deadline.
//
// The routing response is never blocked on persistence or card delivery.

type Matcher struct {
	transfers TransferSource
	records   Repository
	cards     CardSender
	cfg       MatcherConfig

	log     *slog.Logger
	metrics *monitoring.Metrics
	clock   func() time.Time
}

func NewMatcher(transfers TransferSource, records Repository, cards CardSender, cfg MatcherConfig, log *slog.Logger, metrics *monitoring.Metrics) *Matcher {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}
	if log == nil {
		log = slog.Default()
	}
	return &Matcher{
		transfers: transfers,
		records:   records,
		cards:     cards,
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		clock:     time.Now,
	}
}

// Query is one inbound pre-routing lookup from the receiving platform.
type Query struct {
	InboundCallID string
	CallerNumber  string
	TargetNumber  string
}

type matchResult struct {
	status    Status
	matchedID string
	card      string
	target    Target
	errMsg    string
}

// HandleQuery always returns a well-formed Decision, by the deadline. The
// match-and-card work races a timer; if it loses, the default target goes
// out immediately and the work finishes in the background, where its
// record is finalized as failed regardless of how the match went.
func (m *Matcher) HandleQuery(ctx context.Context, q Query) Decision {
	start := m.clock()
	recID := uuid.NewString()

	if err := m.records.Insert(ctx, Record{
		ID:            recID,
		InboundCallID: q.InboundCallID,
		CallerNumber:  q.CallerNumber,
		TargetNumber:  q.TargetNumber,
		Status:        StatusPending,
		CreatedAt:     start.UTC(),
	}); err != nil {
		m.log.Error("insight record insert failed", "record_id", recID, "err", err)
	}

	// The background context outlives the HTTP request: a lost race still
	// finishes matching and card delivery for the audit trail.
	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundGrace)

	resultCh := make(chan matchResult, 1)
	wonCh := make(chan bool, 1)

	go func() {
		defer cancel()
		res := m.process(bgCtx, q)
		resultCh <- res
		// The audit write stays outside the race: the select below decides
		// the winner first, and a completion the caller never saw is
		// recorded as a deadline failure no matter how the match went.
		if !<-wonCh {
			res.status = StatusFailed
			if res.errMsg == "" {
				res.errMsg = "deadline exceeded"
			}
		}
		m.finalize(bgCtx, recID, res, start)
	}()

	timer := time.NewTimer(m.cfg.Deadline)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		wonCh <- true
		m.observe(res.status, start)
		return Decision{Routing: []Target{res.target}}
	case <-timer.C:
		wonCh <- false
		m.observe(StatusFailed, start)
		m.log.Warn("insight query deadline exceeded, returning default target",
			"record_id", recID, "inbound_call_id", q.InboundCallID)
		return Decision{Routing: []Target{m.cfg.DefaultTarget}}
	}
}

func (m *Matcher) process(ctx context.Context, q Query) matchResult {
	res := matchResult{target: m.cfg.DefaultTarget}

	entries, err := m.transfers.RecentTransfers(ctx, m.cfg.Window)
	if err != nil {
		res.status = StatusFailed
		res.errMsg = "transfer log query: " + err.Error()
		return res
	}

	entry, ok := m.match(entries, q.CallerNumber)
	if !ok {
		res.status = StatusNoMatch
		return res
	}
	res.matchedID = entry.ID
	res.target = m.targetFor(entry)

	card := BuildCard(entry)
	res.card = card.Content()

	if m.cards == nil {
		// Matching still informs routing; there is just nowhere to
		// surface the card.
		res.status = StatusSkipped
		return res
	}
	if err := m.cards.Send(ctx, q.InboundCallID, card); err != nil {
		// Card delivery failure never degrades the routing decision.
		m.log.Error("insight card delivery failed", "inbound_call_id", q.InboundCallID, "err", err)
		res.status = StatusFailed
		res.errMsg = "card delivery: " + err.Error()
		return res
	}
	res.status = StatusSuccess
	return res
}

// match picks the most recent matchable transfer whose callback number
// equals the inbound caller number. Entries arrive most recent first.
func (m *Matcher) match(entries []toolcall.LogEntry, callerNumber string) (toolcall.LogEntry, bool) {
	caller := phone.Normalize(callerNumber)
	if caller == "" {
		return toolcall.LogEntry{}, false
	}
	for _, e := range entries {
		if e.CallbackNumber == "" {
			continue
		}
		if phone.Normalize(e.CallbackNumber) == caller {
			return e, true
		}
	}
	return toolcall.LogEntry{}, false
}

// targetFor lets a transfer entry steer routing to a specific agent when
// the invocation named one; otherwise the configured default applies.
func (m *Matcher) targetFor(entry toolcall.LogEntry) Target {
	if entry.Parameters != nil {
		if id, ok := entry.Parameters["agent_id"].(string); ok && id != "" {
			return Target{Type: "user", ID: id}
		}
	}
	return m.cfg.DefaultTarget
}

func (m *Matcher) finalize(ctx context.Context, recID string, res matchResult, start time.Time) {
	in := FinalizeInput{
		Status:               res.status,
		MatchedToolCallLogID: res.matchedID,
		CardContent:          res.card,
		RoutedToType:         res.target.Type,
		RoutedToID:           res.target.ID,
		ErrorMessage:         res.errMsg,
		ProcessingTimeMS:     m.clock().Sub(start).Milliseconds(),
	}
	if err := m.records.Finalize(ctx, recID, in); err != nil {
		m.log.Error("insight record finalize failed", "record_id", recID, "err", err)
	}
}

func (m *Matcher) observe(status Status, start time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.InsightQueries.WithLabelValues(string(status)).Inc()
	m.metrics.InsightQueryDuration.Observe(m.clock().Sub(start).Seconds())
}
