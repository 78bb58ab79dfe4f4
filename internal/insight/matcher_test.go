package insight

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"callbridge/internal/toolcall"
)

type stubTransfers struct {
	entries []toolcall.LogEntry
	err     error
	delay   time.Duration
}

func (s *stubTransfers) RecentTransfers(ctx context.Context, window time.Duration) ([]toolcall.LogEntry, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.entries, s.err
}

type stubSender struct {
	mu    sync.Mutex
	err   error
	sent  []Card
	calls []string
}

func (s *stubSender) Send(ctx context.Context, inboundCallID string, card Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, inboundCallID)
	s.sent = append(s.sent, card)
	return s.err
}

func (s *stubSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func transferEntry(id, callbackNumber, name string, urgency toolcall.Urgency, age time.Duration) toolcall.LogEntry {
	now := time.Unix(1700000000, 0).UTC()
	return toolcall.LogEntry{
		ID:             id,
		ToolName:       toolcall.ToolTransferCall,
		CallbackNumber: callbackNumber,
		CallerName:     name,
		Urgency:        urgency,
		Status:         toolcall.StatusSuccess,
		CreatedAt:      now.Add(-age),
		Parameters:     map[string]any{"reason": "follow-up"},
	}
}

// onlyRecord waits for the single audit record to leave pending and
// returns it.
func onlyRecord(t *testing.T, repo *MemoryRepo) Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		repo.mu.RLock()
		var rec *Record
		for _, r := range repo.records {
			rec = r
		}
		if rec != nil && rec.Status != StatusPending {
			out := *rec
			repo.mu.RUnlock()
			return out
		}
		repo.mu.RUnlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("record never finalized")
	return Record{}
}

func newTestMatcher(transfers TransferSource, sender CardSender) (*Matcher, *MemoryRepo) {
	repo := NewMemoryRepo()
	m := NewMatcher(transfers, repo, sender, MatcherConfig{
		Window:        60 * time.Second,
		Deadline:      500 * time.Millisecond,
		DefaultTarget: Target{Type: "team", ID: "front-desk"},
	}, nil, nil)
	return m, repo
}

func TestHandleQuery_MatchSendsCardAndRecordsSuccess(t *testing.T) {
	transfers := &stubTransfers{entries: []toolcall.LogEntry{
		transferEntry("log-1", "4168189171", "Sam", toolcall.UrgencyUrgent, 10*time.Second),
	}}
	sender := &stubSender{}
	m, repo := newTestMatcher(transfers, sender)

	dec := m.HandleQuery(context.Background(), Query{
		InboundCallID: "inb-1",
		CallerNumber:  "+14168189171",
	})
	if len(dec.Routing) != 1 || dec.Routing[0].ID != "front-desk" {
		t.Fatalf("unexpected decision: %+v", dec)
	}

	rec := onlyRecord(t, repo)
	if rec.Status != StatusSuccess {
		t.Fatalf("expected success, got %q (%s)", rec.Status, rec.ErrorMessage)
	}
	if rec.MatchedToolCallLogID != "log-1" {
		t.Fatalf("expected match against log-1, got %q", rec.MatchedToolCallLogID)
	}
	if rec.CardContent == "" {
		t.Fatal("card content should be recorded")
	}
	if sender.sentCount() != 1 {
		t.Fatalf("expected one card sent, got %d", sender.sentCount())
	}
}

func TestHandleQuery_MostRecentEntryWins(t *testing.T) {
	// Source returns most recent first; both match the caller.
	transfers := &stubTransfers{entries: []toolcall.LogEntry{
		transferEntry("log-new", "4168189171", "Sam", toolcall.UrgencyNormal, 5*time.Second),
		transferEntry("log-old", "+1 (416) 818-9171", "Sam", toolcall.UrgencyNormal, 40*time.Second),
	}}
	m, repo := newTestMatcher(transfers, &stubSender{})

	m.HandleQuery(context.Background(), Query{InboundCallID: "inb-1", CallerNumber: "4168189171"})

	rec := onlyRecord(t, repo)
	if rec.MatchedToolCallLogID != "log-new" {
		t.Fatalf("expected most recent entry, got %q", rec.MatchedToolCallLogID)
	}
}

func TestHandleQuery_NormalizedNumbersMatch(t *testing.T) {
	transfers := &stubTransfers{entries: []toolcall.LogEntry{
		transferEntry("log-1", "(416) 818-9171", "Sam", toolcall.UrgencyNormal, 5*time.Second),
	}}
	m, repo := newTestMatcher(transfers, &stubSender{})

	m.HandleQuery(context.Background(), Query{InboundCallID: "inb-1", CallerNumber: "+14168189171"})

	rec := onlyRecord(t, repo)
	if rec.MatchedToolCallLogID != "log-1" {
		t.Fatalf("formatting differences must not break the match, got %q", rec.MatchedToolCallLogID)
	}
}

func TestHandleQuery_NoMatchStillRoutesDefault(t *testing.T) {
	transfers := &stubTransfers{entries: []toolcall.LogEntry{
		transferEntry("log-1", "4165550000", "Alex", toolcall.UrgencyNormal, 5*time.Second),
	}}
	sender := &stubSender{}
	m, repo := newTestMatcher(transfers, sender)

	dec := m.HandleQuery(context.Background(), Query{InboundCallID: "inb-1", CallerNumber: "9055551234"})
	if len(dec.Routing) != 1 || dec.Routing[0].Type != "team" {
		t.Fatalf("no-match must still return the default target: %+v", dec)
	}

	rec := onlyRecord(t, repo)
	if rec.Status != StatusNoMatch {
		t.Fatalf("expected no_match, got %q", rec.Status)
	}
	if sender.sentCount() != 0 {
		t.Fatal("no card on no match")
	}
}

func TestHandleQuery_DeadlineReturnsDefaultAndRecordsFailure(t *testing.T) {
	transfers := &stubTransfers{
		entries: []toolcall.LogEntry{
			transferEntry("log-1", "4168189171", "Sam", toolcall.UrgencyNormal, 5*time.Second),
		},
		delay: 300 * time.Millisecond,
	}
	repo := NewMemoryRepo()
	m := NewMatcher(transfers, repo, &stubSender{}, MatcherConfig{
		Window:        60 * time.Second,
		Deadline:      25 * time.Millisecond,
		DefaultTarget: Target{Type: "team", ID: "front-desk"},
	}, nil, nil)

	start := time.Now()
	dec := m.HandleQuery(context.Background(), Query{InboundCallID: "inb-1", CallerNumber: "4168189171"})
	elapsed := time.Since(start)

	if elapsed > 200*time.Millisecond {
		t.Fatalf("decision must not wait out the slow path, took %s", elapsed)
	}
	if len(dec.Routing) != 1 || dec.Routing[0].ID != "front-desk" {
		t.Fatalf("timeout must yield the default target: %+v", dec)
	}

	rec := onlyRecord(t, repo)
	if rec.Status != StatusFailed {
		t.Fatalf("late completion must be recorded failed, got %q", rec.Status)
	}
	if rec.ErrorMessage != "deadline exceeded" {
		t.Fatalf("unexpected error message: %q", rec.ErrorMessage)
	}
	if rec.ProcessingTimeMS <= 0 {
		t.Fatal("processing time must be recorded on timeout")
	}
}

type slowFinalizeRepo struct {
	*MemoryRepo
	delay time.Duration
}

func (r *slowFinalizeRepo) Finalize(ctx context.Context, id string, in FinalizeInput) error {
	time.Sleep(r.delay)
	return r.MemoryRepo.Finalize(ctx, id, in)
}

func TestHandleQuery_SlowAuditWriteDoesNotDelayDecision(t *testing.T) {
	entry := transferEntry("log-1", "4168189171", "Sam", toolcall.UrgencyNormal, 5*time.Second)
	entry.Parameters = map[string]any{"agent_id": "agent-42"}
	transfers := &stubTransfers{entries: []toolcall.LogEntry{entry}}

	inner := NewMemoryRepo()
	repo := &slowFinalizeRepo{MemoryRepo: inner, delay: 500 * time.Millisecond}
	m := NewMatcher(transfers, repo, &stubSender{}, MatcherConfig{
		Window:        60 * time.Second,
		Deadline:      200 * time.Millisecond,
		DefaultTarget: Target{Type: "team", ID: "front-desk"},
	}, nil, nil)

	start := time.Now()
	dec := m.HandleQuery(context.Background(), Query{InboundCallID: "inb-1", CallerNumber: "4168189171"})
	elapsed := time.Since(start)

	if elapsed > 150*time.Millisecond {
		t.Fatalf("decision must not wait on the audit write, took %s", elapsed)
	}
	if len(dec.Routing) != 1 || dec.Routing[0].ID != "agent-42" {
		t.Fatalf("in-deadline match must win despite slow persistence: %+v", dec)
	}

	rec := onlyRecord(t, inner)
	if rec.Status != StatusSuccess {
		t.Fatalf("caller saw the match, record must agree, got %q (%s)", rec.Status, rec.ErrorMessage)
	}
	if rec.MatchedToolCallLogID != "log-1" {
		t.Fatalf("expected match against log-1, got %q", rec.MatchedToolCallLogID)
	}
}

func TestHandleQuery_CardFailureDoesNotDegradeRouting(t *testing.T) {
	transfers := &stubTransfers{entries: []toolcall.LogEntry{
		transferEntry("log-1", "4168189171", "Sam", toolcall.UrgencyCritical, 5*time.Second),
	}}
	sender := &stubSender{err: errors.New("card rejected: status 502")}
	m, repo := newTestMatcher(transfers, sender)

	dec := m.HandleQuery(context.Background(), Query{InboundCallID: "inb-1", CallerNumber: "4168189171"})
	if len(dec.Routing) != 1 || dec.Routing[0].ID != "front-desk" {
		t.Fatalf("routing must survive card failure: %+v", dec)
	}

	rec := onlyRecord(t, repo)
	if rec.Status != StatusFailed {
		t.Fatalf("card failure must be audited as failed, got %q", rec.Status)
	}
	if rec.MatchedToolCallLogID != "log-1" {
		t.Fatal("the match itself should still be recorded")
	}
}

func TestHandleQuery_NoSenderConfiguredIsSkipped(t *testing.T) {
	transfers := &stubTransfers{entries: []toolcall.LogEntry{
		transferEntry("log-1", "4168189171", "Sam", toolcall.UrgencyNormal, 5*time.Second),
	}}
	m, repo := newTestMatcher(transfers, nil)

	dec := m.HandleQuery(context.Background(), Query{InboundCallID: "inb-1", CallerNumber: "4168189171"})
	if len(dec.Routing) != 1 {
		t.Fatalf("default decision required: %+v", dec)
	}

	rec := onlyRecord(t, repo)
	if rec.Status != StatusSkipped {
		t.Fatalf("expected skipped, got %q", rec.Status)
	}
}

func TestBuildCard_OmitsAbsentFields(t *testing.T) {
	full := BuildCard(transferEntry("log-1", "4168189171", "Sam", toolcall.UrgencyCritical, 0))
	if full.Title != "Incoming transfer: Sam" {
		t.Fatalf("unexpected title: %q", full.Title)
	}
	if len(full.Lines) != 3 {
		t.Fatalf("expected suffix, urgency, reason lines, got %v", full.Lines)
	}
	if full.Lines[0] != "Caller number ending 9171" {
		t.Fatalf("unexpected suffix line: %q", full.Lines[0])
	}

	bare := BuildCard(toolcall.LogEntry{ID: "log-2", ToolName: toolcall.ToolTransferCall})
	if bare.Title != "Incoming transfer" {
		t.Fatalf("unexpected bare title: %q", bare.Title)
	}
	if len(bare.Lines) != 0 {
		t.Fatalf("absent fields must be omitted, got %v", bare.Lines)
	}
	if bare.Content() != "Incoming transfer" {
		t.Fatalf("unexpected content: %q", bare.Content())
	}
}
