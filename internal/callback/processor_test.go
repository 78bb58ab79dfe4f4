package callback

import (
	"context"
	"errors"
	"testing"
	"time"

	"callbridge/internal/toolcall"
)

type stubDeliverer struct {
	err      error
	response string
	calls    []string
}

func (s *stubDeliverer) Deliver(ctx context.Context, req Request) (string, error) {
	s.calls = append(s.calls, req.ID)
	return s.response, s.err
}

func newTestProcessor(repo Repository, d DeliveryClient) (*Processor, *time.Time) {
	p := NewProcessor(repo, d, nil, nil, ProcessorConfig{DeliveryPause: time.Millisecond})
	now := time.Unix(1700000000, 0).UTC()
	p.clock = func() time.Time { return now }
	return p, &now
}

func TestBackoffDelay_MonotonicAndCapped(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 6; attempt++ {
		d := BackoffDelay(attempt)
		if d < prev {
			t.Fatalf("delay must be non-decreasing, attempt %d: %v < %v", attempt, d, prev)
		}
		prev = d
	}
	if BackoffDelay(1) != 5*time.Minute || BackoffDelay(2) != 15*time.Minute || BackoffDelay(3) != 60*time.Minute {
		t.Fatalf("ladder mismatch: %v %v %v", BackoffDelay(1), BackoffDelay(2), BackoffDelay(3))
	}
	if BackoffDelay(10) != 60*time.Minute {
		t.Fatalf("delay must cap at last rung, got %v", BackoffDelay(10))
	}
}

func TestRunOnce_PostsPendingRequest(t *testing.T) {
	repo := NewMemoryRepo()
	d := &stubDeliverer{response: `{"ok":true}`}
	p, _ := newTestProcessor(repo, d)

	req, err := p.Enqueue(context.Background(), Request{CallbackNumber: "4168189171", CallerName: "Sam"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	res, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Posted != 1 {
		t.Fatalf("expected 1 posted, got %+v", res)
	}

	got, _ := repo.Get(context.Background(), req.ID)
	if got.Status != StatusPosted {
		t.Fatalf("expected posted, got %q", got.Status)
	}
	if got.ResponsePayload != `{"ok":true}` {
		t.Fatalf("expected response payload stored, got %q", got.ResponsePayload)
	}
	if got.PostedAt == nil {
		t.Fatalf("expected posted_at set")
	}
}

func TestRunOnce_FailureSchedulesLadderRetry(t *testing.T) {
	repo := NewMemoryRepo()
	d := &stubDeliverer{err: errors.New("503 from downstream")}
	p, now := newTestProcessor(repo, d)

	req, _ := p.Enqueue(context.Background(), Request{CallbackNumber: "4168189171"})

	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	got, _ := repo.Get(context.Background(), req.ID)
	if got.Status != StatusFailed || got.RetryCount != 1 {
		t.Fatalf("expected failed with retry_count 1, got %+v", got)
	}
	if got.NextRetryAt == nil || !got.NextRetryAt.Equal(now.Add(5*time.Minute)) {
		t.Fatalf("expected next retry in 5m, got %v", got.NextRetryAt)
	}
}

func TestRunOnce_FailedRowNotDueUntilNextRetryAt(t *testing.T) {
	repo := NewMemoryRepo()
	d := &stubDeliverer{err: errors.New("boom")}
	p, _ := newTestProcessor(repo, d)

	p.Enqueue(context.Background(), Request{CallbackNumber: "4168189171"})
	p.RunOnce(context.Background())

	// Second sweep at the same instant must select nothing.
	res, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Selected != 0 {
		t.Fatalf("expected no due rows before next_retry_at, got %+v", res)
	}
}

func TestRetryExhaustion_FreezesRequest(t *testing.T) {
	repo := NewMemoryRepo()
	d := &stubDeliverer{err: errors.New("boom")}
	p, _ := newTestProcessor(repo, d)

	req, _ := p.Enqueue(context.Background(), Request{CallbackNumber: "4168189171", MaxRetries: 3})

	for i := 0; i < 3; i++ {
		// Fast-forward past any scheduled retry.
		next := time.Unix(1700000000, 0).UTC().Add(time.Duration(i) * 2 * time.Hour)
		p.clock = func() time.Time { return next }
		if _, err := p.RunOnce(context.Background()); err != nil {
			t.Fatalf("sweep %d: unexpected err: %v", i, err)
		}
	}

	got, _ := repo.Get(context.Background(), req.ID)
	if !got.PermanentlyFailed() {
		t.Fatalf("expected permanent failure after 3 attempts, got %+v", got)
	}
	if got.NextRetryAt != nil {
		t.Fatalf("next_retry_at must stop advancing, got %v", got.NextRetryAt)
	}

	// Further sweeps must not touch it.
	calls := len(d.calls)
	p.RunOnce(context.Background())
	if len(d.calls) != calls {
		t.Fatalf("permanently failed request must not be redelivered")
	}
}

func TestRunOnce_UrgencyDrainsFirst(t *testing.T) {
	repo := NewMemoryRepo()
	d := &stubDeliverer{response: "ok"}
	p, now := newTestProcessor(repo, d)

	repo.Insert(context.Background(), Request{ID: "normal", CallbackNumber: "+1", Urgency: toolcall.UrgencyNormal, Status: StatusPending, MaxRetries: 3, CreatedAt: now.Add(-2 * time.Minute)})
	repo.Insert(context.Background(), Request{ID: "critical", CallbackNumber: "+2", Urgency: toolcall.UrgencyCritical, Status: StatusPending, MaxRetries: 3, CreatedAt: now.Add(-1 * time.Minute)})

	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(d.calls) != 2 || d.calls[0] != "critical" {
		t.Fatalf("expected critical to drain first, got %v", d.calls)
	}
}
