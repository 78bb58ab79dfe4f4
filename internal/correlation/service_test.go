package correlation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(repo Repository) *Service {
	s := NewService(repo, nil, 5*time.Minute)
	s.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return s
}

const telID = "CA0123456789abcdef0123456789abcdef"

func TestCreate_ThenLookupBothDirections(t *testing.T) {
	svc := newTestService(NewMemoryRepo())

	rec, err := svc.Create(context.Background(), "ai-1", telID, "4168189171", "+15551230000")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rec.CallerNumber != "+14168189171" {
		t.Fatalf("caller number must be stored normalized, got %q", rec.CallerNumber)
	}

	byAI, err := svc.LookupByAICallID(context.Background(), "ai-1")
	if err != nil || byAI.TelephonyCallID != telID {
		t.Fatalf("lookup by ai id failed: %+v, %v", byAI, err)
	}
	byTel, err := svc.LookupByTelephonyID(context.Background(), telID)
	if err != nil || byTel.AICallID != "ai-1" {
		t.Fatalf("lookup by telephony id failed: %+v, %v", byTel, err)
	}
}

func TestCreate_DuplicateEitherIDRejected(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	if _, err := svc.Create(context.Background(), "ai-1", telID, "4168189171", "+15551230000"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if _, err := svc.Create(context.Background(), "ai-1", "CAffffffffffffffffffffffffffffffff", "+1", "+2"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused ai id, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "ai-2", telID, "+1", "+2"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused telephony id, got %v", err)
	}
}

func TestResolve_PrimaryIDWins(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	svc.Create(context.Background(), "ai-1", telID, "4168189171", "+15551230000")

	res, err := svc.Resolve(context.Background(), ResolveHints{AICallID: "ai-1", CallbackNumber: "4168189171"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Degraded || res.Via != "ai_call_id" {
		t.Fatalf("expected full-confidence ai_call_id resolution, got %+v", res)
	}
}

func TestResolve_RejectsTemplatePlaceholders(t *testing.T) {
	svc := newTestService(NewMemoryRepo())

	_, err := svc.Resolve(context.Background(), ResolveHints{AICallID: "{{call_id}}", TelephonyCallID: "{{provider_id}}"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("placeholders must not resolve, got %v", err)
	}
}

func TestResolve_TelephonyShapedIDUsedDirectly(t *testing.T) {
	svc := newTestService(NewMemoryRepo())

	res, err := svc.Resolve(context.Background(), ResolveHints{TelephonyCallID: telID})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.Degraded || res.Via != "telephony_id_shape" {
		t.Fatalf("expected degraded shape-based resolution, got %+v", res)
	}
	if res.Record.TelephonyCallID != telID {
		t.Fatalf("expected the id to be carried through, got %q", res.Record.TelephonyCallID)
	}
}

func TestResolve_CallerNumberFallbackWithinWindow(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)
	now := time.Unix(1700000000, 0).UTC()

	repo.Insert(context.Background(), Record{ID: "old", AICallID: "ai-old", TelephonyCallID: "CA" + repeatHex("0"), CallerNumber: "+14168189171", CreatedAt: now.Add(-10 * time.Minute)})
	repo.Insert(context.Background(), Record{ID: "recent", AICallID: "ai-recent", TelephonyCallID: "CA" + repeatHex("1"), CallerNumber: "+14168189171", CreatedAt: now.Add(-2 * time.Minute)})

	res, err := svc.Resolve(context.Background(), ResolveHints{CallbackNumber: "(416) 818-9171"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.Degraded || res.Via != "caller_number" {
		t.Fatalf("expected degraded number resolution, got %+v", res)
	}
	if res.Record.ID != "recent" {
		t.Fatalf("expected the most recent in-window record, got %q", res.Record.ID)
	}
}

func TestResolve_CallerNumberOutsideWindowMisses(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)
	now := time.Unix(1700000000, 0).UTC()

	repo.Insert(context.Background(), Record{ID: "old", AICallID: "ai-old", TelephonyCallID: "CA" + repeatHex("2"), CallerNumber: "+14168189171", CreatedAt: now.Add(-6 * time.Minute)})

	if _, err := svc.Resolve(context.Background(), ResolveHints{CallbackNumber: "4168189171"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected miss outside recency window, got %v", err)
	}
}

func repeatHex(c string) string {
	out := ""
	for i := 0; i < 32; i++ {
		out += c
	}
	return out
}
