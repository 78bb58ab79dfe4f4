package reporting

import (
	"context"
	"testing"
	"time"

	"callbridge/internal/callback"
	"callbridge/internal/insight"
	"callbridge/internal/toolcall"
)

func TestSnapshot_AggregatesAllLogs(t *testing.T) {
	tcRepo := toolcall.NewMemoryRepo()
	cbRepo := callback.NewMemoryRepo()
	inRepo := insight.NewMemoryRepo()

	now := time.Unix(1700000000, 0).UTC()
	tcRepo.Insert(context.Background(), toolcall.LogEntry{ID: "t1", ToolName: toolcall.ToolTransferCall, Status: toolcall.StatusSuccess, CreatedAt: now})
	tcRepo.Insert(context.Background(), toolcall.LogEntry{ID: "t2", ToolName: toolcall.ToolEndCall, Status: toolcall.StatusFailed, CreatedAt: now})
	cbRepo.Insert(context.Background(), callback.Request{ID: "c1", CallbackNumber: "+15550001111", Status: callback.StatusPending, MaxRetries: 3, CreatedAt: now})
	inRepo.Insert(context.Background(), insight.Record{ID: "i1", Status: insight.StatusNoMatch, CreatedAt: now})

	svc := NewService(tcRepo, cbRepo, inRepo)
	svc.clock = func() time.Time { return now }

	stats, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if stats.GeneratedAt != now {
		t.Fatalf("unexpected timestamp: %v", stats.GeneratedAt)
	}
	if stats.ToolCalls[toolcall.StatusSuccess] != 1 || stats.ToolCalls[toolcall.StatusFailed] != 1 {
		t.Fatalf("unexpected tool call counts: %v", stats.ToolCalls)
	}
	if stats.Callbacks[callback.StatusPending] != 1 {
		t.Fatalf("unexpected callback counts: %v", stats.Callbacks)
	}
	if stats.Insights[insight.StatusNoMatch] != 1 {
		t.Fatalf("unexpected insight counts: %v", stats.Insights)
	}
}
