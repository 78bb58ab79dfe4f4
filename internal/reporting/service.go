package reporting

import (
	"context"
	"fmt"
	"time"

	"callbridge/internal/callback"
	"callbridge/internal/insight"
	"callbridge/internal/toolcall"
)

// Stats is the delivery health snapshot served by the ops API.
type Stats struct {
	GeneratedAt time.Time `json:"generated_at"`

	ToolCalls map[toolcall.Status]int `json:"tool_calls"`
	Callbacks map[callback.Status]int `json:"callbacks"`
	Insights  map[insight.Status]int  `json:"insight_queries"`
}

type toolCallCounter interface {
	CountByStatus(ctx context.Context) (map[toolcall.Status]int, error)
}

type callbackCounter interface {
	CountByStatus(ctx context.Context) (map[callback.Status]int, error)
}

type insightCounter interface {
	CountByStatus(ctx context.Context) (map[insight.Status]int, error)
}

// Service aggregates per-status counts across the three delivery logs.

type Service struct {
	toolCalls toolCallCounter
	callbacks callbackCounter
	insights  insightCounter
	clock     func() time.Time
}

func NewService(toolCalls toolCallCounter, callbacks callbackCounter, insights insightCounter) *Service {
	return &Service{
		toolCalls: toolCalls,
		callbacks: callbacks,
		insights:  insights,
		clock:     time.Now,
	}
}

func (s *Service) Snapshot(ctx context.Context) (Stats, error) {
	out := Stats{GeneratedAt: s.clock().UTC()}

	tc, err := s.toolCalls.CountByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("tool call counts: %w", err)
	}
	out.ToolCalls = tc

	cb, err := s.callbacks.CountByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("callback counts: %w", err)
	}
	out.Callbacks = cb

	iq, err := s.insights.CountByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("insight counts: %w", err)
	}
	out.Insights = iq

	return out, nil
}
