package toolcall

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"callbridge/internal/monitoring"

	"github.com/google/uuid"
)

// Service is the reliability log facade.
//
// IMPORTANT: Record, MarkSuccess and MarkFailure never return errors.
// A logging failure must not block a live call; it is swallowed here and
// surfaced only through slog and the audit-write-failure counter.

type Service struct {
	repo    Repository
	log     *slog.Logger
	metrics *monitoring.Metrics

	defaultMaxRetries int
	clock             func() time.Time
}

func NewService(repo Repository, log *slog.Logger, metrics *monitoring.Metrics, defaultMaxRetries int) *Service {
	if log == nil {
		log = slog.Default()
	}
	if defaultMaxRetries <= 0 {
		defaultMaxRetries = 3
	}
	return &Service{
		repo:              repo,
		log:               log,
		metrics:           metrics,
		defaultMaxRetries: defaultMaxRetries,
		clock:             time.Now,
	}
}

// RecordInput captures one AI-triggered action at invocation time.
type RecordInput struct {
	ToolName   string
	Parameters map[string]any

	AICallID        string
	TelephonyCallID string
	CallLogID       string

	CallbackNumber string
	CallerName     string
	Urgency        Urgency
}

// Record writes the pending audit row and returns its id. It always
// succeeds from the caller's perspective.
func (s *Service) Record(ctx context.Context, in RecordInput) string {
	now := s.clock().UTC()
	e := LogEntry{
		ID:              uuid.NewString(),
		ToolName:        in.ToolName,
		Parameters:      in.Parameters,
		AICallID:        in.AICallID,
		TelephonyCallID: in.TelephonyCallID,
		CallLogID:       in.CallLogID,
		CallbackNumber:  in.CallbackNumber,
		CallerName:      in.CallerName,
		Urgency:         in.Urgency,
		Status:          StatusPending,
		MaxRetries:      s.defaultMaxRetries,
		CreatedAt:       now,
	}
	if e.Urgency == "" {
		e.Urgency = UrgencyNormal
	}

	if err := s.repo.Insert(ctx, e); err != nil {
		s.swallow("tool call log write failed", err, "tool", in.ToolName, "log_id", e.ID)
	}
	return e.ID
}

// MarkSuccess sets the terminal success status. Idempotent: a second call
// on a success row is a no-op. Unknown ids are logged, never raised.
func (s *Service) MarkSuccess(ctx context.Context, id, result string) {
	updated, err := s.repo.SetOutcome(ctx, id, StatusSuccess, result, "", s.clock().UTC())
	if err != nil {
		s.swallow("tool call success write failed", err, "log_id", id)
		return
	}
	if !updated {
		s.log.Debug("tool call success mark skipped", "log_id", id)
		return
	}
	s.countOutcome(ctx, id, StatusSuccess)
}

// MarkFailure records a failure outcome. Unknown ids are logged, never raised.
func (s *Service) MarkFailure(ctx context.Context, id, errMsg string) {
	updated, err := s.repo.SetOutcome(ctx, id, StatusFailed, "", errMsg, s.clock().UTC())
	if err != nil {
		s.swallow("tool call failure write failed", err, "log_id", id)
		return
	}
	if !updated {
		s.log.Warn("tool call failure mark skipped", "log_id", id)
		return
	}
	s.countOutcome(ctx, id, StatusFailed)
}

// RetryState is the post-increment view of an entry's retry budget.
type RetryState struct {
	RetryCount int
	MaxRetries int
	Exhausted  bool
}

// IncrementRetry atomically bumps the retry counter and moves the entry to
// retrying. When the budget is already spent the entry is marked
// permanently failed and Exhausted is set.
func (s *Service) IncrementRetry(ctx context.Context, id string) (RetryState, error) {
	retryCount, maxRetries, err := s.repo.IncrementRetry(ctx, id)
	if errors.Is(err, ErrRetriesExhausted) {
		if _, outErr := s.repo.SetOutcome(ctx, id, StatusFailed, "", "retries exhausted", s.clock().UTC()); outErr != nil {
			s.swallow("tool call exhaustion write failed", outErr, "log_id", id)
		}
		e, getErr := s.repo.Get(ctx, id)
		if getErr != nil {
			return RetryState{Exhausted: true}, nil
		}
		return RetryState{RetryCount: e.RetryCount, MaxRetries: e.MaxRetries, Exhausted: true}, nil
	}
	if err != nil {
		return RetryState{}, err
	}
	return RetryState{RetryCount: retryCount, MaxRetries: maxRetries, Exhausted: retryCount >= maxRetries}, nil
}

func (s *Service) Get(ctx context.Context, id string) (LogEntry, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListFailedForRetry(ctx context.Context, limit int) ([]LogEntry, error) {
	return s.repo.ListFailedForRetry(ctx, limit)
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]LogEntry, error) {
	return s.repo.ListPending(ctx, limit)
}

// RecentTransfers returns transfer entries created within the window that
// are still matchable (pending or success), most recent first.
func (s *Service) RecentTransfers(ctx context.Context, window time.Duration) ([]LogEntry, error) {
	since := s.clock().UTC().Add(-window)
	return s.repo.RecentByTool(ctx, ToolTransferCall, since, []Status{StatusPending, StatusSuccess})
}

func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return s.repo.CountByStatus(ctx)
}

func (s *Service) swallow(msg string, err error, attrs ...any) {
	s.log.Error(msg, append([]any{"err", err}, attrs...)...)
	if s.metrics != nil {
		s.metrics.AuditWriteFailures.Inc()
	}
}

func (s *Service) countOutcome(ctx context.Context, id string, status Status) {
	if s.metrics == nil {
		return
	}
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return
	}
	s.metrics.ToolCallOutcomes.WithLabelValues(e.ToolName, string(status)).Inc()
}
