package callback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"callbridge/internal/monitoring"

	"github.com/google/uuid"
)

// Processor drains deliverable callback requests on a recurring sweep.
//
// Each sweep selects due rows (pending, or failed with an elapsed
// next_retry_at), posts them downstream, and applies the retry policy:
// the per-row max_retries field is the retry budget, the fixed ladder is
// the schedule. A short pause between deliveries bounds downstream rate.

type Processor struct {
	repo      Repository
	deliverer DeliveryClient
	log       *slog.Logger
	metrics   *monitoring.Metrics

	interval   time.Duration
	batchSize  int
	pause      time.Duration
	maxRetries int
	clock      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type ProcessorConfig struct {
	SweepInterval time.Duration // default 30s
	BatchSize     int           // default 20
	DeliveryPause time.Duration // default 500ms
	MaxRetries    int           // default 3; per-request override wins
}

func NewProcessor(repo Repository, deliverer DeliveryClient, log *slog.Logger, metrics *monitoring.Metrics, cfg ProcessorConfig) *Processor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.DeliveryPause <= 0 {
		cfg.DeliveryPause = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Processor{
		repo:       repo,
		deliverer:  deliverer,
		log:        log,
		metrics:    metrics,
		interval:   cfg.SweepInterval,
		batchSize:  cfg.BatchSize,
		pause:      cfg.DeliveryPause,
		maxRetries: cfg.MaxRetries,
		clock:      time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Enqueue stores a new pending request for a later sweep.
func (p *Processor) Enqueue(ctx context.Context, req Request) (Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.MaxRetries <= 0 {
		req.MaxRetries = p.maxRetries
	}
	req.Status = StatusPending
	req.CreatedAt = p.clock().UTC()
	if err := p.repo.Insert(ctx, req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Requeue moves a permanently failed request back to pending with a fresh
// retry budget.
func (p *Processor) Requeue(ctx context.Context, id string) error {
	return p.repo.Requeue(ctx, id)
}

// Start launches the recurring sweep. Returns immediately.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				if _, err := p.RunOnce(ctx); err != nil {
					p.log.Error("callback sweep failed", "err", err)
				}
			}
		}
	}()
	p.log.Info("callback processor started", "interval", p.interval, "batch_size", p.batchSize)
}

// Stop halts the sweep loop and waits for the in-flight pass to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}

// SweepResult summarizes one pass.
type SweepResult struct {
	Selected    int
	Posted      int
	Rescheduled int
	Exhausted   int
}

// RunOnce executes a single sweep pass.
func (p *Processor) RunOnce(ctx context.Context) (SweepResult, error) {
	now := p.clock().UTC()
	due, err := p.repo.Due(ctx, now, p.batchSize)
	if err != nil {
		return SweepResult{}, err
	}

	res := SweepResult{Selected: len(due)}
	for i, req := range due {
		if i > 0 {
			// Bound downstream request rate within a sweep.
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(p.pause):
			}
		}
		p.deliverOne(ctx, req, &res)
	}
	return res, nil
}

func (p *Processor) deliverOne(ctx context.Context, req Request, res *SweepResult) {
	responsePayload, err := p.deliverer.Deliver(ctx, req)
	now := p.clock().UTC()

	if err == nil {
		if markErr := p.repo.MarkPosted(ctx, req.ID, responsePayload, now); markErr != nil {
			p.log.Error("callback posted but state write failed", "request_id", req.ID, "err", markErr)
		}
		p.count("posted")
		res.Posted++
		return
	}

	retryCount := req.RetryCount + 1
	if retryCount >= req.MaxRetries {
		// Permanent failure: next_retry_at frozen at nil.
		if markErr := p.repo.MarkFailed(ctx, req.ID, err.Error(), retryCount, nil); markErr != nil {
			p.log.Error("callback failure write failed", "request_id", req.ID, "err", markErr)
		}
		p.log.Warn("callback permanently failed", "request_id", req.ID, "retries", retryCount, "err", err)
		p.count("failed_permanent")
		res.Exhausted++
		return
	}

	next := now.Add(BackoffDelay(retryCount))
	if markErr := p.repo.MarkFailed(ctx, req.ID, err.Error(), retryCount, &next); markErr != nil {
		p.log.Error("callback failure write failed", "request_id", req.ID, "err", markErr)
	}
	p.log.Info("callback delivery rescheduled", "request_id", req.ID, "retry_count", retryCount, "next_retry_at", next)
	p.count("retry_scheduled")
	res.Rescheduled++
}

func (p *Processor) count(outcome string) {
	if p.metrics != nil {
		p.metrics.CallbackDeliveries.WithLabelValues(outcome).Inc()
	}
}
