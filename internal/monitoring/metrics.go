package monitoring

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the transfer core.
//
// Operational telemetry is the only place some failures surface (audit
// writes are swallowed on the live-call path), so these counters are not
// optional decoration.
type Metrics struct {
	// AuditWriteFailures counts tool-call log writes that were swallowed
	// instead of propagated into a live call.
	AuditWriteFailures prometheus.Counter

	// ToolCallOutcomes counts terminal tool-call outcomes by tool and status.
	ToolCallOutcomes *prometheus.CounterVec

	// CallbackDeliveries counts callback sweep outcomes
	// (posted, retry_scheduled, failed_permanent).
	CallbackDeliveries *prometheus.CounterVec

	// InsightQueries counts pre-routing queries by terminal status.
	InsightQueries *prometheus.CounterVec

	// InsightQueryDuration observes end-to-end pre-routing handling time.
	InsightQueryDuration prometheus.Histogram

	// TransferClaimRejects counts duplicate transfer attempts stopped by
	// the idempotency claim.
	TransferClaimRejects prometheus.Counter
}

var metrics *Metrics

// Init initializes all Prometheus metrics. Safe to call more than once.
func Init() *Metrics {
	if metrics != nil {
		return metrics
	}

	metrics = &Metrics{
		AuditWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Tool-call log writes that failed and were swallowed",
		}),
		ToolCallOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_call_outcomes_total",
			Help: "Terminal tool-call outcomes",
		}, []string{"tool", "status"}),
		CallbackDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callback_deliveries_total",
			Help: "Callback request delivery outcomes",
		}, []string{"outcome"}),
		InsightQueries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_queries_total",
			Help: "Pre-routing insight queries by terminal status",
		}, []string{"status"}),
		InsightQueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "insight_query_duration_seconds",
			Help:    "End-to-end pre-routing query handling time",
			Buckets: []float64{.05, .1, .25, .5, 1, 1.5, 2, 2.5, 3, 5},
		}),
		TransferClaimRejects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transfer_claim_rejects_total",
			Help: "Duplicate transfer attempts rejected by the idempotency claim",
		}),
	}
	return metrics
}

// Handler returns the /metrics endpoint handler.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
