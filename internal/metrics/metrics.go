package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{
	0.001, // 1ms
	0.005, // 5ms
	0.01,  // 10ms
	0.025, // 25ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.25,  // 250ms
	0.5,   // 500ms
	1.0,   // 1s
	2.5,   // 2.5s
	5.0,   // 5s
}

var (
	// AllocationDuration tracks the latency of a rule engine pass for one user
	AllocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_allocation_duration_seconds",
			Help:    "Duration of eligible campaign assignment passes in seconds",
			Buckets: latencyBuckets,
		},
		[]string{"status"}, // success or failed
	)

	// RuleEvaluations counts campaign evaluations by outcome
	RuleEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_rule_evaluations_total",
			Help: "Number of committed campaign rule evaluations",
		},
		[]string{"outcome"}, // eligible or ineligible
	)

	// AssignmentsCreated counts assignments created by the rule engine
	AssignmentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_assignments_created_total",
			Help: "Number of campaign assignments created by the rule engine",
		},
	)

	// TokenIssueDuration tracks the latency of redemption token requests
	TokenIssueDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_token_issue_duration_seconds",
			Help:    "Duration of redemption token requests in seconds",
			Buckets: latencyBuckets,
		},
		[]string{"result"}, // issued, reused, not_found, already_used or failed
	)

	// Redemptions counts redemption confirmations by result
	Redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_redemptions_total",
			Help: "Number of redemption confirmations by result",
		},
		[]string{"result"},
	)

	// ListingCacheLookups counts listing cache hits and misses
	ListingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_listing_cache_lookups_total",
			Help: "Number of active campaign listing cache lookups",
		},
		[]string{"result"}, // hit, miss or error
	)

	// RPCRejections counts requests refused before reaching the engine
	RPCRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_rpc_rejections_total",
			Help: "Number of RPCs rejected by interceptors",
		},
		[]string{"procedure", "reason"}, // unauthenticated or rate_limited
	)
)

// RecordAllocationDuration records the duration of an allocation pass
func RecordAllocationDuration(status string, duration float64) {
	AllocationDuration.WithLabelValues(status).Observe(duration)
}

// RecordRuleEvaluation counts one committed evaluation
func RecordRuleEvaluation(eligible bool) {
	outcome := "ineligible"
	if eligible {
		outcome = "eligible"
	}
	RuleEvaluations.WithLabelValues(outcome).Inc()
}

// RecordTokenIssueDuration records the duration of a token request
func RecordTokenIssueDuration(result string, duration float64) {
	TokenIssueDuration.WithLabelValues(result).Observe(duration)
}

// RecordRedemption counts one redemption confirmation
func RecordRedemption(result string) {
	Redemptions.WithLabelValues(result).Inc()
}

// RecordCacheLookup counts one listing cache lookup
func RecordCacheLookup(result string) {
	ListingCacheLookups.WithLabelValues(result).Inc()
}

// RecordRejection counts one RPC refused by an interceptor
func RecordRejection(procedure, reason string) {
	RPCRejections.WithLabelValues(procedure, reason).Inc()
}
