package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VerificationDuration tracks the latency of processing a verification event
	VerificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "contest_verification_duration_seconds",
			Help: "Duration of verification processing in seconds",
			Buckets: []float64{
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
			},
		},
		[]string{"result"}, // won, lost, replayed, ineligible, failed
	)

	// AwardsTotal counts newly decided award records
	AwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contest_awards_total",
			Help: "Number of award records created by outcome",
		},
		[]string{"outcome"},
	)

	// AllocationRetries counts retried allocation attempts after transient storage errors
	AllocationRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contest_allocation_retries_total",
			Help: "Number of allocation attempts retried after a transient failure",
		},
	)

	// SoldOutDowngrades counts winning draws converted to losses because the ledger was empty
	SoldOutDowngrades = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contest_sold_out_downgrades_total",
			Help: "Number of winning decisions downgraded to a loss by an empty ledger",
		},
	)

	// NotificationFailures counts award events that could not be published
	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contest_notification_failures_total",
			Help: "Number of award events that failed to publish",
		},
	)
)

// RecordVerificationDuration records the duration of a verification request
func RecordVerificationDuration(result string, duration float64) {
	VerificationDuration.WithLabelValues(result).Observe(duration)
}

// RecordAward counts a newly created award record
func RecordAward(outcome string) {
	AwardsTotal.WithLabelValues(outcome).Inc()
}
