package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmitDuration tracks the latency of submission handling
	SubmitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "challenge_submit_duration_seconds",
			Help: "Duration of submission requests in seconds",
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
			},
		},
		[]string{"result"}, // accepted, rejected, rate_limited, error
	)

	// GenerationDuration tracks generation-routine execution time
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "challenge_generation_duration_seconds",
			Help: "Duration of input generation in seconds",
			Buckets: []float64{
				0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
		[]string{"result"}, // success or failure
	)

	// InputCacheRequests counts input requests by cache outcome
	InputCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_input_cache_requests_total",
			Help: "Input requests by cache outcome",
		},
		[]string{"outcome"}, // hit or miss
	)

	// RateLimitRejections counts submissions rejected by the limiter
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "challenge_rate_limit_rejections_total",
			Help: "Submission attempts rejected by the sliding-window limiter",
		},
	)
)

// RecordSubmitDuration records the duration of a submission request
func RecordSubmitDuration(result string, duration float64) {
	SubmitDuration.WithLabelValues(result).Observe(duration)
}

// RecordGenerationDuration records one generation-routine execution
func RecordGenerationDuration(result string, duration float64) {
	GenerationDuration.WithLabelValues(result).Observe(duration)
}
