package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "catvsdog_submissions_total",
	Help: "Form submissions by outcome",
}, []string{"outcome"})

var StaleResponses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "catvsdog_stale_responses_total",
	Help: "Classifier responses discarded because a newer submission was made",
})

var PredictDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "catvsdog_predict_duration_seconds",
	Help:    "Time spent waiting for the classifier",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
})

var ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "catvsdog_active_sessions",
	Help: "Form sessions currently held in memory",
})

// NewTimer starts timing a classifier request
func NewTimer() *prometheus.Timer {
	return prometheus.NewTimer(PredictDuration)
}
