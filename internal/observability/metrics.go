package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	progressAppliedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "challenge_progress",
		Subsystem: "engine",
		Name:      "updates_applied_total",
		Help:      "Number of per-challenge progress increments committed to the store.",
	})
	metersAccruedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "challenge_progress",
		Subsystem: "engine",
		Name:      "meters_accrued_total",
		Help:      "Total workout meters credited to challenges.",
	})
	challengesCompletedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "challenge_progress",
		Subsystem: "engine",
		Name:      "challenges_completed_total",
		Help:      "Number of challenges transitioned from current to completed.",
	})
	lastProgressGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "challenge_progress",
		Subsystem: "engine",
		Name:      "last_update_timestamp_seconds",
		Help:      "Unix timestamp of the most recent committed progress increment.",
	})
	noticesDeliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "challenge_progress",
		Subsystem: "notifier",
		Name:      "notices_delivered_total",
		Help:      "Number of completion notices acknowledged by the webhook endpoint.",
	})
	noticesFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "challenge_progress",
		Subsystem: "notifier",
		Name:      "notices_failed_total",
		Help:      "Number of completion notices dropped after exhausting retries.",
	})
)

func init() {
	prometheus.MustRegister(
		progressAppliedCounter,
		metersAccruedCounter,
		challengesCompletedCounter,
		lastProgressGauge,
		noticesDeliveredCounter,
		noticesFailedCounter,
	)
}

// RecordProgressApplied updates the increment counters and watermark gauge.
func RecordProgressApplied(meters float64, ts time.Time) {
	progressAppliedCounter.Inc()
	if meters > 0 {
		metersAccruedCounter.Add(meters)
	}
	if !ts.IsZero() {
		lastProgressGauge.Set(float64(ts.Unix()))
	}
}

// RecordChallengeCompleted counts a current-to-completed transition.
func RecordChallengeCompleted() {
	challengesCompletedCounter.Inc()
}

// RecordNoticeDelivered counts a webhook delivery acknowledged with 2xx.
func RecordNoticeDelivered() {
	noticesDeliveredCounter.Inc()
}

// RecordNoticeFailed counts a webhook delivery abandoned after retries.
func RecordNoticeFailed() {
	noticesFailedCounter.Inc()
}
