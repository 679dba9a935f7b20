package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hookrunner"

var (
	once sync.Once

	webhookExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_execution_total",
			Help:      "Webhook script executions handed to the runner.",
		},
		[]string{"account_id"},
	)

	webhookSuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_success_total",
			Help:      "Webhook script executions that succeeded.",
		},
	)

	webhookFailure = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_failure_total",
			Help:      "Webhook script executions that failed at any stage.",
		},
	)

	webhookRuntime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_track_runtime_seconds",
			Help:      "Total run time of webhook script executions.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900},
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_notifications_total",
			Help:      "Outbound webhook notifications by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(webhookExecutions, webhookSuccess, webhookFailure, webhookRuntime, notifications, httpRequests)
	})
}

// Recorder is the metrics surface used by the execution pipeline.
type Recorder struct{}

func NewRecorder() Recorder {
	return Recorder{}
}

func (Recorder) WebhookStarted(accountID string) {
	webhookExecutions.WithLabelValues(accountID).Inc()
}

func (Recorder) WebhookSucceeded() {
	webhookSuccess.Inc()
}

func (Recorder) WebhookFailed() {
	webhookFailure.Inc()
}

func (Recorder) WebhookRuntime(d time.Duration) {
	if d < 0 {
		d = 0
	}
	webhookRuntime.Observe(d.Seconds())
}

func (Recorder) Notification(success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	notifications.WithLabelValues(result).Inc()
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
