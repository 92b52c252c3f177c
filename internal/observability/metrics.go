package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the registration backend.
type Metrics struct {
	// ChatTurns counts dispatcher turns by agent variant and outcome.
	// Labels: agent, status (ok|error|busy)
	ChatTurns *prometheus.CounterVec

	// ModelRequestDuration measures model round-trip latency in seconds.
	// Labels: provider, model
	ModelRequestDuration *prometheus.HistogramVec

	// ModelRequests counts model round-trips.
	// Labels: provider, status (success|error)
	ModelRequests *prometheus.CounterVec

	// ToolExecutions counts tool invocations.
	// Labels: tool, status (ok|error)
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// WebhookEvents counts webhook events by resource.action and outcome.
	// Labels: event, status (processed|ignored|failed)
	WebhookEvents *prometheus.CounterVec

	// PhotoJobs counts photo pipeline outcomes.
	// Labels: status (succeeded|failed|rejected)
	PhotoJobs *prometheus.CounterVec

	// ActiveSessions gauges the current in-memory session count.
	ActiveSessions prometheus.Gauge
}

// NewMetrics registers and returns the metric set on the given registerer.
// Passing nil uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ChatTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regdesk_chat_turns_total",
			Help: "Dispatcher turns by agent variant and outcome.",
		}, []string{"agent", "status"}),

		ModelRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regdesk_model_request_duration_seconds",
			Help:    "Model round-trip latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),

		ModelRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regdesk_model_requests_total",
			Help: "Model round-trips by provider and status.",
		}, []string{"provider", "status"}),

		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regdesk_tool_executions_total",
			Help: "Tool invocations by tool and status.",
		}, []string{"tool", "status"}),

		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regdesk_tool_duration_seconds",
			Help:    "Tool execution time.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),

		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regdesk_webhook_events_total",
			Help: "Payment-provider webhook events by type and outcome.",
		}, []string{"event", "status"}),

		PhotoJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regdesk_photo_jobs_total",
			Help: "Photo pipeline job outcomes.",
		}, []string{"status"}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "regdesk_active_sessions",
			Help: "Current in-memory session count.",
		}),
	}
}
