package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder using Prometheus collectors.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	parsedLines     *prometheus.CounterVec
}

// NewPrometheusRecorder registers the oracle collectors on reg.
// A nil reg uses the default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kcexplore_oracle_requests_total",
				Help: "Oracle queries by model, stage and status",
			},
			[]string{"model", "session_id", "stage", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kcexplore_oracle_tokens_total",
				Help: "Tokens billed for oracle queries",
			},
			[]string{"model", "session_id", "stage", "type"},
		),
		costsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kcexplore_oracle_cost_usd_total",
				Help: "Oracle spend in USD",
			},
			[]string{"model", "session_id", "stage"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kcexplore_oracle_request_duration_seconds",
				Help:    "Duration of oracle queries in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "stage"},
		),
		parsedLines: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kcexplore_parsed_lines_total",
				Help: "Reply lines seen by the response parsers, by outcome",
			},
			[]string{"stage", "status"},
		),
	}
}

// ObserveRequest records metrics for a completed oracle query.
func (p *PrometheusRecorder) ObserveRequest(
	model, sessionID, stage string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}
	p.requestsTotal.WithLabelValues(model, sessionID, stage, status, errorType).Inc()

	// A failed query bills nothing.
	if success {
		p.tokensTotal.WithLabelValues(model, sessionID, stage, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, sessionID, stage, "completion").Add(float64(completionTokens))
		p.costsTotal.WithLabelValues(model, sessionID, stage).Add(cost)
	}

	p.requestDuration.WithLabelValues(model, stage).Observe(duration.Seconds())
}

// ObserveParse counts one parsed line.
func (p *PrometheusRecorder) ObserveParse(stage, status string) {
	p.parsedLines.WithLabelValues(stage, status).Inc()
}
