// Package metrics records per-query oracle usage and parser outcomes.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording oracle query metrics.
type Recorder interface {
	// ObserveRequest records one completed oracle query.
	ObserveRequest(
		model, sessionID, stage string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// ObserveParse counts one parsed reply line by stage and outcome
	// (accepted, skipped or flagged).
	ObserveParse(stage, status string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (NoopRecorder) ObserveRequest(_, _, _ string, _, _ int, _ float64, _ bool, _ string, _ time.Duration) {
}

// ObserveParse does nothing in the no-op recorder.
func (NoopRecorder) ObserveParse(_, _ string) {}

// Fanout sends every observation to each recorder in order.
type Fanout []Recorder

// ObserveRequest implements Recorder.
func (f Fanout) ObserveRequest(
	model, sessionID, stage string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	for _, r := range f {
		r.ObserveRequest(model, sessionID, stage, promptTokens, completionTokens, cost, success, errorType, duration)
	}
}

// ObserveParse implements Recorder.
func (f Fanout) ObserveParse(stage, status string) {
	for _, r := range f {
		r.ObserveParse(stage, status)
	}
}
