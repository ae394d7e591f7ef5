package metrics

import (
	"sort"
	"sync"
	"time"
)

// StageMetrics aggregates the queries issued for one stage.
//
//nolint:govet
type StageMetrics struct {
	Stage            string           `json:"stage"`
	Requests         int64            `json:"requests"`
	Failures         int64            `json:"failures"`
	PromptTokens     int64            `json:"prompt_tokens"`
	CompletionTokens int64            `json:"completion_tokens"`
	Cost             float64          `json:"cost_usd"`
	Elapsed          time.Duration    `json:"elapsed"`
	Lines            map[string]int64 `json:"lines"`
}

// Summary aggregates observations in memory for the end-of-run report.
type Summary struct {
	stages map[string]*StageMetrics
	mu     sync.Mutex
}

// NewSummary returns an empty in-memory recorder.
func NewSummary() *Summary {
	return &Summary{stages: make(map[string]*StageMetrics)}
}

func (s *Summary) stage(name string) *StageMetrics {
	m, ok := s.stages[name]
	if !ok {
		m = &StageMetrics{Stage: name, Lines: make(map[string]int64)}
		s.stages[name] = m
	}
	return m
}

// ObserveRequest implements Recorder.
func (s *Summary) ObserveRequest(
	_, _, stage string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	_ string,
	duration time.Duration,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.stage(stage)
	m.Requests++
	m.Elapsed += duration
	if !success {
		m.Failures++
		return
	}
	m.PromptTokens += int64(promptTokens)
	m.CompletionTokens += int64(completionTokens)
	m.Cost += cost
}

// ObserveParse implements Recorder.
func (s *Summary) ObserveParse(stage, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage(stage).Lines[status]++
}

// Stages returns a copy of every stage's totals, sorted by stage name.
func (s *Summary) Stages() []StageMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StageMetrics, 0, len(s.stages))
	for _, m := range s.stages {
		cp := *m
		cp.Lines = make(map[string]int64, len(m.Lines))
		for k, v := range m.Lines {
			cp.Lines[k] = v
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}
