// Package oracle queries a language model for configuration recommendations.
// A Session renders one stage prompt, sends it as a single-turn query,
// records the exchange and its cost, and parses the reply into a typed
// decision.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kcexplore/pkg/config"
	"kcexplore/pkg/logx"
	"kcexplore/pkg/oracle/llm"
	"kcexplore/pkg/oracle/llmerrors"
	"kcexplore/pkg/oracle/metrics"
	"kcexplore/pkg/tokens"
	"kcexplore/pkg/transcript"
)

// Sink durably records exchanges. transcript.Writer and
// persistence.ExchangeStore both satisfy it.
type Sink interface {
	Append(ctx context.Context, e *transcript.Entry) error
}

// MultiSink appends to every sink in order and stops at the first error.
type MultiSink []Sink

// Append implements Sink.
func (m MultiSink) Append(ctx context.Context, e *transcript.Entry) error {
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

type discardSink struct{}

func (discardSink) Append(context.Context, *transcript.Entry) error { return nil }

// Env carries everything a session needs besides the client. Zero fields get
// usable defaults in NewSession.
//
//nolint:govet // grouped by concern
type Env struct {
	Logger    *logx.Logger
	Sink      Sink
	Prices    config.Pricing
	Recorder  metrics.Recorder
	Counter   *tokens.Counter // estimates usage when the provider reports none
	SessionID string

	MaxTokens   int
	Temperature float32
	BudgetUSD   float64 // queries stop once the shared cost reaches it; 0 is unlimited
}

// ErrBudgetExceeded is returned by a query issued after the spending cap is
// reached. Queries already in flight may overshoot the cap.
var ErrBudgetExceeded = errors.New("oracle budget exceeded")

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// CostMeter accumulates spend. It only grows and is safe for concurrent use.
type CostMeter struct {
	mu    sync.Mutex
	total float64
}

// Add adds cost. Negative and non-finite values are ignored.
func (m *CostMeter) Add(cost float64) {
	if cost <= 0 || math.IsInf(cost, 0) || math.IsNaN(cost) {
		return
	}
	m.mu.Lock()
	m.total += cost
	m.mu.Unlock()
}

// Total returns the cost accumulated so far.
func (m *CostMeter) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Exchange is one query and its raw reply.
type Exchange struct {
	Stage    Stage
	Prompt   string
	Response string
	Usage    llm.Usage
	Cost     float64
	Cached   bool
	Err      error
	Duration time.Duration
}

// Session is a conversation with the oracle about one target.
// A Session serves one caller at a time; use Fork for concurrent batches.
type Session struct {
	target string
	client llm.LLMClient
	env    Env
	cost   *CostMeter

	mu      sync.Mutex
	history []Exchange
}

// NewSession creates a session for target.
func NewSession(target string, client llm.LLMClient, env Env) *Session {
	if env.Logger == nil {
		env.Logger = logx.NewLogger("oracle")
	}
	if env.Sink == nil {
		env.Sink = discardSink{}
	}
	if env.Recorder == nil {
		env.Recorder = metrics.Nop()
	}
	if env.SessionID == "" {
		env.SessionID = NewSessionID()
	}
	if env.MaxTokens <= 0 {
		env.MaxTokens = llm.DefaultMaxTokens
	}
	return &Session{
		target: target,
		client: client,
		env:    env,
		cost:   &CostMeter{},
	}
}

// Fork returns a sub-session with its own history that shares this session's
// cost meter, sink and identity.
func (s *Session) Fork() *Session {
	return &Session{
		target: s.target,
		client: s.client,
		env:    s.env,
		cost:   s.cost,
	}
}

// Target returns the optimization goal.
func (s *Session) Target() string { return s.target }

// ID returns the session identifier.
func (s *Session) ID() string { return s.env.SessionID }

// Cost returns the cumulative cost of every query issued by this session and
// its forks.
func (s *Session) Cost() float64 { return s.cost.Total() }

// History returns a copy of this session's exchanges in issue order.
func (s *Session) History() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Exchange(nil), s.history...)
}

// SelectDirectories asks which listed directories concern the target.
func (s *Session) SelectDirectories(ctx context.Context, knowledge, content string) ([]DirectoryPick, error) {
	answer, err := s.query(ctx, StageDirectory, knowledge, content)
	if err != nil {
		return nil, err
	}
	picks, results := ParseDirectories(answer)
	s.report(StageDirectory, results)
	return picks, nil
}

// SelectBooleanOptions asks for an increase/decrease verdict on each option.
func (s *Session) SelectBooleanOptions(ctx context.Context, knowledge, content string) (BooleanDecision, error) {
	answer, err := s.query(ctx, StageBoolean, knowledge, content)
	if err != nil {
		return nil, err
	}
	decision, results := ParseBooleans(answer)
	s.report(StageBoolean, results)
	return decision, nil
}

// Disambiguate asks for the single best option of a mutually exclusive group.
// An empty string means the reply named nothing.
func (s *Session) Disambiguate(ctx context.Context, knowledge, content string) (string, error) {
	answer, err := s.query(ctx, StageChoice, knowledge, content)
	if err != nil {
		return "", err
	}
	choice, result := ParseChoice(answer)
	s.report(StageChoice, []LineResult{result})
	return choice, nil
}

// RecommendValues asks for a value for each listed numeric option.
func (s *Session) RecommendValues(ctx context.Context, knowledge, content string) ([]ValuePair, error) {
	answer, err := s.query(ctx, StageValue, knowledge, content)
	if err != nil {
		return nil, err
	}
	pairs, results := ParseValues(answer)
	s.report(StageValue, results)
	return pairs, nil
}

// query renders and sends one stage prompt. Both halves of the exchange reach
// the sink before the caller parses anything.
func (s *Session) query(ctx context.Context, stage Stage, knowledge, content string) (string, error) {
	if budget := s.env.BudgetUSD; budget > 0 {
		if spent := s.cost.Total(); spent >= budget {
			return "", fmt.Errorf("%s query: %w ($%.4f of $%.4f)", stage, ErrBudgetExceeded, spent, budget)
		}
	}
	prompt, err := Render(stage, PromptInput{Knowledge: knowledge, Target: s.target, Content: content})
	if err != nil {
		return "", err
	}
	model := s.client.GetModelName()

	s.env.Logger.Info("📤 %s query (%d chars)", stage, len(prompt))
	logx.Debug(ctx, "oracle", "%s prompt:\n%s", stage, prompt)
	if err := s.env.Sink.Append(ctx, &transcript.Entry{
		SessionID: s.env.SessionID,
		Kind:      transcript.KindRequest,
		Stage:     string(stage),
		Model:     model,
		Content:   prompt,
	}); err != nil {
		return "", fmt.Errorf("failed to log %s request: %w", stage, err)
	}

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage(prompt)})
	req.MaxTokens = s.env.MaxTokens
	req.Temperature = s.env.Temperature

	start := time.Now()
	resp, callErr := s.client.Complete(ctx, req)
	elapsed := time.Since(start)

	if callErr != nil {
		s.env.Recorder.ObserveRequest(model, s.env.SessionID, string(stage), 0, 0, 0, false, errorType(callErr), elapsed)
		s.env.Logger.Error("❌ %s query failed after %v: %v", stage, elapsed.Round(time.Millisecond), callErr)
		if err := s.env.Sink.Append(ctx, &transcript.Entry{
			SessionID: s.env.SessionID,
			Kind:      transcript.KindError,
			Stage:     string(stage),
			Model:     model,
			Content:   callErr.Error(),
		}); err != nil {
			s.env.Logger.Warn("failed to log %s error: %v", stage, err)
		}
		s.record(Exchange{Stage: stage, Prompt: prompt, Err: callErr, Duration: elapsed})
		return "", fmt.Errorf("%s query: %w", stage, callErr)
	}

	usage := resp.Usage
	if usage.Total() == 0 && !resp.Cached && s.env.Counter != nil {
		usage = llm.Usage{
			PromptTokens:     s.env.Counter.Count(prompt),
			CompletionTokens: s.env.Counter.Count(resp.Content),
		}
		logx.Debug(ctx, "oracle", "%s usage not reported, estimated %d+%d tokens", stage, usage.PromptTokens, usage.CompletionTokens)
	}
	var cost float64
	if !resp.Cached {
		cost = s.env.Prices.Cost(usage.PromptTokens, usage.CompletionTokens)
	}

	// The provider has billed the call, so account for it even if logging fails.
	s.cost.Add(cost)
	s.env.Recorder.ObserveRequest(model, s.env.SessionID, string(stage), usage.PromptTokens, usage.CompletionTokens, cost, true, "", elapsed)
	s.record(Exchange{
		Stage:    stage,
		Prompt:   prompt,
		Response: resp.Content,
		Usage:    usage,
		Cost:     cost,
		Cached:   resp.Cached,
		Duration: elapsed,
	})

	if err := s.env.Sink.Append(ctx, &transcript.Entry{
		SessionID:        s.env.SessionID,
		Kind:             transcript.KindResponse,
		Stage:            string(stage),
		Model:            model,
		Content:          resp.Content,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		Cost:             cost,
		Cached:           resp.Cached,
	}); err != nil {
		return "", fmt.Errorf("failed to log %s response: %w", stage, err)
	}

	s.env.Logger.Info("📥 %s reply in %v: %d+%d tokens, $%.4f (total $%.4f)",
		stage, elapsed.Round(time.Millisecond), usage.PromptTokens, usage.CompletionTokens, cost, s.cost.Total())
	return resp.Content, nil
}

func (s *Session) record(x Exchange) {
	s.mu.Lock()
	s.history = append(s.history, x)
	s.mu.Unlock()
}

// report counts parse outcomes and surfaces every line that was not accepted.
func (s *Session) report(stage Stage, results []LineResult) {
	for _, r := range results {
		s.env.Recorder.ObserveParse(string(stage), r.Status.String())
		switch r.Status {
		case LineFlagged:
			s.env.Logger.Warn("%s reply line %d %s: %q", stage, r.Line, r.Reason, strings.TrimSpace(r.Raw))
		case LineSkipped:
			s.env.Logger.Debug("%s reply line %d skipped (%s): %q", stage, r.Line, r.Reason, strings.TrimSpace(r.Raw))
		}
	}
}

func errorType(err error) string {
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "deadline"
	}
	return llmerrors.TypeOf(err).String()
}
