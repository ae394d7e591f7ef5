package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcexplore/internal/mocks"
	"kcexplore/pkg/config"
	"kcexplore/pkg/oracle/llm"
	"kcexplore/pkg/oracle/llmerrors"
	"kcexplore/pkg/oracle/metrics"
	"kcexplore/pkg/tokens"
	"kcexplore/pkg/transcript"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []transcript.Entry
	failOn  transcript.Kind
}

func (r *recordingSink) Append(_ context.Context, e *transcript.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != "" && e.Kind == r.failOn {
		return errors.New("disk full")
	}
	r.entries = append(r.entries, *e)
	return nil
}

func (r *recordingSink) kinds() []transcript.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]transcript.Kind, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Kind
	}
	return out
}

var testPrices = config.Pricing{PromptPerToken: 0.008 / 1000, CompletionPerToken: 0.016 / 1000} //nolint:gochecknoglobals

func newTestSession(client llm.LLMClient, sink Sink) *Session {
	return NewSession("the System Call score", client, Env{
		Sink:      sink,
		Prices:    testPrices,
		SessionID: "test-session",
	})
}

func TestCostAccumulation(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondInOrder(
		llm.CompletionResponse{Content: "[A increase]", Usage: llm.Usage{PromptTokens: 100, CompletionTokens: 50}},
		llm.CompletionResponse{Content: "[B decrease]", Usage: llm.Usage{PromptTokens: 200, CompletionTokens: 10}},
	)
	s := newTestSession(client, nil)

	_, err := s.SelectBooleanOptions(context.Background(), "", "A\n")
	require.NoError(t, err)
	first := s.Cost()
	_, err = s.SelectBooleanOptions(context.Background(), "", "B\n")
	require.NoError(t, err)

	want := testPrices.Cost(100, 50) + testPrices.Cost(200, 10)
	assert.InDelta(t, want, s.Cost(), 1e-12)
	assert.InDelta(t, testPrices.Cost(100, 50), first, 1e-12)
	assert.InDelta(t, 0.00336, s.Cost(), 1e-12)

	reversed := mocks.NewMockLLMClient()
	reversed.RespondInOrder(
		llm.CompletionResponse{Content: "[B decrease]", Usage: llm.Usage{PromptTokens: 200, CompletionTokens: 10}},
		llm.CompletionResponse{Content: "[A increase]", Usage: llm.Usage{PromptTokens: 100, CompletionTokens: 50}},
	)
	r := newTestSession(reversed, nil)
	_, _ = r.SelectBooleanOptions(context.Background(), "", "B\n")
	_, _ = r.SelectBooleanOptions(context.Background(), "", "A\n")
	assert.InDelta(t, s.Cost(), r.Cost(), 1e-12)
}

func TestForksShareCost(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWithUsage("[1 drivers]", llm.Usage{PromptTokens: 100, CompletionTokens: 50})
	parent := newTestSession(client, nil)

	const forks = 8
	var wg sync.WaitGroup
	for i := 0; i < forks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f := parent.Fork()
			_, err := f.SelectDirectories(context.Background(), "", "1 drivers\n")
			assert.NoError(t, err)
			assert.Len(t, f.History(), 1)
		}()
	}
	wg.Wait()

	assert.InDelta(t, forks*testPrices.Cost(100, 50), parent.Cost(), 1e-12)
	assert.Empty(t, parent.History())
	assert.Equal(t, "test-session", parent.Fork().ID())
}

func TestQueryLogsBeforeParsing(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWithUsage("complete garbage with no brackets", llm.Usage{PromptTokens: 10, CompletionTokens: 5})
	sink := &recordingSink{}
	s := newTestSession(client, sink)

	decision, err := s.SelectBooleanOptions(context.Background(), "knowledge", "CONFIG_A\n")
	require.NoError(t, err)
	assert.Empty(t, decision)

	require.Equal(t, []transcript.Kind{transcript.KindRequest, transcript.KindResponse}, sink.kinds())
	req, resp := sink.entries[0], sink.entries[1]
	assert.Equal(t, "boolean", req.Stage)
	assert.Contains(t, req.Content, "CONFIG_A")
	assert.Contains(t, req.Content, "the System Call score")
	assert.Equal(t, "complete garbage with no brackets", resp.Content)
	assert.Equal(t, 10, resp.PromptTokens)
	assert.InDelta(t, testPrices.Cost(10, 5), resp.Cost, 1e-12)
	assert.Equal(t, "test-session", resp.SessionID)
	assert.Equal(t, "mock-model", resp.Model)
}

func TestTransportErrorPropagates(t *testing.T) {
	client := mocks.NewMockLLMClient()
	cause := llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")
	client.FailCompleteWith(cause)
	sink := &recordingSink{}
	summary := metrics.NewSummary()
	s := NewSession("t", client, Env{Sink: sink, Recorder: summary, Prices: testPrices})

	_, err := s.RecommendValues(context.Background(), "", "x (1)")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, s.Cost())
	assert.Equal(t, []transcript.Kind{transcript.KindRequest, transcript.KindError}, sink.kinds())

	history := s.History()
	require.Len(t, history, 1)
	assert.ErrorIs(t, history[0].Err, cause)

	stages := summary.Stages()
	require.Len(t, stages, 1)
	assert.EqualValues(t, 1, stages[0].Failures)
}

func TestSinkFailureIsFatal(t *testing.T) {
	client := mocks.NewMockLLMClient()
	s := newTestSession(client, &recordingSink{failOn: transcript.KindRequest})

	_, err := s.Disambiguate(context.Background(), "", "[A]\n[B]")
	require.Error(t, err)
	assert.Empty(t, client.Calls(), "nothing is sent before the request is logged")

	client = mocks.NewMockLLMClient()
	client.RespondWithUsage("[A]", llm.Usage{PromptTokens: 1000, CompletionTokens: 1000})
	s = newTestSession(client, &recordingSink{failOn: transcript.KindResponse})
	_, err = s.Disambiguate(context.Background(), "", "[A]\n[B]")
	require.Error(t, err)
	assert.Len(t, client.Calls(), 1)
	assert.InDelta(t, 0.024, s.Cost(), 1e-12, "a billed reply is counted even when logging it fails")
	require.Len(t, s.History(), 1)
	assert.InDelta(t, 0.024, s.History()[0].Cost, 1e-12)
}

func TestStageOperations(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondByPrompt(
		mocks.PromptRule{Marker: "DIRECTORIES =", Answer: "```\n[1] drivers\n[2] fs\n```"},
		mocks.PromptRule{Marker: "mutually exclusive", Answer: "[SLUB]\n"},
		mocks.PromptRule{Marker: "value options information", Answer: "Warn for stack frames larger than (FRAME_WARN)  (512)"},
		mocks.PromptRule{Marker: "CONFIGS =", Answer: "[SMP increase]\n[DEBUG_KERNEL decrease]"},
	)
	summary := metrics.NewSummary()
	s := NewSession("t", client, Env{Recorder: summary})
	ctx := context.Background()

	dirs, err := s.SelectDirectories(ctx, "", "1 drivers\n2 fs\n")
	require.NoError(t, err)
	require.Len(t, dirs, 2)
	assert.Equal(t, "fs", dirs[1].Label)

	bools, err := s.SelectBooleanOptions(ctx, "", "SMP\nDEBUG_KERNEL\n")
	require.NoError(t, err)
	assert.Equal(t, BooleanDecision{"SMP": VerdictFavor, "DEBUG_KERNEL": VerdictDisfavor}, bools)

	choice, err := s.Disambiguate(ctx, "", "SLAB\nSLUB\n")
	require.NoError(t, err)
	assert.Equal(t, "SLUB", choice)

	values, err := s.RecommendValues(ctx, "FRAME_WARN: help", "Warn for stack frames larger than (FRAME_WARN)  (1024)\n")
	require.NoError(t, err)
	assert.Equal(t, []ValuePair{{Label: "Warn for stack frames larger than (FRAME_WARN)", Value: "512"}}, values)

	history := s.History()
	require.Len(t, history, 4)
	for i, stage := range Stages() {
		assert.Equal(t, stage, history[i].Stage)
	}

	for _, m := range summary.Stages() {
		assert.EqualValues(t, 1, m.Requests, m.Stage)
		assert.Positive(t, m.Lines["accepted"], m.Stage)
	}
}

func TestRequestParameters(t *testing.T) {
	client := mocks.NewMockLLMClient()
	s := NewSession("t", client, Env{MaxTokens: 2048, Temperature: 0.3})
	_, err := s.Disambiguate(context.Background(), "", "A")
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 2048, calls[0].MaxTokens)
	assert.InDelta(t, 0.3, calls[0].Temperature, 1e-6)
	require.Len(t, calls[0].Messages, 1)
	assert.Equal(t, llm.RoleUser, calls[0].Messages[0].Role)
}

func TestUsageEstimatedWhenMissing(t *testing.T) {
	counter, err := tokens.NewCounter("gpt-4o")
	require.NoError(t, err)
	client := mocks.NewMockLLMClient()
	client.RespondWith("[A increase]")
	s := NewSession("t", client, Env{Prices: testPrices, Counter: counter})

	_, err = s.SelectBooleanOptions(context.Background(), "", "A")
	require.NoError(t, err)
	h := s.History()
	require.Len(t, h, 1)
	assert.Positive(t, h[0].Usage.PromptTokens)
	assert.Positive(t, h[0].Usage.CompletionTokens)
	assert.Positive(t, s.Cost())
}

func TestCachedRepliesCostNothing(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.OnComplete(func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: "[A increase]", Cached: true}, nil
	})
	counter, err := tokens.NewCounter("gpt-4o")
	require.NoError(t, err)
	s := NewSession("t", client, Env{Prices: testPrices, Counter: counter})

	_, err = s.SelectBooleanOptions(context.Background(), "", "A")
	require.NoError(t, err)
	assert.Zero(t, s.Cost())
	assert.True(t, s.History()[0].Cached)
}

func TestCostMeterIgnoresBadValues(t *testing.T) {
	var m CostMeter
	m.Add(1)
	m.Add(-5)
	m.Add(0)
	assert.InDelta(t, 1.0, m.Total(), 1e-12)
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := MultiSink{a, nil, b}
	require.NoError(t, sink.Append(context.Background(), &transcript.Entry{Kind: transcript.KindRequest}))
	assert.Len(t, a.entries, 1)
	assert.Len(t, b.entries, 1)

	failing := MultiSink{&recordingSink{failOn: transcript.KindRequest}, b}
	assert.Error(t, failing.Append(context.Background(), &transcript.Entry{Kind: transcript.KindRequest}))
	assert.Len(t, b.entries, 1)
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestBudgetStopsFurtherQueries(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWithUsage("[A increase]", llm.Usage{PromptTokens: 1000, CompletionTokens: 1000})
	s := NewSession("target", client, Env{Prices: testPrices, BudgetUSD: 0.01})

	_, err := s.SelectBooleanOptions(context.Background(), "", "A\n")
	require.NoError(t, err)
	assert.InDelta(t, 0.024, s.Cost(), 1e-12)

	_, err = s.Fork().SelectBooleanOptions(context.Background(), "", "A\n")
	require.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Len(t, client.Calls(), 1)
}
