package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"kcexplore/pkg/logx"
	"kcexplore/pkg/oracle/llm"
	"kcexplore/pkg/oracle/llmerrors"
)

type stubClient struct{ err error }

func (s stubClient) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	if s.err != nil {
		return llm.CompletionResponse{}, s.err
	}
	return llm.CompletionResponse{Content: "[arch]", Usage: llm.Usage{PromptTokens: 40, CompletionTokens: 3}}, nil
}

func (s stubClient) GetModelName() string { return "gpt-4o-mini" }

func recorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr, tp
}

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestSpanOnSuccess(t *testing.T) {
	sr, tp := recorder(t)
	client := Middleware(tp.Tracer("test"))(stubClient{})

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, SpanName, spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "gpt-4o-mini", attrs["oracle.model"].AsString())
	assert.Equal(t, int64(40), attrs["oracle.prompt_tokens"].AsInt64())
	assert.False(t, attrs["oracle.cached"].AsBool())
}

func TestSpanOnError(t *testing.T) {
	sr, tp := recorder(t)
	client := Middleware(tp.Tracer("test"))(stubClient{err: llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow down")})

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "rate_limit", attrMap(spans[0].Attributes())["oracle.error_type"].AsString())
	assert.NotEmpty(t, spans[0].Events())
}

func TestNilTracerUsesGlobal(t *testing.T) {
	client := Middleware(nil)(stubClient{err: errors.New("x")})
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	assert.Error(t, err)
}

func TestLogProviderWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	logx.SetOutput(&buf)
	defer logx.SetOutput(nil)

	tp := NewLogProvider(logx.NewLogger("trace"))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	client := Middleware(tp.Tracer("test"))(stubClient{})
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), SpanName)
	assert.Contains(t, buf.String(), "oracle.prompt_tokens=40")
}
