package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wilhg/daybook/pkg/adapters/llm"
	"github.com/wilhg/daybook/pkg/adapters/llm/fake"
	"github.com/wilhg/daybook/pkg/conversation"
)

func TestTracing_TurnSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	m := fake.New(
		fake.Turn{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "echo", Arguments: `{"text":"x"}`}}},
		fake.Turn{Text: "done"},
	)
	est := conversation.RuneEstimator
	collect(newOrchestrator(m, echoRegistry(t), conversation.New(), WithTokenEstimator(est)).Process(context.Background(), "hi"))

	spans := rec.Ended()
	byName := map[string][]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = append(byName[s.Name()], s)
	}
	require.Len(t, byName["Orchestrator.Process"], 1)
	require.Len(t, byName["Orchestrator.Decide"], 2)
	require.Len(t, byName["Registry.Dispatch"], 1)
	require.Len(t, byName["Orchestrator.Answer"], 1)

	root := byName["Orchestrator.Process"][0]
	for _, name := range []string{"Orchestrator.Decide", "Registry.Dispatch", "Orchestrator.Answer"} {
		for _, s := range byName[name] {
			assert.Equal(t, root.SpanContext().TraceID(), s.SpanContext().TraceID(), name)
		}
	}
	assert.Contains(t, root.Attributes(), attribute.Int("turn.iterations", 2))
	assert.Contains(t, byName["Registry.Dispatch"][0].Attributes(), attribute.Bool("tool.success", true))

	hasEstimate := false
	for _, kv := range byName["Orchestrator.Decide"][0].Attributes() {
		hasEstimate = hasEstimate || (kv.Key == "prompt.tokens_estimate" && kv.Value.AsInt64() > 0)
	}
	assert.True(t, hasEstimate)
}
