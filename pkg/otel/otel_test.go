package otel

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitExportsToWriter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{ServiceVersion: "test", UseStdout: true, Writer: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(ctx, "Orchestrator.Process")
	span.End()
	require.NoError(t, shutdown(ctx))

	assert.Contains(t, buf.String(), `"Name":"Orchestrator.Process"`)
	assert.Contains(t, buf.String(), "daybook")
}
