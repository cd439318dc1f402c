package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestStartSpanAndEnd(t *testing.T) {
	rec := useRecorder(t)

	_, span := StartSpan(context.Background(), "session.goto", AttrURL.String("https://example.com"))
	End(span, nil)

	_, failed := StartSpan(context.Background(), "session.close")
	End(failed, errors.New("context already closed"))

	spans := rec.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "session.goto", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), AttrURL.String("https://example.com"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "context already closed", spans[1].Status().Description)
}

func TestNewTracerProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	tp, err := NewTracerProvider("webapp-test", &buf)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "session.initialize")
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "session.initialize")
	assert.Contains(t, buf.String(), "webapp-test")
}
