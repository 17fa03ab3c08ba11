package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{}, nil)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupEnabledLazyExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	// the gRPC exporter connects lazily, so an unreachable endpoint still sets up
	shutdown, err := Setup(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "mca-test",
		OTLPEndpoint: "http://127.0.0.1:1/",
		OTLPInsecure: true,
		SampleRatio:  5,
	}, nil)
	require.NoError(t, err)
	_, span := Tracer().Start(context.Background(), "probe")
	span.End()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestSanitizeEndpoint(t *testing.T) {
	assert.Equal(t, "collector:4317", sanitizeEndpoint("http://collector:4317/"))
	assert.Equal(t, "collector:4317", sanitizeEndpoint("collector:4317/"))
	assert.Equal(t, "", sanitizeEndpoint("  "))
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "1", "YES", "on"} {
		assert.True(t, parseBool(v), v)
	}
	assert.False(t, parseBool("nope"))
}

func TestInjectHeaders(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	ctx, span := tp.Tracer("t").Start(context.Background(), "call")
	defer span.End()

	h := http.Header{}
	InjectHeaders(ctx, h)
	assert.Contains(t, h.Get("traceparent"), span.SpanContext().TraceID().String())

	InjectHeaders(ctx, nil)
}
