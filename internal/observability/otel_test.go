package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/agenthands/keepsake/internal/config"
)

func TestDisabledTracingIsNoop(t *testing.T) {
	shutdown := InitTracing(context.Background(), config.TelemetryConfig{}, "test", nil)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.False(t, isSDK)
}

func TestEnabledTracingInstallsProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := config.TelemetryConfig{Enabled: true, SampleRatio: 1, OTLPEndpoint: "localhost:4318", OTLPInsecure: true}
	shutdown := InitTracing(context.Background(), cfg, "test", nil)

	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, isSDK)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
