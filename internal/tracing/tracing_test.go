package tracing

import (
	"context"
	"testing"

	"hookrunner/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetupDisabled(t *testing.T) {
	tp, shutdown, err := Setup(context.Background(), config.TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupEnabled(t *testing.T) {
	ctx := context.Background()
	tp, shutdown, err := Setup(ctx, config.TracingConfig{
		Enabled:     true,
		Endpoint:    "http://127.0.0.1:4318",
		Insecure:    true,
		ServiceName: "hookrunner-test",
	})
	require.NoError(t, err)
	_, ok := tp.(*sdktrace.TracerProvider)
	assert.True(t, ok)

	_, span := tp.Tracer("test").Start(ctx, "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	// Nothing listens on the endpoint; shutdown must still return.
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_ = shutdown(cctx)
}
