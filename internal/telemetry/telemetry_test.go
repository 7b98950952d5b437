package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{ServiceName: "kiroku", Version: "test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent", "propagator installed even when export is off")
}

func TestMeterAvailableWhenDisabled(t *testing.T) {
	counter, err := Meter("kiroku/test").Int64Counter("kiroku.test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
}

func TestSampler(t *testing.T) {
	all := sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()
	assert.Equal(t, all, sampler(0).Description())
	assert.Equal(t, all, sampler(1).Description())
	assert.Equal(t, all, sampler(-0.5).Description())

	assert.Equal(t, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description(), sampler(0.25).Description())
}
