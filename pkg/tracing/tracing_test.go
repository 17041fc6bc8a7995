package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(config.TracingConfig{}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitExportsSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var buf bytes.Buffer
	shutdown, err := initWithWriter(config.TracingConfig{Enabled: true, ServiceName: "voter-api-test"}, "test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("tracing-test").Start(context.Background(), "ReferenceService.Submit")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "ReferenceService.Submit")
	assert.Contains(t, buf.String(), "voter-api-test")
}
