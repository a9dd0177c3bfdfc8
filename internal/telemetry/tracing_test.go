package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	tp, err := InitTracer("nordagri-test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "offline.Flush")
	span.End()

	require.NoError(t, Shutdown(context.Background(), tp))
	assert.Contains(t, buf.String(), "offline.Flush")
	assert.Contains(t, buf.String(), "nordagri-test")
}

func TestShutdownNil(t *testing.T) {
	assert.NoError(t, Shutdown(context.Background(), nil))
}
