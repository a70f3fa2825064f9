package util

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitTracerLogsThroughZap(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := logger
	logger = zap.New(core)
	t.Cleanup(func() { logger = prev })

	tp, err := InitTracer("storefront-test", "test", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	entries := logs.FilterMessage("Tracer initialized").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "storefront-test", entries[0].ContextMap()["service_name"])
	assert.Equal(t, "", entries[0].ContextMap()["endpoint"])

	_, span := StartSpan(context.Background(), "op")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
}
