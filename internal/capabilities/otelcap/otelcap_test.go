package otelcap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteParentStitchesOntoHostSpan(t *testing.T) {
	spans := []SpanData{
		{SpanContext: SpanContext{TraceID: "guest-trace", SpanID: "guest-span"}, ParentSpanID: "guest-parent"},
	}
	host := HostSpan{TraceID: "host-trace", SpanID: "host-span"}

	rewritten := rewriteParent(spans, host)
	require.Len(t, rewritten, 1)
	assert.Equal(t, "host-trace", rewritten[0].SpanContext.TraceID)
	assert.Equal(t, "host-span", rewritten[0].ParentSpanID)
	assert.True(t, rewritten[0].SpanContext.IsRemote)

	// guest span id is preserved, only trace id and parent are rewritten.
	assert.Equal(t, "guest-span", rewritten[0].SpanContext.SpanID)
	assert.Equal(t, "guest-trace", spans[0].SpanContext.TraceID, "input slice must not be mutated")
}

func TestGroupSpansByScope(t *testing.T) {
	scopeA := InstrumentationScope{Name: "a", Version: "1.0"}
	scopeB := InstrumentationScope{Name: "b", Version: "2.0"}
	spans := []SpanData{
		{InstrumentationScope: scopeA, Name: "one"},
		{InstrumentationScope: scopeB, Name: "two"},
		{InstrumentationScope: scopeA, Name: "three"},
	}

	grouped := groupSpansByScope(spans)
	require.Len(t, grouped, 2)
	assert.Len(t, grouped[scopeA], 2)
	assert.Len(t, grouped[scopeB], 1)
	assert.Equal(t, "two", grouped[scopeB][0].Name)
}

func TestGroupMetricsByScope(t *testing.T) {
	scope := InstrumentationScope{Name: "guest", Version: "0.1"}
	points := []MetricPoint{
		{InstrumentationScope: scope, Name: "requests", Value: 1, Timestamp: time.Now()},
		{InstrumentationScope: scope, Name: "errors", Value: 0, Timestamp: time.Now()},
	}

	grouped := groupMetricsByScope(points)
	require.Len(t, grouped, 1)
	assert.Len(t, grouped[scope], 2)
}

func TestExportSpansAndMetricsNoopOnNilBridge(t *testing.T) {
	var b *Bridge
	assert.NoError(t, b.ExportSpans(nil, nil, HostSpan{}))
	assert.NoError(t, b.ExportMetrics(nil, nil))
}
