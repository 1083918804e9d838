// Package otelcap implements the guest telemetry bridge of spec.md §4.7:
// guest-produced spans and metrics are forwarded into the host's OTLP
// pipeline, stitched under the currently active host span.
//
// Grounded on original_source/crates/wasi-otel/src/host/tracing_impl.rs's
// export(): read the current host span's trace id and span id, rewrite
// every guest span onto it, group by instrumentation scope, emit
// ResourceSpans with the process resource prepended, and forward over the
// OTLP gRPC channel. Metrics follow the same pattern via the OTLP metrics
// endpoint, per spec.md §4.7's closing sentence.
package otelcap

import (
	"time"
)

// InstrumentationScope names the guest library/version a span or metric
// came from, the grouping key for ResourceSpans/ResourceMetrics.
type InstrumentationScope struct {
	Name    string
	Version string
}

// SpanContext is the wire projection of spec.md §3's span context: trace
// id, span id, trace flags, and whether the span is remote.
type SpanContext struct {
	TraceID    string
	SpanID     string
	TraceFlags byte
	IsRemote   bool
}

// Event is a point-in-time annotation attached to a span.
type Event struct {
	Name       string
	Time       time.Time
	Attributes map[string]string
}

// SpanData is the guest-produced span record crossing the export(spans)
// host function, per spec.md §4.7.
type SpanData struct {
	SpanContext          SpanContext
	ParentSpanID         string
	InstrumentationScope InstrumentationScope
	Name                 string
	Kind                 int32
	StartTime            time.Time
	EndTime              time.Time
	Attributes           map[string]string
	Events               []Event
	StatusCode           int32
	StatusMessage        string
}

// MetricPoint is one guest-produced metric data point crossing the
// export(metrics) host function.
type MetricPoint struct {
	InstrumentationScope InstrumentationScope
	Name                 string
	Description          string
	Unit                 string
	Value                float64
	Attributes           map[string]string
	Timestamp            time.Time
}

// HostSpan is the subset of the currently active host span the bridge
// needs to stitch guest spans under it, per spec.md §4.7 step 1-2.
// Filled in from the active OTel span context by currentHostSpan in host.go.
type HostSpan struct {
	TraceID string
	SpanID  string
}

// groupSpansByScope implements spec.md §4.7 step 3: "Groups spans by
// their instrumentation scope."
func groupSpansByScope(spans []SpanData) map[InstrumentationScope][]SpanData {
	grouped := make(map[InstrumentationScope][]SpanData)
	for _, s := range spans {
		grouped[s.InstrumentationScope] = append(grouped[s.InstrumentationScope], s)
	}
	return grouped
}

func groupMetricsByScope(points []MetricPoint) map[InstrumentationScope][]MetricPoint {
	grouped := make(map[InstrumentationScope][]MetricPoint)
	for _, p := range points {
		grouped[p.InstrumentationScope] = append(grouped[p.InstrumentationScope], p)
	}
	return grouped
}

// rewriteParent implements spec.md §4.7 steps 1-2: every guest span's
// trace_id becomes the host span's trace id, its parent_span_id becomes
// the host span's span id, and it is marked remote.
func rewriteParent(spans []SpanData, host HostSpan) []SpanData {
	rewritten := make([]SpanData, len(spans))
	for i, s := range spans {
		s.SpanContext.TraceID = host.TraceID
		s.SpanContext.IsRemote = true
		s.ParentSpanID = host.SpanID
		rewritten[i] = s
	}
	return rewritten
}
