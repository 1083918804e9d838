package otelcap

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	colmetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	metricpb "go.opentelemetry.io/proto/otlp/metrics/v1"

	"go.opentelemetry.io/otel/sdk/resource"
)

// Bridge forwards guest-produced spans and metrics into the host's OTLP
// gRPC pipeline, per spec.md §4.7. Exporter errors are logged by the
// caller and dropped — telemetry never fails a user request.
type Bridge struct {
	traceClient  coltracepb.TraceServiceClient
	metricClient colmetricpb.MetricsServiceClient
	resource     *resource.Resource
	conn         *grpc.ClientConn
}

// NewBridge dials endpoint once at startup and reuses the connection for
// every export call, the same shared-backend-connection shape every
// other capability backend follows.
func NewBridge(endpoint string, res *resource.Resource) (*Bridge, error) {
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("otelcap: dialing %q: %w", endpoint, err)
	}
	return &Bridge{
		traceClient:  coltracepb.NewTraceServiceClient(conn),
		metricClient: colmetricpb.NewMetricsServiceClient(conn),
		resource:     res,
		conn:         conn,
	}, nil
}

// Close releases the underlying gRPC connection.
func (b *Bridge) Close() error { return b.conn.Close() }

// ExportSpans implements spec.md §4.7's export(spans): rewrite each guest
// span's trace id/parent span id onto the current host span, group by
// instrumentation scope, emit ResourceSpans with the process resource
// prepended, and forward over gRPC.
func (b *Bridge) ExportSpans(ctx context.Context, spans []SpanData, host HostSpan) error {
	if b == nil {
		return nil
	}
	rewritten := rewriteParent(spans, host)
	req := &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{spanResourceSpans(rewritten, b.resource)},
	}
	_, err := b.traceClient.Export(ctx, req)
	return err
}

// ExportMetrics implements the metrics half of spec.md §4.7's closing
// sentence: "Metrics follow the same pattern via the OTLP metrics
// endpoint."
func (b *Bridge) ExportMetrics(ctx context.Context, points []MetricPoint) error {
	if b == nil {
		return nil
	}
	req := &colmetricpb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricpb.ResourceMetrics{metricResourceMetrics(points, b.resource)},
	}
	_, err := b.metricClient.Export(ctx, req)
	return err
}

func spanResourceSpans(spans []SpanData, res *resource.Resource) *tracepb.ResourceSpans {
	grouped := groupSpansByScope(spans)
	scopeSpans := make([]*tracepb.ScopeSpans, 0, len(grouped))
	for scope, group := range grouped {
		pbSpans := make([]*tracepb.Span, 0, len(group))
		for _, s := range group {
			pbSpans = append(pbSpans, spanToPB(s))
		}
		scopeSpans = append(scopeSpans, &tracepb.ScopeSpans{
			Scope: &commonpb.InstrumentationScope{Name: scope.Name, Version: scope.Version},
			Spans: pbSpans,
		})
	}
	return &tracepb.ResourceSpans{
		Resource:   resourceToPB(res),
		ScopeSpans: scopeSpans,
	}
}

func metricResourceMetrics(points []MetricPoint, res *resource.Resource) *metricpb.ResourceMetrics {
	grouped := groupMetricsByScope(points)
	scopeMetrics := make([]*metricpb.ScopeMetrics, 0, len(grouped))
	for scope, group := range grouped {
		pbMetrics := make([]*metricpb.Metric, 0, len(group))
		for _, p := range group {
			pbMetrics = append(pbMetrics, metricToPB(p))
		}
		scopeMetrics = append(scopeMetrics, &metricpb.ScopeMetrics{
			Scope:   &commonpb.InstrumentationScope{Name: scope.Name, Version: scope.Version},
			Metrics: pbMetrics,
		})
	}
	return &metricpb.ResourceMetrics{
		Resource:     resourceToPB(res),
		ScopeMetrics: scopeMetrics,
	}
}

func resourceToPB(res *resource.Resource) *resourcepb.Resource {
	if res == nil {
		return &resourcepb.Resource{}
	}
	attrs := make([]*commonpb.KeyValue, 0, res.Len())
	for _, kv := range res.Attributes() {
		attrs = append(attrs, &commonpb.KeyValue{
			Key:   string(kv.Key),
			Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: kv.Value.Emit()}},
		})
	}
	return &resourcepb.Resource{Attributes: attrs}
}

func spanToPB(s SpanData) *tracepb.Span {
	attrs := make([]*commonpb.KeyValue, 0, len(s.Attributes))
	for k, v := range s.Attributes {
		attrs = append(attrs, &commonpb.KeyValue{
			Key:   k,
			Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v}},
		})
	}
	events := make([]*tracepb.Span_Event, 0, len(s.Events))
	for _, e := range s.Events {
		eventAttrs := make([]*commonpb.KeyValue, 0, len(e.Attributes))
		for k, v := range e.Attributes {
			eventAttrs = append(eventAttrs, &commonpb.KeyValue{
				Key:   k,
				Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v}},
			})
		}
		events = append(events, &tracepb.Span_Event{
			Name:                   e.Name,
			TimeUnixNano:           uint64(e.Time.UnixNano()),
			Attributes:             eventAttrs,
		})
	}
	return &tracepb.Span{
		TraceId:           []byte(s.SpanContext.TraceID),
		SpanId:            []byte(s.SpanContext.SpanID),
		ParentSpanId:      []byte(s.ParentSpanID),
		Name:              s.Name,
		Kind:              tracepb.Span_SpanKind(s.Kind),
		StartTimeUnixNano: uint64(s.StartTime.UnixNano()),
		EndTimeUnixNano:   uint64(s.EndTime.UnixNano()),
		Attributes:        attrs,
		Events:            events,
		Status: &tracepb.Status{
			Code:    tracepb.Status_StatusCode(s.StatusCode),
			Message: s.StatusMessage,
		},
	}
}

func metricToPB(p MetricPoint) *metricpb.Metric {
	attrs := make([]*commonpb.KeyValue, 0, len(p.Attributes))
	for k, v := range p.Attributes {
		attrs = append(attrs, &commonpb.KeyValue{
			Key:   k,
			Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v}},
		})
	}
	return &metricpb.Metric{
		Name:        p.Name,
		Description: p.Description,
		Unit:        p.Unit,
		Data: &metricpb.Metric_Gauge{
			Gauge: &metricpb.Gauge{
				DataPoints: []*metricpb.NumberDataPoint{{
					Attributes:   attrs,
					TimeUnixNano: uint64(p.Timestamp.UnixNano()),
					Value:        &metricpb.NumberDataPoint_AsDouble{AsDouble: p.Value},
				}},
			},
		},
	}
}
