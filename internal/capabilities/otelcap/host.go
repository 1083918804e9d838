package otelcap

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero/api"
	otelapi "go.opentelemetry.io/otel/trace"

	"github.com/wasmgate/wasmgate/internal/capability"
	"github.com/wasmgate/wasmgate/internal/hostabi"
	"github.com/wasmgate/wasmgate/internal/reqstore"
)

// Host links the guest telemetry bridge into a component template,
// exposing export(spans) and export(metrics) per spec.md §4.7. Every
// function is marshaled through internal/hostabi's numeric ABI, the same
// convention internal/capabilities/kv uses; spans and metric points cross
// as gob-encoded buffers.
type Host struct {
	Bridge *Bridge
}

// Name implements capability.Host.
func (h *Host) Name() string { return "wasi:otel/tracing" }

// Link implements capability.Host.
func (h *Host) Link(ctx context.Context, l capability.Linker) error {
	exportSpans := hostabi.Def(2, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		if h.Bridge == nil {
			return hostabi.OK(0)
		}
		buf, err := hostabi.ReadBuf(mod, args, 0)
		if err != nil {
			return hostabi.OK(0)
		}
		var spans []SpanData
		if err := hostabi.DecodeGob(buf, &spans); err != nil {
			return hostabi.OK(0)
		}
		if err := h.Bridge.ExportSpans(ctx, spans, currentHostSpan(ctx)); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("otel: span export failed")
		}
		return hostabi.OK(0) // telemetry export failures never propagate, per spec.md §4.7.
	})

	exportMetrics := hostabi.Def(2, func(ctx context.Context, store *reqstore.Store, mod api.Module, args []uint64) (uint64, uint64) {
		if h.Bridge == nil {
			return hostabi.OK(0)
		}
		buf, err := hostabi.ReadBuf(mod, args, 0)
		if err != nil {
			return hostabi.OK(0)
		}
		var points []MetricPoint
		if err := hostabi.DecodeGob(buf, &points); err != nil {
			return hostabi.OK(0)
		}
		if err := h.Bridge.ExportMetrics(ctx, points); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("otel: metric export failed")
		}
		return hostabi.OK(0)
	})

	return l.LinkFunctions(ctx, h.Name(), map[string]capability.HostFunc{
		"export":         exportSpans,
		"export-metrics": exportMetrics,
	})
}

// currentHostSpan reads the active host span's trace id and span id out
// of ctx, per spec.md §4.7 step 1. A context carrying no active span
// yields a zero HostSpan, which rewriteParent still applies consistently
// (an all-zero trace id), matching the original's "warp_otel::init" guard
// for the uninitialized case.
func currentHostSpan(ctx context.Context) HostSpan {
	sc := otelapi.SpanContextFromContext(ctx)
	return HostSpan{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}
