// Package messagingpump implements the inbound messaging subscription pump
// of spec.md §4.5: subscribe to every topic the guest declared, and
// dispatch each message to an independently-instantiated guest.
package messagingpump

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/wasmgate/wasmgate/internal/reqctx"
	"github.com/wasmgate/wasmgate/internal/reqstore"
)

// tracer names the host span the pump opens per dispatched message, the
// span the guest telemetry bridge rewrites every guest span's parent onto
// (spec.md §4.7 step 1).
var tracer = otel.Tracer("wasmgate/messagingpump")

// Message is the minimal shape the pump needs from a capability's Message
// object, per spec.md §4.6.4.
type Message interface {
	Topic() string
}

// Subscriber is implemented by the messaging capability's Client.
type Subscriber interface {
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
}

// Handler processes one inbound message through a freshly instantiated
// guest.
type Handler func(ctx context.Context, store *reqstore.Store, msg Message) error

// Pump drives one messaging capability's inbound subscriptions.
type Pump struct {
	Component string
	Topics    []string
	Client    Subscriber
	Factory   *reqstore.Factory
	Handler   Handler
	Tracker   *reqstore.Tracker

	processingErrors atomic.Int64
	counterOnce      sync.Once
	errorCounter     metric.Int64Counter
}

// ProcessingErrors returns the running count of handler failures, sharing
// the same counter semantics as httpserver.Server.ProcessingErrors.
func (p *Pump) ProcessingErrors() int64 {
	return p.processingErrors.Load()
}

// recordProcessingError increments both the in-process counter
// ProcessingErrors reads and the OTLP processing_errors counter spec.md
// §4.4.4 asks for, tagged with the component name.
func (p *Pump) recordProcessingError(ctx context.Context) {
	p.processingErrors.Add(1)
	p.counterOnce.Do(func() {
		p.errorCounter, _ = otel.Meter("wasmgate/messagingpump").Int64Counter("processing_errors")
	})
	if p.errorCounter != nil {
		p.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("component", p.Component)))
	}
}

// Run subscribes to every declared topic and dispatches messages until ctx
// is cancelled, per spec.md §4.5: "messages are processed concurrently; no
// ordering is promised across messages."
func (p *Pump) Run(ctx context.Context) error {
	msgs, err := p.Client.Subscribe(ctx, p.Topics)
	if err != nil {
		return fmt.Errorf("messagingpump: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.Tracker.Wait()
			return nil
		case msg, ok := <-msgs:
			if !ok {
				p.Tracker.Wait()
				return nil
			}
			go p.dispatch(ctx, msg)
		}
	}
}

func (p *Pump) dispatch(parent context.Context, msg Message) {
	id := fmt.Sprintf("%s-msg-%d", p.Component, time.Now().UnixNano())
	ctx := reqctx.WithComponent(reqctx.WithRequestID(parent, id), p.Component)
	ctx, span := tracer.Start(ctx, "messaging.receive "+msg.Topic(),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination", msg.Topic())),
	)
	defer span.End()

	store, err := p.Factory.NewStore(ctx, id, nil)
	if err != nil {
		p.recordProcessingError(ctx)
		log.Error().Err(err).Str("component", p.Component).Msg("building per-message store")
		return
	}
	p.Tracker.Add(store)
	defer func() {
		_ = store.Close(ctx)
		p.Tracker.Remove(store)
	}()

	if err := p.Handler(ctx, store, msg); err != nil {
		p.recordProcessingError(ctx)
		log.Error().Err(err).Str("component", p.Component).Str("topic", msg.Topic()).Msg("messaging handler failed")
	}
}
