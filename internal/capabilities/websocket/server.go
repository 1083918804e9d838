package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/wasmgate/wasmgate/internal/reqctx"
	"github.com/wasmgate/wasmgate/internal/reqstore"
)

// tracer names the host span the server opens per inbound event, the span
// the guest telemetry bridge rewrites every guest span's parent onto
// (spec.md §4.7 step 1).
var tracer = otel.Tracer("wasmgate/websocket")

// Handler dispatches one inbound Event to a freshly instantiated guest,
// mirroring messagingpump.Handler's per-message dispatch shape.
type Handler func(ctx context.Context, store *reqstore.Store, evt *Event) error

// Server is the inbound WebSocket capability's accept loop: it implements
// capability.Server, per spec.md §4.2's "a server capability (HTTP in,
// messaging in, websocket in) exposes run(state)".
//
// Grounded on original_source/crates/wasi-websocket/src/host/server.rs:
// one handler goroutine per inbound event, processing_errors counted the
// same way the HTTP and messaging servers do.
type Server struct {
	Addr      string
	Component string
	Registry  *Registry
	Factory   *reqstore.Factory
	Handler   Handler
	Tracker   *reqstore.Tracker

	upgrader         websocket.Upgrader
	processingErrors atomic.Int64
	counterOnce      sync.Once
	errorCounter     metric.Int64Counter
}

// ProcessingErrors returns the running count of handler failures.
func (s *Server) ProcessingErrors() int64 {
	return s.processingErrors.Load()
}

// recordProcessingError increments both the in-process counter
// ProcessingErrors reads and the OTLP processing_errors counter spec.md
// §4.4.4 asks for, tagged with the component name.
func (s *Server) recordProcessingError(ctx context.Context) {
	s.processingErrors.Add(1)
	s.counterOnce.Do(func() {
		s.errorCounter, _ = otel.Meter("wasmgate/websocket").Int64Counter("processing_errors")
	})
	if s.errorCounter != nil {
		s.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("component", s.Component)))
	}
}

// Run implements capability.Server. It accepts TCP, upgrades to
// WebSocket, and for each connection reads frames until the peer closes,
// dispatching each as its own inbound unit of work.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)

	httpSrv := &http.Server{Addr: s.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		s.Tracker.Wait()
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("component", s.Component).Msg("websocket upgrade failed")
		return
	}
	addr := conn.RemoteAddr().String()
	s.Registry.Add(addr, conn)
	defer func() {
		s.Registry.Remove(addr)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		go s.dispatch(r.Context(), &Event{SocketAddr: addr, Data: data})
	}
}

func (s *Server) dispatch(parent context.Context, evt *Event) {
	id := fmt.Sprintf("%s-ws-%d", s.Component, time.Now().UnixNano())
	ctx := reqctx.WithComponent(reqctx.WithRequestID(parent, id), s.Component)
	ctx, span := tracer.Start(ctx, "websocket.receive",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("network.peer.address", evt.SocketAddr)),
	)
	defer span.End()

	store, err := s.Factory.NewStore(ctx, id, nil)
	if err != nil {
		s.recordProcessingError(ctx)
		log.Error().Err(err).Str("component", s.Component).Msg("building per-event store")
		return
	}
	s.Tracker.Add(store)
	defer func() {
		_ = store.Close(ctx)
		s.Tracker.Remove(store)
	}()

	if err := s.Handler(ctx, store, evt); err != nil {
		s.recordProcessingError(ctx)
		log.Error().Err(err).Str("component", s.Component).Str("socket", evt.SocketAddr).Msg("websocket handler failed")
	}
}
