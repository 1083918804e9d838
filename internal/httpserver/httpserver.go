// Package httpserver implements the inbound HTTP server of spec.md §4.4:
// accept TCP, normalize the request URI, drive a fresh guest instance
// through a one-shot head/body handoff, and stream the response back.
//
// Grounded on original_source/crates/wasi-http/src/host/server.rs: TCP
// no-delay, HTTP keep-alive, Forwarded/Host URI fix-up, the oneshot
// channel decoupling head latency from body latency, the fixed 500 HTML
// page, and the processing_errors counter.
package httpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/wasmgate/wasmgate/internal/apperr"
	"github.com/wasmgate/wasmgate/internal/reqctx"
	"github.com/wasmgate/wasmgate/internal/reqstore"
)

// tracer names the host span the inbound server opens per request, the
// span the guest telemetry bridge rewrites every guest span's parent onto
// (spec.md §4.7 step 1).
var tracer = otel.Tracer("wasmgate/httpserver")

// internalErrorBody is the fixed 500 page spec.md §6 requires: "Server
// errors produce a fixed HTML 500 page".
const internalErrorBody = `<!doctype html><html><head><title>Internal Server Error</title></head>` +
	`<body><h1>Internal Server Error</h1></body></html>`

// Handler drives one instantiated guest's HTTP entry point over the
// normalized request and a fresh per-request store, returning the
// response the guest produced. The generated guest glue (spec.md §1's
// guest! code generator) is what ultimately produces the response; this
// package only needs its shape.
type Handler func(ctx context.Context, store *reqstore.Store, req *http.Request) (*http.Response, error)

// Server is the inbound HTTP server.
type Server struct {
	Addr      string
	Component string
	Factory   *reqstore.Factory
	Handler   Handler
	Tracker   *reqstore.Tracker

	processingErrors atomic.Int64
	counterOnce      sync.Once
	errorCounter     metric.Int64Counter
}

// ProcessingErrors returns the running count of responses with status≥500,
// tagged with the component name at the call site per spec.md §4.4.4.
func (s *Server) ProcessingErrors() int64 {
	return s.processingErrors.Load()
}

// recordProcessingError increments both the in-process counter
// ProcessingErrors reads and the OTLP processing_errors counter spec.md
// §4.4.4 asks for, tagged with the component name.
func (s *Server) recordProcessingError(ctx context.Context) {
	s.processingErrors.Add(1)
	s.counterOnce.Do(func() {
		s.errorCounter, _ = otel.Meter("wasmgate/httpserver").Int64Counter("processing_errors")
	})
	if s.errorCounter != nil {
		s.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("component", s.Component)))
	}
}

// ListenAndServe accepts connections on s.Addr until ctx is cancelled,
// then waits for in-flight stores to finish before returning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen %s: %w", s.Addr, err)
	}
	defer ln.Close()

	httpSrv := &http.Server{
		Handler: http.HandlerFunc(s.serveHTTP),
		ConnState: func(conn net.Conn, state http.ConnState) {
			if state == http.StateNew {
				if tc, ok := conn.(*net.TCPConn); ok {
					_ = tc.SetNoDelay(true)
				}
			}
		},
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()

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

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = fmt.Sprintf("%s-%d", s.Component, time.Now().UnixNano())
	}
	ctx := reqctx.WithComponent(reqctx.WithRequestID(r.Context(), requestID), s.Component)
	ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		),
	)
	defer span.End()

	normalized, err := normalizeURI(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.URL = normalized

	store, err := s.Factory.NewStore(ctx, requestID, nil)
	if err != nil {
		log.Error().Err(err).Str("component", s.Component).Msg("building per-request store")
		s.recordProcessingError(ctx)
		s.writeInternalError(w)
		return
	}
	s.Tracker.Add(store)
	defer func() {
		_ = store.Close(ctx)
		s.Tracker.Remove(store)
	}()

	// Decouple head latency from body latency: the guest handler runs on
	// its own goroutine and hands the head back through a one-shot
	// channel as soon as it is available, per spec.md §4.4's item 3 and
	// §9's "mid-stream cancellation" design note.
	head := make(chan *http.Response, 1)
	go func() {
		resp, handlerErr := s.Handler(ctx, store, r)
		if handlerErr != nil {
			log.Error().Err(handlerErr).Str("component", s.Component).Str("request_id", requestID).Msg("guest handler failed")
			head <- nil
			return
		}
		head <- resp
	}()

	resp := <-head
	if resp == nil {
		s.recordProcessingError(ctx)
		s.writeInternalError(w)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		s.recordProcessingError(ctx)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (s *Server) writeInternalError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = io.WriteString(w, internalErrorBody)
}

// normalizeURI rewrites r's URI so scheme and authority are explicit, per
// spec.md §4.4 item 1 and §8 testable property 8: prefer a Forwarded
// header's host=/proto=, else fall back to the Host header with scheme
// "http"; a request with neither is rejected.
func normalizeURI(r *http.Request) (*url.URL, error) {
	u := *r.URL

	if fwd := r.Header.Get("Forwarded"); fwd != "" {
		if host, proto, ok := parseForwarded(fwd); ok {
			u.Host = host
			u.Scheme = proto
			return &u, nil
		}
	}

	if r.Host != "" {
		u.Host = r.Host
		u.Scheme = "http"
		return &u, nil
	}

	return nil, apperr.BadRequest("missing_host", "missing host header")
}

// parseForwarded extracts host= and proto= from a Forwarded header value,
// per RFC 7239 §4's parameter grammar (a simplified, case-insensitive
// subset sufficient for a single-hop Forwarded value).
func parseForwarded(value string) (host, proto string, ok bool) {
	for _, part := range strings.Split(value, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		switch key {
		case "host":
			host = val
		case "proto":
			proto = val
		}
	}
	return host, proto, host != "" && proto != ""
}
