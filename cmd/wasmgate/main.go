// Command wasmgate is the WasmGate capability runtime's CLI entrypoint:
// `run <wasm>` loads a component image and serves it, `compile <wasm>`
// pre-compiles it into a deserializable artifact when this binary was
// built with the jit tag (spec.md §6).
//
// Grounded on cmd/server/main.go's structured-logging and graceful-
// shutdown shape, generalized from one HTTP listener to the three
// concurrent servers (HTTP, messaging, WebSocket) a capability runtime
// stands up.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wasmgate/wasmgate/internal/apperr"
	"github.com/wasmgate/wasmgate/internal/capabilities/blob"
	"github.com/wasmgate/wasmgate/internal/capabilities/config"
	"github.com/wasmgate/wasmgate/internal/capabilities/httpout"
	"github.com/wasmgate/wasmgate/internal/capabilities/identity"
	"github.com/wasmgate/wasmgate/internal/capabilities/kv"
	"github.com/wasmgate/wasmgate/internal/capabilities/messaging"
	"github.com/wasmgate/wasmgate/internal/capabilities/otelcap"
	"github.com/wasmgate/wasmgate/internal/capabilities/sql"
	"github.com/wasmgate/wasmgate/internal/capabilities/vault"
	"github.com/wasmgate/wasmgate/internal/capabilities/websocket"
	"github.com/wasmgate/wasmgate/internal/capability"
	"github.com/wasmgate/wasmgate/internal/engine"
	"github.com/wasmgate/wasmgate/internal/hostabi"
	"github.com/wasmgate/wasmgate/internal/httpserver"
	"github.com/wasmgate/wasmgate/internal/messagingpump"
	"github.com/wasmgate/wasmgate/internal/reqstore"
	rtconfig "github.com/wasmgate/wasmgate/internal/config"
	"github.com/wasmgate/wasmgate/internal/telemetry"
)

// Exit codes per spec.md §6: 0 success, 1 startup failure (image load,
// linking, or backend connect), 2 I/O error on a listener.
const (
	exitSuccess       = 0
	exitStartupFailed = 1
	exitListenerError = 2
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	root := &cobra.Command{
		Use:   "wasmgate",
		Short: "Host runtime for sandboxed WebAssembly network services",
	}
	root.AddCommand(newRunCmd())
	if engine.JITEnabled() {
		root.AddCommand(newCompileCmd())
	}

	if err := root.Execute(); err != nil {
		os.Exit(exitStartupFailed)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <wasm>",
		Short: "Load a component image and serve it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runServe(args[0]))
		},
	}
}

func newCompileCmd() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "compile <wasm>",
		Short: "Pre-compile a component image into a deserializable artifact",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runCompile(args[0], outputDir))
		},
	}
	cmd.Flags().StringVar(&outputDir, "output", ".", "directory to write the compiled artifact into")
	return cmd
}

func runCompile(wasmPath, outputDir string) int {
	source, err := os.ReadFile(wasmPath)
	if err != nil {
		log.Error().Err(err).Str("path", wasmPath).Msg("reading component image")
		return exitStartupFailed
	}
	artifact, err := engine.Compile(source)
	if err != nil {
		log.Error().Err(err).Msg("compiling component")
		return exitStartupFailed
	}
	outPath := outputDir + "/" + componentStem(wasmPath) + ".artifact"
	if err := os.WriteFile(outPath, artifact, 0o644); err != nil {
		log.Error().Err(err).Str("path", outPath).Msg("writing compiled artifact")
		return exitListenerError
	}
	log.Info().Str("path", outPath).Msg("wrote precompiled artifact")
	return exitSuccess
}

func componentStem(path string) string {
	base := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		base = path[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}

// runServe wires every capability named in cfg into a template, builds
// the per-request store factory, and drives the three inbound servers
// (HTTP, messaging, WebSocket) until the process receives SIGINT/SIGTERM.
func runServe(wasmPath string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := rtconfig.Load(wasmPath)
	log.Info().Str("component", cfg.Component).Str("image", wasmPath).Msg("wasmgate starting")

	telem, err := telemetry.Init(cfg.Telemetry, cfg.Component)
	if err != nil {
		log.Error().Err(err).Msg("initializing telemetry")
		return exitStartupFailed
	}
	defer telem.Shutdown(context.Background())

	tpl, err := engine.Load(ctx, wasmPath)
	if err != nil {
		log.Error().Err(err).Msg("loading component image")
		return exitStartupFailed
	}
	defer tpl.Close(context.Background())

	res, closers, err := buildBackends(ctx, cfg, telem)
	if err != nil {
		log.Error().Err(err).Msg("connecting capability backends")
		return exitStartupFailed
	}
	defer closeAll(closers)

	if err := capability.LinkAll(ctx, tpl, res.hosts); err != nil {
		log.Error().Err(err).Msg("linking capabilities")
		return exitStartupFailed
	}
	if err := tpl.LinkFunctions(ctx, hostabi.ResourceModuleName, hostabi.ResourceAccessors()); err != nil {
		log.Error().Err(err).Msg("linking resource accessors")
		return exitStartupFailed
	}
	tpl.Finalize()

	factory := reqstore.NewFactory(tpl, cfg.Component, res.backends)
	tracker := reqstore.NewTracker()

	group, gctx := errgroup.WithContext(ctx)

	httpSrv := &httpserver.Server{
		Addr:      cfg.HTTPAddr,
		Component: cfg.Component,
		Factory:   factory,
		Handler:   guestHTTPHandler,
		Tracker:   tracker,
	}
	group.Go(func() error { return httpSrv.ListenAndServe(gctx) })

	if res.messagingClient != nil {
		pump := &messagingpump.Pump{
			Component: cfg.Component,
			Topics:    cfg.MessagingTopics,
			Client:    messagingSubscriberAdapter{res.messagingClient},
			Factory:   factory,
			Handler:   guestMessageHandler,
			Tracker:   tracker,
		}
		group.Go(func() error { return pump.Run(gctx) })
	}

	if res.wsRegistry != nil {
		wsSrv := &websocket.Server{
			Addr:      cfg.WebSocketAddr,
			Component: cfg.Component,
			Registry:  res.wsRegistry,
			Factory:   factory,
			Handler:   guestWebSocketHandler,
			Tracker:   tracker,
		}
		group.Go(func() error { return wsSrv.Run(gctx) })
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("listener failed")
		return exitListenerError
	}
	log.Info().Msg("wasmgate shut down cleanly")
	return exitSuccess
}

// guestHandleHTTPExport, guestHandleMessageExport, and
// guestHandleEventExport name the exported guest functions this runtime
// invokes per unit of work. The request/response marshaling across this
// boundary is produced by the `guest!`/`runtime!` code generators
// (spec.md §1, out of scope); this host only resolves and calls the
// export, surfacing whether the guest declared one at all.
const (
	guestHandleHTTPExport    = "wasmgate_handle_http"
	guestHandleMessageExport = "wasmgate_handle_message"
	guestHandleEventExport   = "wasmgate_handle_event"
)

func guestHTTPHandler(ctx context.Context, store *reqstore.Store, req *http.Request) (*http.Response, error) {
	fn := store.Instance.ExportedFunction(guestHandleHTTPExport)
	if fn == nil {
		return &http.Response{
			StatusCode: http.StatusNotImplemented,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader("component declares no HTTP handler")),
		}, nil
	}
	if _, err := fn.Call(store.Context(ctx)); err != nil {
		return nil, apperr.BadGateway("guest_handler_failed", err.Error())
	}
	return &http.Response{StatusCode: http.StatusOK, Header: make(http.Header), Body: io.NopCloser(strings.NewReader(""))}, nil
}

func guestMessageHandler(ctx context.Context, store *reqstore.Store, msg messagingpump.Message) error {
	fn := store.Instance.ExportedFunction(guestHandleMessageExport)
	if fn == nil {
		return apperr.NotFound("no_message_handler", "component declares no messaging handler")
	}
	if _, err := fn.Call(store.Context(ctx)); err != nil {
		return apperr.BadGateway("guest_handler_failed", err.Error())
	}
	return nil
}

func guestWebSocketHandler(ctx context.Context, store *reqstore.Store, evt *websocket.Event) error {
	fn := store.Instance.ExportedFunction(guestHandleEventExport)
	if fn == nil {
		return apperr.NotFound("no_event_handler", "component declares no websocket handler")
	}
	if _, err := fn.Call(store.Context(ctx)); err != nil {
		return apperr.BadGateway("guest_handler_failed", err.Error())
	}
	return nil
}

// messagingSubscriberAdapter narrows messaging.Client's *Message channel
// to messagingpump.Subscriber's Message interface channel; Go's channel
// types are invariant even though *messaging.Message implements
// messagingpump.Message, so the pump-facing values must be fanned out
// through a new channel rather than reinterpreted in place.
type messagingSubscriberAdapter struct {
	client messaging.Client
}

func (a messagingSubscriberAdapter) Subscribe(ctx context.Context, topics []string) (<-chan messagingpump.Message, error) {
	in, err := a.client.Subscribe(ctx, topics)
	if err != nil {
		return nil, err
	}
	out := make(chan messagingpump.Message, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				out <- msg
			}
		}
	}()
	return out, nil
}

func closeAll(closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			log.Error().Err(err).Msg("closing backend connection")
		}
	}
}

// backendResult carries the linked capability.Host set alongside the
// per-store backend-connection map and the handles main needs to stand
// up the inbound servers.
type backendResult struct {
	hosts           []capability.Host
	backends        map[string]any
	messagingClient messaging.Client
	wsRegistry      *websocket.Registry
}

// buildBackends connects every enabled capability's backend, retrying
// transient connection failures with exponential backoff before giving up
// fatally, per spec.md §4.2: "Backend connection errors are fatal at
// startup."
func buildBackends(ctx context.Context, cfg *rtconfig.Config, telem *telemetry.Telemetry) (*backendResult, []func() error, error) {
	caps := cfg.Capabilities
	result := &backendResult{backends: make(map[string]any)}
	var closers []func() error

	var kvBackend kv.Backend
	if caps.KV != "" {
		if err := retry(ctx, "kv", func() error {
			var err error
			kvBackend, err = buildKVBackend(caps)
			return err
		}); err != nil {
			return nil, nil, err
		}
		if closer, ok := kvBackend.(io.Closer); ok {
			closers = append(closers, closer.Close)
		}
		result.backends["kv"] = kvBackend
		result.hosts = append(result.hosts, &kv.Host{Backend: kvBackend})
	}

	if caps.Blob != "" {
		var blobBackend blob.Backend
		if err := retry(ctx, "blob", func() error {
			var err error
			blobBackend, err = buildBlobBackend(ctx, caps)
			return err
		}); err != nil {
			return nil, nil, err
		}
		result.backends["blob"] = blobBackend
		result.hosts = append(result.hosts, &blob.Host{Backend: blobBackend})
	}

	if caps.SQL != "" {
		var conn sql.Connection
		if err := retry(ctx, "sql", func() error {
			var err error
			conn, err = buildSQLBackend(caps)
			return err
		}); err != nil {
			return nil, nil, err
		}
		closers = append(closers, conn.Close)
		result.backends["sql"] = conn
		result.hosts = append(result.hosts, &sql.Host{Backend: conn})
	}

	if caps.Vault != "" {
		var vaultBackend vault.Backend
		if err := retry(ctx, "vault", func() error {
			var err error
			vaultBackend, err = buildVaultBackend(ctx, caps)
			return err
		}); err != nil {
			return nil, nil, err
		}
		result.backends["vault"] = vaultBackend
		result.hosts = append(result.hosts, &vault.Host{Backend: vaultBackend})
	}

	if caps.Messaging != "" {
		var msgBackend messaging.Backend
		if err := retry(ctx, "messaging", func() error {
			var err error
			msgBackend, err = buildMessagingBackend(caps)
			return err
		}); err != nil {
			return nil, nil, err
		}
		if closer, ok := msgBackend.(io.Closer); ok {
			closers = append(closers, closer.Close)
		}
		result.backends["messaging"] = msgBackend
		result.hosts = append(result.hosts, &messaging.Host{Backend: msgBackend})

		client, err := msgBackend.Connect(ctx, cfg.Component)
		if err != nil {
			return nil, nil, fmt.Errorf("messaging: connecting inbound client: %w", err)
		}
		result.messagingClient = client
	}

	if caps.Identity != "" {
		identityBackend := identity.NewTokenManager(cfg.Identity.ClientID, cfg.Identity.ClientSecret, cfg.Identity.TokenURL)
		result.backends["identity"] = identityBackend
		result.hosts = append(result.hosts, &identity.Host{Backend: identityBackend})
	}

	if caps.WebSocket != "" {
		registry := websocket.NewRegistry()
		wsBackend := websocket.NewGorillaBackend(registry)
		result.backends["websocket"] = wsBackend
		result.hosts = append(result.hosts, &websocket.Host{Backend: wsBackend})
		result.wsRegistry = registry
	}

	if caps.HTTPOut != "" {
		if kvBackend == nil {
			return nil, nil, fmt.Errorf("httpout: outbound cache requires the kv capability to be enabled")
		}
		sender := httpout.NewSender()
		cache := httpout.NewCache(func(ctx context.Context, name string) (httpout.Bucket, error) {
			return kvBackend.Open(ctx, name)
		}, httpout.CacheOptions{BucketName: cfg.Capabilities.CacheBucketName})
		result.hosts = append(result.hosts, &httpout.Host{Sender: sender, Cache: cache})
	}

	if caps.Otel != "" {
		var bridge *otelcap.Bridge
		if telem.Resource != nil {
			b, err := otelcap.NewBridge(cfg.Telemetry.GRPCURL, telem.Resource)
			if err != nil {
				return nil, nil, fmt.Errorf("otelcap: %w", err)
			}
			bridge = b
			closers = append(closers, bridge.Close)
		}
		result.hosts = append(result.hosts, &otelcap.Host{Bridge: bridge})
	}

	if caps.Config != "" {
		result.hosts = append(result.hosts, config.NewHost())
	}

	return result, closers, nil
}

func buildKVBackend(caps rtconfig.CapabilityConfig) (kv.Backend, error) {
	switch caps.KV {
	case "memory":
		return kv.NewMemoryBackend(), nil
	case "redis":
		return kv.NewRedisBackend(caps.KVRedisAddr), nil
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", caps.KV)
	}
}

func buildBlobBackend(ctx context.Context, caps rtconfig.CapabilityConfig) (blob.Backend, error) {
	switch caps.Blob {
	case "memory":
		return blob.NewMemoryBackend(), nil
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("blob: loading AWS config: %w", err)
		}
		return blob.NewS3Backend(s3.NewFromConfig(awsCfg), caps.BlobS3Bucket), nil
	default:
		return nil, fmt.Errorf("blob: unknown backend %q", caps.Blob)
	}
}

func buildSQLBackend(caps rtconfig.CapabilityConfig) (sql.Connection, error) {
	switch caps.SQL {
	case "sqlite":
		return sql.NewSQLiteBackend(caps.SQLDatabase)
	case "postgres":
		return sql.NewPostgresBackend(caps.SQLDatabase)
	default:
		return nil, fmt.Errorf("sql: unknown backend %q", caps.SQL)
	}
}

func buildVaultBackend(ctx context.Context, caps rtconfig.CapabilityConfig) (vault.Backend, error) {
	switch caps.Vault {
	case "memory":
		return vault.NewMemoryBackend(), nil
	case "secretsmanager":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("vault: loading AWS config: %w", err)
		}
		return vault.NewSecretsManagerBackend(secretsmanager.NewFromConfig(awsCfg)), nil
	default:
		return nil, fmt.Errorf("vault: unknown backend %q", caps.Vault)
	}
}

func buildMessagingBackend(caps rtconfig.CapabilityConfig) (messaging.Backend, error) {
	switch caps.Messaging {
	case "memory":
		return messaging.NewMemoryBackend(), nil
	case "amqp":
		return messaging.NewAMQPBackend(caps.MessagingAMQPURL, caps.MessagingAMQPExchange)
	default:
		return nil, fmt.Errorf("messaging: unknown backend %q", caps.Messaging)
	}
}

// retry runs build with exponential backoff, giving up after a bounded
// elapsed time so a misconfigured backend fails startup instead of
// retrying forever, per spec.md §4.2's fatal-at-startup requirement.
func retry(ctx context.Context, name string, build func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := build(); err != nil {
			log.Warn().Err(err).Str("backend", name).Int("attempt", attempt).Msg("backend connection attempt failed")
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return fmt.Errorf("connecting %s backend: %w", name, err)
	}
	return nil
}
