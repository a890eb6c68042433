package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/janisto/profile-sync/internal/http/health"
	"github.com/janisto/profile-sync/internal/http/v1/routes"
	"github.com/janisto/profile-sync/internal/platform/config"
	applog "github.com/janisto/profile-sync/internal/platform/logging"
	"github.com/janisto/profile-sync/internal/platform/metrics"
	appmiddleware "github.com/janisto/profile-sync/internal/platform/middleware"
	"github.com/janisto/profile-sync/internal/platform/respond"
	"github.com/janisto/profile-sync/internal/profilesync"
	profilesvc "github.com/janisto/profile-sync/internal/service/profile"
	"github.com/janisto/profile-sync/internal/store"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

const (
	docsPath        = "/api-docs"
	shutdownTimeout = 10 * time.Second
	baseWriteBudget = 10 * time.Second
	uploadChunks    = 10
)

type app struct {
	router http.Handler
	api    huma.API
	flow   *profilesync.Flow
	store  *store.Store
}

// newApp wires the profile service, store, flow and HTTP stack.
func newApp(cfg config.Config, m *metrics.Metrics) *app {
	svc := profilesvc.NewMockProfileService(
		profilesvc.WithLatency(cfg.Profile.Latency),
		profilesvc.WithChunkDelay(cfg.Profile.ChunkDelay),
		profilesvc.WithFailureRate(cfg.Profile.FailureRate),
	)
	st := store.New()
	flow := profilesync.New(svc, st, profilesync.WithMetrics(m))

	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	router.Use(
		appmiddleware.Security(docsPath),
		appmiddleware.Vary(),
		appmiddleware.CORS(),
		appmiddleware.RequestID(),
		// RealIP trusts X-Forwarded-For; only run behind a trusted proxy.
		chimiddleware.RealIP,
		chimiddleware.RequestSize(1<<20),
		applog.RequestLogger(),
		applog.AccessLogger(),
		m.Middleware,
		respond.Recoverer(),
	)

	router.Get("/health", health.Handler(st))
	router.Handle("/metrics", m.Handler())

	humaCfg := huma.DefaultConfig("Profile Sync API", Version)
	humaCfg.DocsPath = docsPath
	api := humachi.New(router, humaCfg)
	api.OpenAPI().OnAddOperation = append(api.OpenAPI().OnAddOperation, addCBORContent)

	routes.Register(api, flow, st)

	return &app{router: router, api: api, flow: flow, store: st}
}

// addCBORContent advertises application/cbor wherever application/json is
// accepted or returned.
func addCBORContent(_ *huma.OpenAPI, op *huma.Operation) {
	if op.RequestBody != nil && op.RequestBody.Content != nil {
		if jsonContent, ok := op.RequestBody.Content["application/json"]; ok {
			op.RequestBody.Content["application/cbor"] = jsonContent
		}
	}
	for _, resp := range op.Responses {
		if resp.Content == nil {
			continue
		}
		if jsonContent, ok := resp.Content["application/json"]; ok {
			resp.Content["application/cbor"] = jsonContent
		}
	}
}

// writeTimeout leaves room for a full picture upload stream on top of the
// base budget.
func writeTimeout(cfg config.Config) time.Duration {
	return baseWriteBudget + 2*cfg.Profile.Latency + uploadChunks*cfg.Profile.ChunkDelay
}

func newServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      writeTimeout(cfg),
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 << 10, // 64 KB
	}
}

// run serves on ln until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, srv *http.Server, ln net.Listener) error {
	listenErr := make(chan error, 1)
	go func() {
		applog.LogInfo(ctx, "server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		applog.LogInfo(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	applog.LogInfo(context.Background(), "server exited")
	return nil
}

func main() {
	ctx := context.Background()
	defer func() {
		if err := applog.Sync(); err != nil {
			applog.LogError(ctx, "logger sync error", err)
		}
	}()
	if err := applog.Err(); err != nil {
		applog.LogError(ctx, "logger init error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		applog.LogFatal(ctx, "invalid configuration", err)
	}
	if err := applog.SetLevel(cfg.LogLevel); err != nil {
		applog.LogFatal(ctx, "invalid log level", err)
	}

	m, err := metrics.New()
	if err != nil {
		applog.LogFatal(ctx, "metrics registration failed", err)
	}

	a := newApp(cfg, m)
	srv := newServer(cfg, a.router)

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		applog.LogError(ctx, "listen failed", err, zap.String("addr", srv.Addr))
		os.Exit(1)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applog.LogInfo(ctx, "profile service configured",
		zap.Duration("latency", cfg.Profile.Latency),
		zap.Duration("chunkDelay", cfg.Profile.ChunkDelay),
		zap.Float64("failureRate", cfg.Profile.FailureRate),
	)

	if err := run(sigCtx, srv, ln); err != nil {
		applog.LogError(ctx, "server error", err)
		stop()
		os.Exit(1)
	}
}
