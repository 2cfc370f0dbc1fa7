// Package app wires the catalog API server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/scan-and-go/internal/domain/auth"
	"github.com/xenking/scan-and-go/internal/domain/product"
	"github.com/xenking/scan-and-go/internal/handler"
	"github.com/xenking/scan-and-go/internal/storage/postgres"
	"github.com/xenking/scan-and-go/pkg/health"
	"github.com/xenking/scan-and-go/pkg/httpmiddleware"
)

const serviceName = "scango-api"

// Deps are the stores and probes the HTTP stack is built on.
type Deps struct {
	Products product.Repository
	// APIKeys is required when Config.Admin.RequireKey is set.
	APIKeys auth.Repository
	Health  *health.Health
}

// NewHTTPHandler builds the catalog routes, health probes, and middleware
// chain.
func NewHTTPHandler(
	ctx context.Context,
	lg *zap.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	cfg *Config,
	deps Deps,
) (http.Handler, error) {
	catalog, err := product.NewService(deps.Products, tp, mp)
	if err != nil {
		return nil, errors.Wrap(err, "create catalog service")
	}

	var security *handler.SecurityHandler
	if cfg.Admin.RequireKey {
		if deps.APIKeys == nil {
			return nil, errors.New("admin key check enabled without an api key store")
		}
		security = handler.NewSecurityHandler(deps.APIKeys, []byte(cfg.Admin.APIKeyPepper))
	}

	mux := http.NewServeMux()
	handler.NewHandler(handler.HandlerConfig{MaxBodyBytes: cfg.MaxBodyBytes}, catalog, security).Register(mux)
	mux.HandleFunc("GET /livez", deps.Health.LiveEndpoint)
	mux.HandleFunc("GET /readyz", deps.Health.ReadyEndpoint)

	find := httpmiddleware.MakeRouteFinder(mux)
	return httpmiddleware.Wrap(mux,
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:  cfg.CORS.Origins,
			AllowHeaders:  []string{"Content-Type", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
			ExposeHeaders: []string{httpmiddleware.RequestIDHeader},
			MaxAge:        86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Skip:   httpmiddleware.SkipPaths("/livez", "/readyz"),
		}),
		httpmiddleware.Instrument(serviceName, find, tp, mp),
		httpmiddleware.LogRequests(find),
		httpmiddleware.Labeler(find),
	), nil
}

// Run connects to PostgreSQL, serves the API, and shuts down gracefully when
// ctx is cancelled.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.Bool("admin_require_key", cfg.Admin.RequireKey),
	)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	probes := health.New()
	probes.Register(health.Check{
		Name:    "postgres",
		Probe:   health.Readiness,
		Timeout: 5 * time.Second,
		Func:    health.PingCheck(pool),
	})
	probes.Register(health.Check{
		Name:  "goroutines",
		Probe: health.Liveness,
		Func:  health.GoroutineCountCheck(10000),
	})

	h, err := NewHTTPHandler(ctx, lg, m.TracerProvider(), m.MeterProvider(), cfg, Deps{
		Products: postgres.NewProductRepository(pool),
		APIKeys:  postgres.NewAPIKeyRepository(pool),
		Health:   probes,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	probes.Start(ctx, 10*time.Second)
	defer probes.Stop()
	probes.SetReady(true)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		probes.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		if ctx.Err() != nil {
			// Only drain when asked to stop; a failed listener has nothing to drain.
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}
