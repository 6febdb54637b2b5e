package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/velmart/storefront/internal/domain/checkout"
	"github.com/velmart/storefront/internal/domain/dispatch"
	"github.com/velmart/storefront/internal/domain/fraud"
	"github.com/velmart/storefront/internal/domain/payment"
	"github.com/velmart/storefront/internal/domain/reservation"
	"github.com/velmart/storefront/internal/handler"
	"github.com/velmart/storefront/internal/storage/postgres"
	"github.com/velmart/storefront/internal/storage/rediscache"
	"github.com/velmart/storefront/pkg/health"
	"github.com/velmart/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Order status cache, optional. statusCache stays a nil interface when
	// Redis is not configured so the handler's nil checks hold.
	var (
		cache       *rediscache.StatusCache
		statusCache handler.StatusCache
	)
	if cfg.RedisAddr != "" {
		cache = rediscache.New(cfg.RedisAddr)
		defer cache.Close()
		statusCache = cache
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if cache != nil {
		healthSvc.AddReadinessCheck("redis", 5*time.Second, cache.Ping)
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	discountRepo := postgres.NewDiscountRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	reservationRepo := postgres.NewReservationRepository(pool)
	webhookRepo := postgres.NewWebhookEventRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	courierRepo := postgres.NewCourierRepository(pool)

	// Domain services.
	gateway := payment.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey)
	checkoutSvc := checkout.NewService(
		productRepo, discountRepo, orderRepo, reservationRepo,
		gateway, cfg.CallbackURL, lg.Named("checkout"),
	)
	reconciler := payment.NewReconciler(
		[]byte(cfg.Gateway.WebhookSecret),
		webhookRepo, orderRepo, discountRepo, reservationRepo,
		cartRepo, invoiceRepo, gateway, lg.Named("reconciler"),
	)
	scorer := fraud.NewScorer(orderRepo, orderRepo)
	matcher := dispatch.NewMatcher(courierRepo)

	// Reclaim expired stock reservations in the background.
	sweeper := reservation.NewSweeper(reservationRepo, cfg.Reservation.SweepInterval, lg.Named("sweeper"))
	go sweeper.Run(ctx)

	// HTTP surface.
	h := handler.NewHandler(
		checkoutSvc, reconciler, scorer, matcher,
		orderRepo, statusCache, []byte(cfg.JWTSecret),
	)
	api := chi.NewRouter()
	api.Route("/api", h.Routes)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", otelhttp.NewHandler(api, "storefront-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "x-signature"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
