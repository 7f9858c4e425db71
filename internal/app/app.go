package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mandala-pos/terminal/internal/display"
	"github.com/mandala-pos/terminal/internal/domain/staff"
	"github.com/mandala-pos/terminal/internal/handler"
	"github.com/mandala-pos/terminal/internal/storage/postgres"
	"github.com/mandala-pos/terminal/internal/terminal"
	"github.com/mandala-pos/terminal/pkg/health"
	"github.com/mandala-pos/terminal/pkg/httpmiddleware"
)

const (
	serviceName   = "mandala-terminal"
	instrumentLib = "github.com/mandala-pos/terminal"
	probeInterval = 10 * time.Second
)

// Telemetry provides the tracer and meter providers. *app.Telemetry from
// go-faster/sdk implements it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Run creates all dependencies, starts the HTTP server and the background
// workers, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	productRepo := postgres.NewProductRepository(pool)
	staffRepo := postgres.NewStaffRepository(pool)

	hub := display.NewHub(lg.Named("display"))
	sessions, err := terminal.NewManager(terminal.Config{
		PinLength:   cfg.PIN.Length,
		PinDelay:    cfg.PIN.Delay,
		PinAttempts: cfg.PIN.Attempts,
		PinLockout:  cfg.PIN.Lockout,
		IdleTTL:     cfg.Session.IdleTTL,
	}, terminal.Deps{
		Catalog:       productRepo,
		Authenticator: staff.NewAuthenticator(staffRepo, []byte(cfg.PinPepper)),
		Tokens:        staff.NewTokenIssuer([]byte(cfg.TokenSecret), cfg.Session.TokenTTL, cfg.Session.RememberTTL),
		Publisher:     hub,
		Meter:         m.MeterProvider().Meter(instrumentLib),
		Logger:        lg.Named("terminal"),
	})
	if err != nil {
		return errors.Wrap(err, "create session manager")
	}

	healthSvc := health.New()
	healthSvc.Ready("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	}, health.FailureThreshold(3))
	healthSvc.Ready("sessions", time.Second, health.CapacityCheck("terminal sessions", sessions.Len, cfg.Session.MaxOpen))
	healthSvc.Live("goroutines", time.Second, health.GoroutineCountCheck(10000))

	h := handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL},
		productRepo,
		sessions,
		hub,
		m.TracerProvider().Tracer(instrumentLib),
	)

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.RegisterRoutes(router)

	limiter := httpmiddleware.NewRateLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				ExposeHeaders:    []string{"Location", "X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			limiter.Middleware(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.Routes(),
			httpmiddleware.LogRequests(),
		),
	}

	// Workers stop on workCtx; the server stops through the drain below so
	// in-flight requests still reach live sessions.
	workCtx, stopWork := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWork()

	g, gCtx := errgroup.WithContext(workCtx)
	g.Go(func() error { return hub.Run(gCtx) })
	g.Go(func() error { return sessions.RunJanitor(gCtx, cfg.Session.SweepInterval) })
	g.Go(func() error { return healthSvc.Run(gCtx, probeInterval) })
	g.Go(func() error { return limiter.Run(gCtx) })
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-gCtx.Done():
			// A worker failed; skip the readiness drain.
			return shutdown(lg, server, cfg.Graceful.ShutdownTimeout)
		}

		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		err := shutdown(lg, server, cfg.Graceful.ShutdownTimeout)
		sessions.CloseAll(workCtx)
		stopWork()
		return err
	})

	healthSvc.SetReady(true)
	return g.Wait()
}

func shutdown(lg *zap.Logger, server *http.Server, timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	lg.Info("Shutting down server", zap.Duration("timeout", timeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
