package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"clinic/internal/domain/audit"
	"clinic/internal/domain/auth"
	"clinic/internal/domain/employees"
	"clinic/internal/domain/export"
	"clinic/internal/domain/notifications"
	"clinic/internal/domain/payconfig"
	"clinic/internal/domain/payroll"
	"clinic/internal/platform/config"
	cryptoutil "clinic/internal/platform/crypto"
	"clinic/internal/platform/db"
	"clinic/internal/platform/email"
	"clinic/internal/platform/jobs"
	"clinic/internal/platform/metrics"
	audithandler "clinic/internal/transport/http/handlers/audit"
	notificationshandler "clinic/internal/transport/http/handlers/notifications"
	payrollhandler "clinic/internal/transport/http/handlers/payroll"
	"clinic/internal/transport/http/middleware"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	Config        config.Config
	DB            *db.Pool
	Router        http.Handler
	Metrics       *metrics.Collector
	Jobs          *jobs.Service
	Audit         *audit.Service
	Notifications *notifications.Service
	Payroll       *payroll.Service
	Exports       *export.Service
	PayConfig     *payconfig.Store
}

// New connects to Postgres, applies migrations (and the dev seed when enabled) and wires every service.
// Workers are not started; callers decide with StartWorkers.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cipher, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	if !cipher.Configured() {
		slog.Warn("DATA_ENCRYPTION_KEY not set; bank account numbers are stored unencrypted")
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed && !cfg.IsProduction() {
		if err := db.Seed(ctx, pool, cipher); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	collector := metrics.New()
	app := &App{Config: cfg, DB: pool, Metrics: collector}

	app.Jobs = jobs.New(jobs.NewStore(pool), jobs.OptionsFromConfig(cfg), collector)
	app.Audit = audit.New(audit.NewStore(pool))
	app.Notifications = notifications.New(notifications.NewStore(pool), email.New(cfg))
	app.Notifications.DefaultFrom = cfg.EmailFrom
	app.Notifications.AlertTo = cfg.OpsAlertEmail
	app.PayConfig = payconfig.NewStore(pool, cipher)
	directory := employees.NewStore(pool)

	app.Payroll = payroll.NewService(payroll.NewStore(pool), payroll.Deps{
		TaxConfigs: app.PayConfig,
		Directory:  directory,
		Audit:      app.Audit,
		Notifier:   app.Notifications,
		Jobs:       app.Jobs,
		Metrics:    collector,
		TaxTimeout: cfg.TaxJobTimeout,
	})
	app.Jobs.Register(payroll.JobComputeTaxes, app.Payroll.TaxJobHandler())

	app.Exports = export.NewService(export.Deps{
		Runs:           app.Payroll,
		Directory:      directory,
		Banks:          app.PayConfig,
		Audit:          app.Audit,
		Metrics:        collector,
		DefaultACHMode: cfg.ACHDefaultMode,
	})

	app.Router = app.routes()
	return app, nil
}

func (a *App) routes() http.Handler {
	cfg := a.Config
	perms := auth.StaticPermissions{}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(a.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Method(http.MethodGet, "/metrics", a.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute))

		payrollHandler := payrollhandler.NewHandler(a.Payroll, a.Exports, perms)
		payrollHandler.Idempotency = middleware.NewIdempotencyStore(a.DB)
		payrollHandler.SeedEnabled = cfg.TestSeedAllowed()
		payrollHandler.RegisterRoutes(r)

		auditHandler := audithandler.NewHandler(a.Audit, perms)
		auditHandler.RegisterRoutes(r)

		notificationsHandler := notificationshandler.NewHandler(a.Notifications, perms)
		notificationsHandler.RegisterRoutes(r)
	})

	return router
}

// StartWorkers runs the job workers until ctx ends.
func (a *App) StartWorkers(ctx context.Context) {
	a.Jobs.Start(ctx)
}

// Serve listens on the configured address until ctx ends, then drains in-flight requests and workers.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("clinic payroll server listening", "addr", a.Config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.Jobs.Wait()
	return nil
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
