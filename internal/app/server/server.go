package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"payledger/internal/domain/audit"
	"payledger/internal/domain/auth"
	"payledger/internal/domain/payroll"
	"payledger/internal/platform/config"
	cryptoutil "payledger/internal/platform/crypto"
	"payledger/internal/platform/db"
	"payledger/internal/platform/email"
	"payledger/internal/platform/jobs"
	"payledger/internal/platform/metrics"
	audithandler "payledger/internal/transport/http/handlers/audit"
	payrollhandler "payledger/internal/transport/http/handlers/payroll"
	"payledger/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Service *payroll.Service
	Jobs    *jobs.Service
	Metrics *metrics.Collector
	Router  http.Handler
}

// New wires the store selected by cfg.Store, the payroll service and the
// HTTP router. The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	crypto, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	app := &App{Config: cfg, Metrics: metrics.New()}

	var store payroll.StoreAPI
	var events audithandler.Reader
	var auditor payroll.Auditor
	switch cfg.Store {
	case config.StoreMemory:
		slog.Warn("using in-memory store, data is lost on exit")
		store = payroll.NewMemoryStore()
		log := audit.NewLog()
		events, auditor = log, log
	default:
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		app.DB = pool
		if cfg.RunMigrations {
			if _, err := db.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
		store = payroll.NewStore(pool, crypto)
		svc := audit.New(pool)
		events, auditor = svc, svc
	}

	app.Service = payroll.NewService(store, payroll.Options{
		ChallengeTTL:    cfg.ChallengeTTL,
		MaxCodeAttempts: cfg.MaxCodeAttempts,
		Audit:           auditor,
		Observer:        app.Metrics,
		Logger:          slog.Default(),
	})
	app.Jobs = jobs.New(app.DB, app.Metrics)

	payrollHandler := payrollhandler.NewHandler(app.Service, auth.StaticPermissions{}, email.New(cfg), cfg.EmailFrom, app.Jobs)
	payrollHandler.ExposeCodes = cfg.Environment == "development" && !cfg.EmailEnabled
	if payrollHandler.ExposeCodes {
		slog.Warn("email delivery disabled, challenge codes are returned in responses")
	}
	auditHandler := audithandler.NewHandler(events, auth.StaticPermissions{})

	app.Router = app.routes(payrollHandler, auditHandler)
	return app, nil
}

func (a *App) routes(payrollHandler *payrollhandler.Handler, auditHandler *audithandler.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(a.Metrics))
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(a.Config.Environment == "production"))
	router.Use(middleware.BodyLimit(a.Config.MaxBodyBytes))
	router.Use(middleware.Auth(a.Config.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := a.DB.Ping(ctx); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if a.Config.MetricsEnabled {
		router.Handle("/metrics", a.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(300, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(40, time.Minute))
		payrollHandler.RegisterRoutes(r)
		auditHandler.RegisterRoutes(r)
	})
	return router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	a.Jobs.Start(ctx, a.Service, a.Config.PendingSweepInterval)

	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("payledger server listening", "addr", a.Config.Addr, "store", a.Config.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
