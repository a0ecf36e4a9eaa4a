package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"budget-tracker/internal/config"
	"budget-tracker/internal/events"
	"budget-tracker/internal/events/kafka"
	"budget-tracker/internal/handlers"
	applog "budget-tracker/internal/log"
	"budget-tracker/internal/pictures"
	"budget-tracker/internal/service"
	"budget-tracker/internal/storage"
	"budget-tracker/web"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	sessionCleanupInterval = time.Hour
	limiterCleanupInterval = 5 * time.Minute
	shutdownTimeout        = 30 * time.Second
)

func main() {
	cfg := config.Load()

	logCfg := applog.DefaultConfig()
	logCfg.Level = applog.ParseLevel(cfg.LogLevel)
	logger := applog.New(logCfg)
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", applog.FieldError, err)
		os.Exit(1)
	}

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		logger.Error("Failed to open database", applog.FieldError, err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("Publishing events to Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	defer publisher.Close()

	proxies, err := applog.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Error("Invalid trusted proxies", applog.FieldError, err)
		os.Exit(1)
	}

	authSvc := service.NewAuthService(db, db, publisher)
	recordSvc := service.NewRecordService(db, publisher)
	limiter := handlers.NewRateLimiter(rate.Limit(cfg.AuthRateLimitRPS), cfg.AuthRateLimitBurst, proxies)

	h := handlers.NewHandlers(authSvc, recordSvc, pictures.NewStore(cfg.PictureDir), handlers.Options{
		Templates:    web.Templates(),
		SecureCookie: cfg.SecureCookie,
		AuthLimiter:  limiter,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        setupRouter(h, db, cfg.StaticDir, logger, proxies),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return cleanSessions(ctx, authSvc, logger.WithComponent(applog.ComponentAuth))
	})

	g.Go(func() error {
		return limiter.Run(ctx, limiterCleanupInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

// setupRouter wraps the page routes with session resolution and request logging.
func setupRouter(h *handlers.Handlers, db *storage.DB, staticDir string, logger *applog.Logger, proxies *applog.TrustedProxies) http.Handler {
	mux := h.Routes(staticDir)
	mux.Handle("GET /healthz", handlers.Health(func(r *http.Request) error {
		return db.Ping(r.Context())
	}))
	return applog.Middleware(logger, proxies)(h.SessionMiddleware(mux))
}

// cleanSessions removes expired sessions at start-up and then hourly until ctx is done.
func cleanSessions(ctx context.Context, authSvc *service.AuthService, logger *applog.Logger) error {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		n, err := authSvc.CleanExpiredSessions(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("Session cleanup failed", applog.FieldOperation, applog.OpCleanup, applog.FieldError, err)
		} else if n > 0 {
			logger.Info("Expired sessions removed", applog.FieldOperation, applog.OpCleanup, "count", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
