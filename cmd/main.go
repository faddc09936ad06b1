package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remindme/internal/config"
	"remindme/internal/delivery"
	"remindme/internal/handlers"
	"remindme/internal/middleware"
	"remindme/internal/scheduler"
	"remindme/internal/storage"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file (optional)")
	storageType := flag.String("storage", "", "override storage backend: memory, sqlite, postgres, or mongo")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := newLogger(*debug)
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalw("failed to load config", "path", *configPath, "error", err)
	}
	if *storageType != "" {
		cfg.Storage.Backend = *storageType
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatalw("failed to initialize storage", "backend", cfg.Storage.Backend, "error", err)
	}
	log.Infow("storage initialized", "backend", cfg.Storage.Backend)

	var sink delivery.Sink
	if cfg.SMTP.Host != "" {
		sink = delivery.NewSMTPSink(cfg.SMTP, log)
		log.Infow("using SMTP delivery", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port)
	} else {
		sink = delivery.NewLogSink(log)
		log.Infow("no SMTP host configured, logging deliveries instead")
	}

	sched := scheduler.New(store, sink, cfg.Scheduler, log)
	sched.Start(ctx)

	limiter := middleware.NewRateLimiter(cfg.Limits.RateLimit, cfg.Limits.RateWindow, log)
	defer limiter.Stop()
	cache := middleware.NewResponseCache(cfg.Limits.CacheTTL)
	defer cache.Stop()

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(limiter.Middleware, cache.Middleware)
	handlers.New(store, sched, cache, log).Routes(api)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Infow("starting server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("shutdown failed", "error", err)
	}
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}
