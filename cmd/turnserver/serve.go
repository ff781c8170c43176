package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mtgturn/turnserver/internal/coordinator"
	"github.com/mtgturn/turnserver/internal/lifecycle"
	"github.com/mtgturn/turnserver/internal/logging"
	"github.com/mtgturn/turnserver/internal/metricsobs"
	"github.com/mtgturn/turnserver/internal/ratelimit"
	"github.com/mtgturn/turnserver/internal/registry"
	"github.com/mtgturn/turnserver/internal/router"
	"github.com/mtgturn/turnserver/internal/store"
	"github.com/mtgturn/turnserver/internal/transport"
)

// Serve builds the full dependency graph and runs the HTTP server
// until the process receives SIGINT/SIGTERM, then drains gracefully.
func Serve(ctx context.Context, cfg *Config) error {
	logger, err := logging.New(logging.Options{Level: cfg.logLevel, Format: cfg.logFormat})
	if err != nil {
		return err
	}
	defer logger.Sync()

	backend, instanceID, err := openStore(cfg)
	if err != nil {
		return err
	}

	reg := registry.New(backend, registry.WithLogger(logger))
	if n, err := reg.RestoreAll(ctx); err != nil {
		logger.Warn("restore all failed", zap.Error(err))
	} else {
		logger.Info("restored sessions", zap.Int("count", n))
	}

	coord := coordinator.New(
		coordinator.WithLogger(logger),
		coordinator.WithBusyTimeoutObserver(metricsobs.CoordinatorObserver()),
	)

	limiter := ratelimit.New()

	hub := transport.NewHub(nil, reg, coord, limiter, logger)
	hub.WithMetrics(metricsobs.RateLimitRejected)
	hub.EnableRelay(instanceID, backend)

	rt := router.New(reg, coord, backend, hub,
		router.WithObserver(metricsobs.Observer{}),
		router.WithLogger(logger),
		router.WithWriteThrough(cfg.storeKind == "redis"),
	)
	hub.SetRouter(rt)

	lcm := lifecycle.New(reg, coord, backend, hub, instanceID, logger)
	lcm.ReapPeriod = cfg.reapInterval
	lcm.FlushPeriod = cfg.snapshotInterval
	lcm.HeartbeatPeriod = cfg.heartbeatInterval
	lcm.DrainTimeout = cfg.drainTimeout
	lcm.OnPersistenceError = metricsobs.PersistenceErrorOccurred

	runCtx, cancelRun := context.WithCancel(ctx)
	lifecycleDone := make(chan error, 1)
	go func() { lifecycleDone <- lcm.Run(runCtx) }()

	tickCtx, cancelTick := context.WithCancel(ctx)
	go hub.RunTickLoop(tickCtx)
	go sampleGaugeMetrics(tickCtx, reg, hub)

	srv := &http.Server{
		Addr:         cfg.listenAddr,
		Handler:      buildMux(hub),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.listenAddr), zap.String("instance_id", instanceID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	case <-ctx.Done():
	}

	cancelTick()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.drainTimeout+5*time.Second)
	defer cancelDrain()
	lcm.Drain(drainCtx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}

	cancelRun()
	<-lifecycleDone

	logger.Info("server stopped")
	return nil
}

// sampleGaugeMetrics periodically reports the two metrics that aren't
// naturally tied to a single event (active sessions, open
// connections), rather than threading metricsobs into registry/hub.
func sampleGaugeMetrics(ctx context.Context, reg *registry.Registry, hub *transport.Hub) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		metricsobs.SetSessionsActive(reg.Count())
		metricsobs.SetConnectedClients(hub.ConnectionCount())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func openStore(cfg *Config) (store.Store, string, error) {
	switch cfg.storeKind {
	case "redis":
		backend := store.NewRedisStore(store.RedisOptions{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		return backend, uuid.NewString(), nil
	case "local":
		backend, err := store.NewFileStore(cfg.localStoreDir)
		if err != nil {
			return nil, "", err
		}
		return backend, "", nil
	default:
		return store.NewMemStore(), "", nil
	}
}

func buildMux(hub *transport.Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", hub.HandleWebSocket)

	return r
}
