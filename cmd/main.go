package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/race-service/config"
	"github.com/cwrk-planet/race-service/internal/postgres"
	"github.com/cwrk-planet/race-service/internal/security"
	"github.com/cwrk-planet/race-service/internal/tracking"
	grpcx "github.com/cwrk-planet/race-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/race-service/internal/transport/http"
	"github.com/cwrk-planet/race-service/internal/transport/ws"
	"github.com/cwrk-planet/race-service/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting race-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- postgres ---
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:               cfg.Postgres.DSN,
		MaxConns:          cfg.Postgres.MaxConns,
		MinConns:          cfg.Postgres.MinConns,
		MaxConnLifetime:   cfg.Postgres.MaxConnLifetimeOr(),
		MaxConnIdleTime:   cfg.Postgres.MaxConnIdleTimeOr(),
		HealthCheckPeriod: cfg.Postgres.HealthCheckPeriodOr(),
		ApplicationName:   cfg.Logging.Service,
	})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	store := postgres.NewBreakerStore(postgres.NewStore(pool), postgres.BreakerConfig{
		Name:         "postgres",
		MaxRequests:  cfg.Breaker.MaxRequests,
		Interval:     cfg.Breaker.IntervalOr(),
		Timeout:      cfg.Breaker.TimeoutOr(),
		MinRequests:  cfg.Breaker.MinRequests,
		FailureRatio: cfg.Breaker.FailureRatio,
	})

	// --- engine ---
	tasks := tracking.NewDispatcher(cfg.Tracking.PersistWorkers, cfg.Tracking.PersistQueue, cfg.Tracking.PersistTimeoutOr())
	hub := ws.NewHub()
	engine := tracking.NewEngine(store, hub, tasks, tracking.Config{
		BroadcastInterval:  cfg.Tracking.BroadcastIntervalOr(),
		FinishRadiusMeters: cfg.Tracking.FinishRadiusMeters,
	})

	restoreCtx, cancelRestore := context.WithTimeout(ctx, cfg.Tracking.RestoreTimeoutOr())
	if err := engine.Restore(restoreCtx); err != nil {
		// live tracking still works for races created after startup
		slog.Error("restore race rooms", "err", err)
	}
	cancelRestore()

	// --- WS ---
	var verifier *security.Verifier
	if cfg.Auth.Enabled() {
		verifier = security.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.ClockSkewOr())
	} else {
		slog.Warn("auth.jwtSecret is empty: socket identities are not verified")
	}
	wsServer := ws.NewServer(hub, engine, verifier, ws.Config{
		PingEvery:     cfg.WS.PingEveryOr(),
		ReadLimit:     cfg.WS.ReadLimit,
		SendBuffer:    cfg.WS.SendBuffer,
		RatePerSecond: cfg.WS.RatePerSecond,
		Burst:         cfg.WS.Burst,
	})

	// --- HTTP ---
	router := httpx.NewRouter(httpx.Deps{
		Handler:        httpx.NewHandler(engine),
		WS:             wsServer.HandleWS,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	httpSrv := httpx.NewServer(httpx.ServerConfig{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeoutOr(),
		IdleTimeout:     cfg.HTTP.IdleTimeoutOr(),
		ShutdownTimeout: cfg.HTTP.ShutdownTimeoutOr(),
	}, router)

	// --- gRPC ---
	grpcSrv := grpcx.NewServer()
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	// --- run both servers ---
	errCh := make(chan error, 2)
	httpDone := make(chan struct{})

	go func() {
		defer close(httpDone)
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	grpcSrv.SetServing(true)

	// --- graceful shutdown ---
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal")
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}
	stop()

	grpcSrv.SetServing(false)

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	<-httpDone
	grpcSrv.Stop(ctxShutdown)
	if err := tasks.Close(ctxShutdown); err != nil {
		slog.Warn("persist queue not drained", "err", err)
	}
	slog.Info("stopped")
}
