// Package main is the entrypoint for the AgentFleet orchestrator server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentfleet/agentfleet/internal/api"
	"github.com/agentfleet/agentfleet/internal/api/handler"
	mw "github.com/agentfleet/agentfleet/internal/api/middleware"
	"github.com/agentfleet/agentfleet/internal/authcheck"
	"github.com/agentfleet/agentfleet/internal/cache"
	"github.com/agentfleet/agentfleet/internal/config"
	"github.com/agentfleet/agentfleet/internal/docker"
	"github.com/agentfleet/agentfleet/internal/events"
	"github.com/agentfleet/agentfleet/internal/executor"
	"github.com/agentfleet/agentfleet/internal/fleet"
	"github.com/agentfleet/agentfleet/internal/jobs"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"auth_mode", cfg.Fleet.AuthMode,
		"health_check_mode", cfg.Fleet.HealthCheckMode,
		"env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to the container runtime
	runtime, err := docker.NewClient()
	if err != nil {
		return fmt.Errorf("connect docker: %w", err)
	}
	defer runtime.Close()

	// 3. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 4. Build the core: executor, auth verifier, event bus, registry, jobs
	exec := executor.New(runtime, cfg.Fleet.ContainerPrefix, cfg.Executor.Timeout, cfg.Executor.MaxOutputBytes)
	verifier := authcheck.NewContainerVerifier(runtime, cfg.Fleet.ContainerPrefix)
	bus := events.NewBus()

	registry := fleet.NewRegistry(cfg.Fleet, runtime, exec, verifier, bus)
	engine := jobs.NewEngine(exec, redisCache, bus)
	registry.SetJobEngine(engine)

	// Telemetry observer: the core publishes whether or not anyone listens.
	eventCh, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	go func() {
		for ev := range eventCh {
			slog.Info("event", "type", ev.Type, "agent_id", ev.AgentID, "job_id", ev.JobID, "detail", ev.Detail)
		}
	}()

	// 5. Discover agents and start the health/auth loops. A failed
	// discovery leaves an empty fleet, not a dead server.
	registry.Initialize(ctx)
	defer registry.Shutdown()
	defer engine.Shutdown()

	// 6. Build router with dependencies
	rateLimit := mw.NewRateLimit(redisCache, cfg.RateLimit.RequestsPerMinute)

	deps := api.Dependencies{
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(registry, map[string]handler.Pinger{
			"cache":  redisCache,
			"docker": runtime,
		}),
		ListAgents:        handler.NewListAgentsHandler(registry),
		RegisterAgent:     handler.NewRegisterAgentHandler(registry),
		GetAgent:          handler.NewGetAgentHandler(registry),
		DeregisterAgent:   handler.NewDeregisterAgentHandler(registry),
		Heartbeat:         handler.NewHeartbeatHandler(registry),
		MarkAuthenticated: handler.NewMarkAuthenticatedHandler(registry),
		VerifyAuth:        handler.NewVerifyAuthHandler(registry, registry),
		SubmitJob:         handler.NewSubmitJobHandler(registry),
		GetJob:            handler.NewGetJobHandler(engine),
		CancelJob:         handler.NewCancelJobHandler(engine),
		ListAgentJobs:     handler.NewListAgentJobsHandler(engine),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
