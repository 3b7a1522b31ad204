package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentfleet/agentfleet/internal/events"
	"github.com/agentfleet/agentfleet/pkg/models"
)

func (r *Registry) runHealthLoop(ctx context.Context) {
	defer r.loopWG.Done()

	ticker := time.NewTicker(r.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.healthSweep(ctx)
		}
	}
}

func (r *Registry) runAuthLoop(ctx context.Context) {
	defer r.loopWG.Done()

	ticker := time.NewTicker(r.cfg.AuthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.VerifyAllAgentsAuth(ctx)
		}
	}
}

// healthSweep probes every agent concurrently. A failed or slow probe
// affects only its own agent; the sweep always settles.
func (r *Registry) healthSweep(ctx context.Context) {
	type target struct {
		id   string
		host string
		port int
	}

	r.mu.RLock()
	targets := make([]target, 0, len(r.agents))
	for _, agent := range r.agents {
		targets = append(targets, target{id: agent.ID, host: agent.Host, port: agent.Port})
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t target) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("panic in health probe", "agent_id", t.id, "error", rec)
				}
			}()

			healthy, detail := r.probeAgent(ctx, t.id, t.host, t.port)
			r.applyHealthResult(t.id, healthy, detail)
		}(t)
	}
	wg.Wait()
}

// probeAgent checks liveness in the configured mode: a lightweight socket
// connect to the agent's local endpoint, or a container-running check
// through the executor.
func (r *Registry) probeAgent(ctx context.Context, agentID, host string, port int) (bool, string) {
	if r.cfg.HealthCheckMode == "socket" && port > 0 {
		if host == "" {
			host = "localhost"
		}
		addr := fmt.Sprintf("%s:%d", host, port)
		conn, err := r.dial("tcp", addr, r.cfg.SocketProbeTimeout)
		if err != nil {
			return false, fmt.Sprintf("connect %s: %v", addr, err)
		}
		conn.Close()
		return true, ""
	}

	if r.health.CheckContainerHealth(ctx, agentID) {
		return true, ""
	}
	return false, "container not running"
}

// applyHealthResult updates status and base health only. Authentication
// state is owned by the auth loop and is carried forward unchanged.
func (r *Registry) applyHealthResult(agentID string, healthy bool, detail string) {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[agentID]
	if !ok {
		return
	}
	agent.Health.LastCheck = now
	if healthy {
		agent.Status = models.AgentStatusAvailable
		agent.Health.Status = models.HealthStatusHealthy
		agent.Health.Message = ""
		return
	}
	agent.Status = models.AgentStatusOffline
	agent.Health.Status = models.HealthStatusUnhealthy
	agent.Health.Message = detail
}

// VerifyAllAgentsAuth re-verifies every subscription agent that has a
// provider, concurrently, isolating per-agent failures. Used by the
// periodic auth loop and exposed as a manual trigger.
func (r *Registry) VerifyAllAgentsAuth(ctx context.Context) {
	type target struct {
		id       string
		provider string
	}

	r.mu.RLock()
	targets := make([]target, 0, len(r.agents))
	for _, agent := range r.agents {
		if agent.AuthType == models.AuthTypeSubscription && agent.Provider != "" {
			targets = append(targets, target{id: agent.ID, provider: agent.Provider})
		}
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t target) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("panic in auth verification", "agent_id", t.id, "error", rec)
				}
			}()

			result, err := r.verifier.VerifyAgentAuth(ctx, t.id, t.provider)
			r.applyAuthResult(t.id, result, err)
		}(t)
	}
	wg.Wait()
}

// applyAuthResult merges one verification outcome into the agent's health.
// It touches only the auth fields; status and base health belong to the
// health loop.
func (r *Registry) applyAuthResult(agentID string, result models.AuthResult, err error) {
	authed := result.Authenticated && err == nil
	message := authMessage(result, err)

	r.mu.Lock()
	agent, ok := r.agents[agentID]
	if !ok || agent.AuthType != models.AuthTypeSubscription {
		r.mu.Unlock()
		return
	}
	agent.Health.Authenticated = &authed
	agent.Health.AuthExpiresAt = result.ExpiresAt
	if !result.LastVerifiedAt.IsZero() {
		verifiedAt := result.LastVerifiedAt
		agent.Health.AuthLastVerifiedAt = &verifiedAt
	}
	if result.SubscriptionType != "" {
		agent.Health.SubscriptionType = result.SubscriptionType
	}
	agent.Health.Message = message
	r.mu.Unlock()

	slog.Info("agent auth verified", "agent_id", agentID, "authenticated", authed)
	r.publish(events.TypeAgentAuth, agentID, message)
}

// authMessage derives the human-readable health message for one
// verification outcome.
func authMessage(result models.AuthResult, err error) string {
	if err != nil {
		return fmt.Sprintf("auth check failed: %v", err)
	}
	if !result.Authenticated {
		if result.Expired(time.Now()) {
			return fmt.Sprintf("authentication expired at %s",
				time.UnixMilli(result.ExpiresAt).UTC().Format(time.RFC3339))
		}
		return "not authenticated"
	}
	msg := "authenticated"
	if result.SubscriptionType != "" {
		msg += " (" + result.SubscriptionType + ")"
	}
	if result.ExpiresAt > 0 {
		msg += ", expires " + time.UnixMilli(result.ExpiresAt).UTC().Format(time.RFC3339)
	}
	return msg
}
