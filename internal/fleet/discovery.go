package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentfleet/agentfleet/internal/docker"
	"github.com/agentfleet/agentfleet/internal/events"
	"github.com/agentfleet/agentfleet/pkg/models"
)

// DiscoverAgents lists running containers and registers every one whose
// name matches the <prefix><agent-type>-<instance> convention and whose
// type is in the static metadata table. Unmatched containers are ignored.
// Already-known agent ids are left untouched, so discovery is re-runnable.
func (r *Registry) DiscoverAgents(ctx context.Context) error {
	containers, err := r.runtime.ListContainers(ctx)
	if err != nil {
		return fmt.Errorf("listing containers: %w", err)
	}

	discovered := 0
	for _, c := range containers {
		agentType, instance, ok := docker.ParseContainerName(c.Name, r.cfg.ContainerPrefix)
		if !ok {
			continue
		}
		info, known := agentTypes[agentType]
		if !known {
			continue
		}

		agentID := fmt.Sprintf("%s-%d", agentType, instance)
		agent := r.buildDiscoveredAgent(agentID, agentType, instance, info)

		r.mu.Lock()
		if _, exists := r.agents[agentID]; exists {
			r.mu.Unlock()
			continue
		}
		r.agents[agentID] = agent
		r.mu.Unlock()

		discovered++
		slog.Info("agent discovered", "agent_id", agentID, "container", c.Name, "auth_type", agent.AuthType)
		r.publish(events.TypeAgentRegistered, agentID, agentType)

		if agent.AuthType == models.AuthTypeSubscription {
			r.spawnAuthVerification(agentID, agent.Provider)
		}
	}

	slog.Info("agent discovery complete", "containers", len(containers), "discovered", discovered)
	return nil
}

func (r *Registry) buildDiscoveredAgent(agentID, agentType string, instance int, info typeInfo) *models.Agent {
	// Fleet-wide auth mode; subscription needs a configured provider and
	// model for the type, otherwise the agent falls back to api_key.
	authType := r.cfg.AuthMode
	if authType == models.AuthTypeSubscription && (info.Provider == "" || info.DefaultModel == "") {
		authType = models.AuthTypeAPIKey
	}

	now := time.Now().UTC()
	agent := &models.Agent{
		ID:       agentID,
		Name:     fmt.Sprintf("%s %d", info.DisplayName, instance),
		Type:     agentType,
		Status:   models.AgentStatusAvailable,
		AuthType: authType,
		Provider: info.Provider,
		Model:    info.DefaultModel,
		BaseURL:  info.BaseURL,
		Host:     "localhost",
		Port:     info.BasePort + instance - 1,
		Health: models.AgentHealth{
			Status:    models.HealthStatusUnknown,
			LastCheck: now,
		},
		RegisteredAt:  now,
		LastHeartbeat: now,
	}
	if authType == models.AuthTypeSubscription {
		notAuthed := false
		agent.Health.Authenticated = &notAuthed
	}
	return agent
}
