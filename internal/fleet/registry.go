// Package fleet is the agent registry and fleet manager: the single source
// of truth for all agents, owner of the health and auth verification loops,
// and the gate in front of job submission.
package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentfleet/agentfleet/internal/authcheck"
	"github.com/agentfleet/agentfleet/internal/config"
	"github.com/agentfleet/agentfleet/internal/docker"
	"github.com/agentfleet/agentfleet/internal/events"
	"github.com/agentfleet/agentfleet/pkg/models"
)

// ContainerHealth is the slice of the executor the health loop depends on.
type ContainerHealth interface {
	CheckContainerHealth(ctx context.Context, agentID string) bool
}

// JobCreator is the slice of the job engine the submission gate hands off to.
type JobCreator interface {
	CreateJob(agentID, agentType string, payload models.JobPayload) *models.Job
}

type dialFunc func(network, addr string, timeout time.Duration) (net.Conn, error)

// Registry owns the agent map. All access goes through its methods; the map
// is guarded by r.mu and accessors return deep copies.
type Registry struct {
	cfg      config.FleetConfig
	runtime  docker.Runtime
	health   ContainerHealth
	verifier authcheck.Verifier
	jobs     JobCreator
	bus      *events.Bus
	dial     dialFunc

	mu            sync.RWMutex
	agents        map[string]*models.Agent
	verifyCancels map[string]context.CancelFunc

	initOnce   sync.Once
	loopCancel context.CancelFunc
	loopWG     sync.WaitGroup
}

// NewRegistry creates a fleet registry. The job engine is attached
// separately with SetJobEngine because the two reference each other at
// wiring time.
func NewRegistry(cfg config.FleetConfig, rt docker.Runtime, health ContainerHealth, verifier authcheck.Verifier, bus *events.Bus) *Registry {
	return &Registry{
		cfg:           cfg,
		runtime:       rt,
		health:        health,
		verifier:      verifier,
		bus:           bus,
		dial:          net.DialTimeout,
		agents:        make(map[string]*models.Agent),
		verifyCancels: make(map[string]context.CancelFunc),
	}
}

// SetJobEngine attaches the job lifecycle engine used by SubmitJob.
func (r *Registry) SetJobEngine(jobs JobCreator) {
	r.jobs = jobs
}

// Initialize discovers agents and starts the health-check and
// auth-verification loops. Discovery failures are logged, not fatal: an
// empty or partial fleet is an acceptable degraded state. Safe to call once
// at startup; subsequent calls are no-ops.
func (r *Registry) Initialize(ctx context.Context) {
	r.initOnce.Do(func() {
		if err := r.DiscoverAgents(ctx); err != nil {
			slog.Error("agent discovery failed, starting with empty fleet", "error", err)
		}

		loopCtx, cancel := context.WithCancel(context.Background())
		r.loopCancel = cancel

		r.loopWG.Add(2)
		go r.runHealthLoop(loopCtx)
		go r.runAuthLoop(loopCtx)
	})
}

// RegisterAgentInput is the explicit registration payload, used by
// self-registering agents.
type RegisterAgentInput struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	AuthType string            `json:"auth_type,omitempty"`
	Provider string            `json:"provider,omitempty"`
	Model    string            `json:"model,omitempty"`
	BaseURL  string            `json:"base_url,omitempty"`
	Host     string            `json:"host,omitempty"`
	Port     int               `json:"port,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RegisterAgent adds an explicitly registered agent to the fleet. For
// subscription agents with a provider it also fires a detached initial auth
// verification whose failure never fails the registration.
func (r *Registry) RegisterAgent(input RegisterAgentInput) (*models.Agent, error) {
	if input.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrValidation)
	}
	if input.Type == "" {
		return nil, fmt.Errorf("%w: type is required", ErrValidation)
	}

	authType := input.AuthType
	if authType == "" {
		authType = models.AuthTypeAPIKey
	}
	switch authType {
	case models.AuthTypeAPIKey, models.AuthTypeSubscription:
	default:
		return nil, fmt.Errorf("%w: unknown auth type %q", ErrValidation, authType)
	}
	if authType == models.AuthTypeSubscription && (input.Provider == "" || input.Model == "") {
		return nil, fmt.Errorf("%w: subscription agents require provider and model", ErrValidation)
	}

	now := time.Now().UTC()
	agent := &models.Agent{
		ID:       input.ID,
		Name:     input.Name,
		Type:     input.Type,
		Status:   models.AgentStatusAvailable,
		AuthType: authType,
		Provider: input.Provider,
		Model:    input.Model,
		BaseURL:  input.BaseURL,
		Host:     input.Host,
		Port:     input.Port,
		Metadata: input.Metadata,
		Health: models.AgentHealth{
			Status:    models.HealthStatusHealthy,
			LastCheck: now,
		},
		RegisteredAt:  now,
		LastHeartbeat: now,
	}
	if agent.Name == "" {
		agent.Name = agent.ID
	}
	if authType == models.AuthTypeSubscription {
		notAuthed := false
		agent.Health.Authenticated = &notAuthed
	}

	r.mu.Lock()
	if _, exists := r.agents[agent.ID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAgent, agent.ID)
	}
	r.agents[agent.ID] = agent
	r.mu.Unlock()

	slog.Info("agent registered", "agent_id", agent.ID, "type", agent.Type, "auth_type", agent.AuthType)
	r.publish(events.TypeAgentRegistered, agent.ID, agent.Type)

	if agent.AuthType == models.AuthTypeSubscription && agent.Provider != "" {
		r.spawnAuthVerification(agent.ID, agent.Provider)
	}

	return agent.Clone(), nil
}

// spawnAuthVerification runs one detached credential verification for an
// agent. Its failure is logged and folded into the agent's health, never
// propagated to the caller.
func (r *Registry) spawnAuthVerification(agentID, provider string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)

	r.mu.Lock()
	if prior, ok := r.verifyCancels[agentID]; ok {
		prior()
	}
	r.verifyCancels[agentID] = cancel
	r.mu.Unlock()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic in auth verification", "agent_id", agentID, "error", rec)
			}
			r.mu.Lock()
			delete(r.verifyCancels, agentID)
			r.mu.Unlock()
			cancel()
		}()

		result, err := r.verifier.VerifyAgentAuth(ctx, agentID, provider)
		r.applyAuthResult(agentID, result, err)
	}()
}

// DeregisterAgent removes an agent, cancelling any in-flight verification
// held for it. Returns whether the agent existed.
func (r *Registry) DeregisterAgent(agentID string) bool {
	r.mu.Lock()
	_, exists := r.agents[agentID]
	if exists {
		delete(r.agents, agentID)
	}
	cancel := r.verifyCancels[agentID]
	delete(r.verifyCancels, agentID)
	r.mu.Unlock()

	if !exists {
		return false
	}
	if cancel != nil {
		cancel()
	}
	slog.Info("agent deregistered", "agent_id", agentID)
	r.publish(events.TypeAgentDeregistered, agentID, "")
	return true
}

// UpdateHeartbeat refreshes the agent's heartbeat and base health,
// optionally overriding status and merging metadata. Authentication state
// is carried forward unchanged. Returns false for unknown agents.
func (r *Registry) UpdateHeartbeat(agentID, status string, metadata map[string]string) bool {
	now := time.Now().UTC()

	r.mu.Lock()
	agent, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	agent.LastHeartbeat = now
	agent.Health.Status = models.HealthStatusHealthy
	agent.Health.LastCheck = now
	agent.Health.Message = ""
	switch status {
	case models.AgentStatusAvailable, models.AgentStatusBusy, models.AgentStatusOffline:
		agent.Status = status
	}
	if len(metadata) > 0 {
		if agent.Metadata == nil {
			agent.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			agent.Metadata[k] = v
		}
	}
	r.mu.Unlock()

	r.publish(events.TypeAgentHeartbeat, agentID, status)
	return true
}

// MarkAgentAuthenticated manually flips a subscription agent to
// authenticated, for flows where a human completed the container login
// out of band. Returns false for unknown agents; ErrInvalidAuthType for
// api_key agents, which never carry auth state.
func (r *Registry) MarkAgentAuthenticated(agentID string) (bool, error) {
	r.mu.Lock()
	agent, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	if agent.AuthType != models.AuthTypeSubscription {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: agent %s uses api_key auth", ErrInvalidAuthType, agentID)
	}
	authed := true
	agent.Health.Authenticated = &authed
	agent.Health.Message = "manually marked authenticated"
	r.mu.Unlock()

	slog.Info("agent marked authenticated", "agent_id", agentID)
	r.publish(events.TypeAgentAuth, agentID, "manual")
	return true, nil
}

// Agents returns copies of all agents, sorted by id.
func (r *Registry) Agents() []*models.Agent {
	r.mu.RLock()
	out := make([]*models.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		out = append(out, agent.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Agent returns a copy of one agent, or false if unknown.
func (r *Registry) Agent(agentID string) (*models.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[agentID]
	if !ok {
		return nil, false
	}
	return agent.Clone(), true
}

// PassthroughURL maps a subscription agent's provider to the proxy path its
// traffic should route through. Returns "" for api_key agents, agents
// without a provider, and unrecognized providers.
func (r *Registry) PassthroughURL(agent *models.Agent) string {
	if agent == nil || agent.AuthType != models.AuthTypeSubscription || agent.Provider == "" {
		return ""
	}
	base := strings.TrimSuffix(r.cfg.PassthroughBaseURL, "/")
	switch strings.ToLower(agent.Provider) {
	case "claude", "anthropic":
		return base + "/claude"
	case "openai", "codex":
		return base + "/codex"
	}
	return ""
}

// SubmitJob gates a job submission on the agent's availability and
// authentication state, then hands the accepted job to the lifecycle
// engine. On success the agent is marked busy.
func (r *Registry) SubmitJob(agentID string, payload models.JobPayload) (*models.Job, error) {
	now := time.Now().UTC()

	r.mu.Lock()
	agent, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	if agent.Status == models.AgentStatusOffline {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAgentOffline, agentID)
	}
	if agent.AuthType == models.AuthTypeSubscription {
		if !agent.IsAuthenticated() {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrNotAuthenticated, agentID)
		}
		if agent.Health.AuthExpiresAt > 0 && agent.Health.AuthExpiresAt < now.UnixMilli() {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrAuthExpired, agentID)
		}
	}
	agent.Status = models.AgentStatusBusy
	agentType := agent.Type
	r.mu.Unlock()

	return r.jobs.CreateJob(agentID, agentType, payload), nil
}

// Shutdown stops both periodic loops, cancels held verifications, and
// clears the registry.
func (r *Registry) Shutdown() {
	if r.loopCancel != nil {
		r.loopCancel()
	}
	r.loopWG.Wait()

	r.mu.Lock()
	for _, cancel := range r.verifyCancels {
		cancel()
	}
	r.verifyCancels = make(map[string]context.CancelFunc)
	r.agents = make(map[string]*models.Agent)
	r.mu.Unlock()
}

func (r *Registry) publish(eventType, agentID, detail string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{Type: eventType, AgentID: agentID, Detail: detail})
}
