// Package models contains shared data models used across the AgentFleet codebase.
package models

import "time"

// Supported agent types. Each maps to a coding-assistant CLI running
// inside a container.
const (
	AgentTypeClaudeCode = "claude-code"
	AgentTypeCodex      = "codex"
	AgentTypeGeminiCLI  = "gemini-cli"
	AgentTypeAider      = "aider"
)

// Agent availability states.
const (
	AgentStatusAvailable = "available"
	AgentStatusBusy      = "busy"
	AgentStatusOffline   = "offline"
)

// Agent health states.
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
	HealthStatusUnknown   = "unknown"
)

// Agent authentication modes.
const (
	AuthTypeAPIKey       = "api_key"
	AuthTypeSubscription = "subscription"
)

// AgentHealth records the liveness and authentication state of an agent.
// The health-check loop owns Status/LastCheck/Message; the auth-verification
// loop owns the Auth* fields. Neither loop writes the other's fields.
type AgentHealth struct {
	Status             string     `json:"status"`
	LastCheck          time.Time  `json:"last_check"`
	Message            string     `json:"message,omitempty"`
	Authenticated      *bool      `json:"authenticated,omitempty"` // nil for api_key agents
	AuthExpiresAt      int64      `json:"auth_expires_at,omitempty"` // epoch ms
	AuthLastVerifiedAt *time.Time `json:"auth_last_verified_at,omitempty"`
	SubscriptionType   string     `json:"subscription_type,omitempty"`
}

// Agent is a registered or discovered worker.
type Agent struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Type          string            `json:"type"`
	Status        string            `json:"status"`
	Health        AgentHealth       `json:"health"`
	AuthType      string            `json:"auth_type"`
	Provider      string            `json:"provider,omitempty"`
	Model         string            `json:"model,omitempty"`
	BaseURL       string            `json:"base_url,omitempty"`
	Host          string            `json:"host,omitempty"`
	Port          int               `json:"port,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	RegisteredAt  time.Time         `json:"registered_at"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
}

// Clone returns a deep copy. Registry accessors hand out clones so callers
// can never mutate registry state through a returned pointer.
func (a *Agent) Clone() *Agent {
	c := *a
	if a.Health.Authenticated != nil {
		v := *a.Health.Authenticated
		c.Health.Authenticated = &v
	}
	if a.Health.AuthLastVerifiedAt != nil {
		t := *a.Health.AuthLastVerifiedAt
		c.Health.AuthLastVerifiedAt = &t
	}
	if a.Metadata != nil {
		c.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// IsAuthenticated reports whether a subscription agent currently holds a
// verified credential. Always false for agents without auth state.
func (a *Agent) IsAuthenticated() bool {
	return a.Health.Authenticated != nil && *a.Health.Authenticated
}
