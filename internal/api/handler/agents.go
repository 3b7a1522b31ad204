// Package handler contains the HTTP handlers of the transport shell. Each
// handler is a thin adapter between the wire format and the fleet core.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentfleet/agentfleet/internal/api/response"
	"github.com/agentfleet/agentfleet/internal/fleet"
	"github.com/agentfleet/agentfleet/pkg/models"
)

// FleetService is the slice of the fleet registry the agent handlers use.
type FleetService interface {
	Agents() []*models.Agent
	Agent(id string) (*models.Agent, bool)
	RegisterAgent(input fleet.RegisterAgentInput) (*models.Agent, error)
	DeregisterAgent(id string) bool
	UpdateHeartbeat(id, status string, metadata map[string]string) bool
	MarkAgentAuthenticated(id string) (bool, error)
	PassthroughURL(agent *models.Agent) string
	SubmitJob(agentID string, payload models.JobPayload) (*models.Job, error)
}

// agentView is an Agent plus its derived passthrough routing.
type agentView struct {
	*models.Agent
	PassthroughURL string `json:"passthrough_url,omitempty"`
}

func view(svc FleetService, agent *models.Agent) agentView {
	return agentView{Agent: agent, PassthroughURL: svc.PassthroughURL(agent)}
}

// NewListAgentsHandler returns GET /api/v1/agents.
func NewListAgentsHandler(svc FleetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agents := svc.Agents()
		views := make([]agentView, len(agents))
		for i, a := range agents {
			views[i] = view(svc, a)
		}
		response.JSON(w, views)
	}
}

// NewGetAgentHandler returns GET /api/v1/agents/{agentID}.
func NewGetAgentHandler(svc FleetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := chi.URLParam(r, "agentID")
		agent, ok := svc.Agent(agentID)
		if !ok {
			response.Error(w, http.StatusNotFound, "AGENT_NOT_FOUND", "No such agent", nil)
			return
		}
		response.JSON(w, view(svc, agent))
	}
}

// NewRegisterAgentHandler returns POST /api/v1/agents.
func NewRegisterAgentHandler(svc FleetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input fleet.RegisterAgentInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		agent, err := svc.RegisterAgent(input)
		if err != nil {
			writeFleetError(w, err)
			return
		}
		response.Created(w, view(svc, agent))
	}
}

// NewDeregisterAgentHandler returns DELETE /api/v1/agents/{agentID}.
func NewDeregisterAgentHandler(svc FleetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := chi.URLParam(r, "agentID")
		if !svc.DeregisterAgent(agentID) {
			response.Error(w, http.StatusNotFound, "AGENT_NOT_FOUND", "No such agent", nil)
			return
		}
		response.JSON(w, map[string]any{"deregistered": agentID})
	}
}

// NewHeartbeatHandler returns POST /api/v1/agents/{agentID}/heartbeat.
func NewHeartbeatHandler(svc FleetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := chi.URLParam(r, "agentID")

		var req struct {
			Status   string            `json:"status,omitempty"`
			Metadata map[string]string `json:"metadata,omitempty"`
		}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
				return
			}
		}

		if !svc.UpdateHeartbeat(agentID, req.Status, req.Metadata) {
			response.Error(w, http.StatusNotFound, "AGENT_NOT_FOUND", "No such agent", nil)
			return
		}
		response.JSON(w, map[string]any{"agent_id": agentID, "heartbeat": "ok"})
	}
}

// NewMarkAuthenticatedHandler returns POST /api/v1/agents/{agentID}/authenticated.
func NewMarkAuthenticatedHandler(svc FleetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := chi.URLParam(r, "agentID")

		ok, err := svc.MarkAgentAuthenticated(agentID)
		if err != nil {
			writeFleetError(w, err)
			return
		}
		if !ok {
			response.Error(w, http.StatusNotFound, "AGENT_NOT_FOUND", "No such agent", nil)
			return
		}
		response.JSON(w, map[string]any{"agent_id": agentID, "authenticated": true})
	}
}

// AuthSweeper triggers a manual fleet-wide auth verification sweep.
type AuthSweeper interface {
	VerifyAllAgentsAuth(ctx context.Context)
}

// NewVerifyAuthHandler returns POST /api/v1/agents/verify-auth. The sweep
// runs synchronously; the response reflects post-sweep agent state.
func NewVerifyAuthHandler(svc FleetService, sweeper AuthSweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sweeper.VerifyAllAgentsAuth(r.Context())

		agents := svc.Agents()
		views := make([]agentView, len(agents))
		for i, a := range agents {
			views[i] = view(svc, a)
		}
		response.JSON(w, views)
	}
}

// writeFleetError maps fleet sentinel errors onto HTTP error responses.
func writeFleetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fleet.ErrAgentNotFound):
		response.Error(w, http.StatusNotFound, "AGENT_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, fleet.ErrDuplicateAgent):
		response.Error(w, http.StatusConflict, "DUPLICATE_AGENT", err.Error(), nil)
	case errors.Is(err, fleet.ErrValidation):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, fleet.ErrInvalidAuthType):
		response.Error(w, http.StatusBadRequest, "INVALID_AUTH_TYPE", err.Error(), nil)
	case errors.Is(err, fleet.ErrAgentOffline):
		response.Error(w, http.StatusServiceUnavailable, "AGENT_OFFLINE", err.Error(), nil)
	case errors.Is(err, fleet.ErrNotAuthenticated):
		response.Error(w, http.StatusServiceUnavailable, "NOT_AUTHENTICATED", err.Error(), nil)
	case errors.Is(err, fleet.ErrAuthExpired):
		response.Error(w, http.StatusServiceUnavailable, "AUTH_EXPIRED", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
	}
}
