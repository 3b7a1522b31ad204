package handler

import (
	"context"
	"net/http"

	"github.com/agentfleet/agentfleet/internal/api/response"
	"github.com/agentfleet/agentfleet/pkg/models"
)

// Pinger is any dependency with a liveness check (the redis cache, the
// docker runtime).
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns GET /api/v1/health: aggregate fleet health
// derived from the agent registry, plus service connectivity checks.
func NewHealthHandler(svc FleetService, services map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string, len(services))
		degraded := false
		for name, p := range services {
			checks[name] = "ok"
			if err := p.Ping(r.Context()); err != nil {
				checks[name] = "degraded"
				degraded = true
			}
		}

		summary := map[string]int{
			models.HealthStatusHealthy:   0,
			models.HealthStatusUnhealthy: 0,
			models.HealthStatusUnknown:   0,
		}
		agents := svc.Agents()
		for _, a := range agents {
			summary[a.Health.Status]++
		}

		body := map[string]any{
			"status":   "ok",
			"services": checks,
			"fleet": map[string]any{
				"total":  len(agents),
				"agents": summary,
			},
		}

		if degraded {
			body["status"] = "degraded"
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", body)
			return
		}
		response.JSON(w, body)
	}
}
