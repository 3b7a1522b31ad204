package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/agentfleet/agentfleet/internal/api/middleware"
	"github.com/agentfleet/agentfleet/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler     http.HandlerFunc
	ListAgents        http.HandlerFunc
	RegisterAgent     http.HandlerFunc
	GetAgent          http.HandlerFunc
	DeregisterAgent   http.HandlerFunc
	Heartbeat         http.HandlerFunc
	MarkAuthenticated http.HandlerFunc
	VerifyAuth        http.HandlerFunc
	SubmitJob         http.HandlerFunc
	GetJob            http.HandlerFunc
	CancelJob         http.HandlerFunc
	ListAgentJobs     http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Get("/api/v1/agents", orNotImplemented(deps.ListAgents))
		r.Post("/api/v1/agents", orNotImplemented(deps.RegisterAgent))
		r.Post("/api/v1/agents/verify-auth", orNotImplemented(deps.VerifyAuth))
		r.Get("/api/v1/agents/{agentID}", orNotImplemented(deps.GetAgent))
		r.Delete("/api/v1/agents/{agentID}", orNotImplemented(deps.DeregisterAgent))
		r.Post("/api/v1/agents/{agentID}/heartbeat", orNotImplemented(deps.Heartbeat))
		r.Post("/api/v1/agents/{agentID}/authenticated", orNotImplemented(deps.MarkAuthenticated))

		r.Post("/api/v1/agents/{agentID}/jobs", orNotImplemented(deps.SubmitJob))
		r.Get("/api/v1/agents/{agentID}/jobs", orNotImplemented(deps.ListAgentJobs))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJob))
		r.Delete("/api/v1/jobs/{jobID}", orNotImplemented(deps.CancelJob))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
