package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agentfleet/agentfleet/internal/api/response"
	"github.com/agentfleet/agentfleet/internal/jobs"
	"github.com/agentfleet/agentfleet/pkg/models"
)

// JobService is the slice of the job engine the job handlers use.
type JobService interface {
	GetJob(id uuid.UUID) (*models.Job, bool)
	GetJobsByAgent(agentID string, filter jobs.ListFilter) ([]*models.Job, int)
	CancelJob(id uuid.UUID) bool
}

// NewSubmitJobHandler returns POST /api/v1/agents/{agentID}/jobs. The gate
// lives in the fleet registry; an accepted job comes back queued.
func NewSubmitJobHandler(svc FleetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := chi.URLParam(r, "agentID")

		var payload models.JobPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if payload.Prompt == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "prompt is required", nil)
			return
		}

		job, err := svc.SubmitJob(agentID, payload)
		if err != nil {
			writeFleetError(w, err)
			return
		}

		response.Accepted(w, map[string]any{
			"job_id":     job.ID,
			"status":     job.Status,
			"created_at": job.CreatedAt,
		})
	}
}

// NewGetJobHandler returns GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
			return
		}

		job, ok := svc.GetJob(jobID)
		if !ok {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No such job", nil)
			return
		}
		response.JSON(w, job)
	}
}

// NewCancelJobHandler returns DELETE /api/v1/jobs/{jobID}. Cancellation is
// only accepted from a non-terminal state.
func NewCancelJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
			return
		}

		if !svc.CancelJob(jobID) {
			_, exists := svc.GetJob(jobID)
			if !exists {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No such job", nil)
				return
			}
			response.Error(w, http.StatusConflict, "JOB_NOT_CANCELLABLE",
				"Job already reached a terminal state", nil)
			return
		}
		response.JSON(w, map[string]any{"job_id": jobID, "status": models.JobStatusCancelled})
	}
}

// NewListAgentJobsHandler returns GET /api/v1/agents/{agentID}/jobs with
// optional status filter and limit/offset pagination.
func NewListAgentJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := chi.URLParam(r, "agentID")

		filter := jobs.ListFilter{
			Status: r.URL.Query().Get("status"),
			Limit:  queryInt(r, "limit", 0),
			Offset: queryInt(r, "offset", 0),
		}

		page, total := svc.GetJobsByAgent(agentID, filter)
		if filter.Limit <= 0 {
			filter.Limit = 50
		}
		response.Collection(w, page, response.PaginationMeta{
			Limit:  filter.Limit,
			Offset: filter.Offset,
			Total:  total,
		})
	}
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
