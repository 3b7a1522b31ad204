package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/agentfleet/internal/api/handler"
	"github.com/agentfleet/agentfleet/internal/fleet"
	"github.com/agentfleet/agentfleet/internal/jobs"
	"github.com/agentfleet/agentfleet/pkg/models"
)

type mockJobs struct {
	jobs       map[uuid.UUID]*models.Job
	page       []*models.Job
	total      int
	lastFilter jobs.ListFilter
}

func newMockJobs() *mockJobs {
	return &mockJobs{jobs: map[uuid.UUID]*models.Job{}}
}

func (m *mockJobs) GetJob(id uuid.UUID) (*models.Job, bool) {
	j, ok := m.jobs[id]
	return j, ok
}

func (m *mockJobs) GetJobsByAgent(_ string, filter jobs.ListFilter) ([]*models.Job, int) {
	m.lastFilter = filter
	return m.page, m.total
}

func (m *mockJobs) CancelJob(id uuid.UUID) bool {
	j, ok := m.jobs[id]
	if !ok || models.TerminalJobStatus(j.Status) {
		return false
	}
	j.Status = models.JobStatusCancelled
	return true
}

func TestSubmitJobHandler_Accepted(t *testing.T) {
	svc := newMockFleet()
	svc.submitJob = &models.Job{
		ID:        uuid.New(),
		AgentID:   "a1",
		Status:    models.JobStatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/a1/jobs",
		strings.NewReader(`{"prompt":"hi"}`))
	rec := serve(http.MethodPost, "/api/v1/agents/{agentID}/jobs", handler.NewSubmitJobHandler(svc), req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var body struct {
		Data struct {
			JobID  string `json:"job_id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, svc.submitJob.ID.String(), body.Data.JobID)
	assert.Equal(t, models.JobStatusQueued, body.Data.Status)
}

func TestSubmitJobHandler_EmptyPrompt(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/a1/jobs",
		strings.NewReader(`{"prompt":""}`))
	rec := serve(http.MethodPost, "/api/v1/agents/{agentID}/jobs", handler.NewSubmitJobHandler(newMockFleet()), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "prompt is required")
}

func TestSubmitJobHandler_GateErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown agent", fleet.ErrAgentNotFound, http.StatusNotFound, "AGENT_NOT_FOUND"},
		{"offline", fleet.ErrAgentOffline, http.StatusServiceUnavailable, "AGENT_OFFLINE"},
		{"not authenticated", fleet.ErrNotAuthenticated, http.StatusServiceUnavailable, "NOT_AUTHENTICATED"},
		{"auth expired", fleet.ErrAuthExpired, http.StatusServiceUnavailable, "AUTH_EXPIRED"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newMockFleet()
			svc.submitErr = tc.err

			req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/a1/jobs",
				strings.NewReader(`{"prompt":"hi"}`))
			rec := serve(http.MethodPost, "/api/v1/agents/{agentID}/jobs", handler.NewSubmitJobHandler(svc), req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.code)
		})
	}
}

func TestGetJobHandler(t *testing.T) {
	svc := newMockJobs()
	id := uuid.New()
	svc.jobs[id] = &models.Job{ID: id, Status: models.JobStatusCompleted}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id.String(), nil)
	rec := serve(http.MethodGet, "/api/v1/jobs/{jobID}", handler.NewGetJobHandler(svc), req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), models.JobStatusCompleted)
}

func TestGetJobHandler_BadID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
	rec := serve(http.MethodGet, "/api/v1/jobs/{jobID}", handler.NewGetJobHandler(newMockJobs()), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobHandler_NotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil)
	rec := serve(http.MethodGet, "/api/v1/jobs/{jobID}", handler.NewGetJobHandler(newMockJobs()), req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "JOB_NOT_FOUND")
}

func TestCancelJobHandler(t *testing.T) {
	svc := newMockJobs()
	id := uuid.New()
	svc.jobs[id] = &models.Job{ID: id, Status: models.JobStatusRunning}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+id.String(), nil)
	rec := serve(http.MethodDelete, "/api/v1/jobs/{jobID}", handler.NewCancelJobHandler(svc), req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), models.JobStatusCancelled)
}

func TestCancelJobHandler_TerminalConflict(t *testing.T) {
	svc := newMockJobs()
	id := uuid.New()
	svc.jobs[id] = &models.Job{ID: id, Status: models.JobStatusCompleted}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+id.String(), nil)
	rec := serve(http.MethodDelete, "/api/v1/jobs/{jobID}", handler.NewCancelJobHandler(svc), req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "JOB_NOT_CANCELLABLE")
}

func TestCancelJobHandler_NotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+uuid.NewString(), nil)
	rec := serve(http.MethodDelete, "/api/v1/jobs/{jobID}", handler.NewCancelJobHandler(newMockJobs()), req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAgentJobsHandler(t *testing.T) {
	svc := newMockJobs()
	svc.page = []*models.Job{{ID: uuid.New(), AgentID: "a1", Status: models.JobStatusCompleted}}
	svc.total = 3

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/agents/a1/jobs?status=completed&limit=1&offset=1", nil)
	rec := serve(http.MethodGet, "/api/v1/agents/{agentID}/jobs", handler.NewListAgentJobsHandler(svc), req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jobs.ListFilter{Status: "completed", Limit: 1, Offset: 1}, svc.lastFilter)

	var body struct {
		Meta struct {
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
			Total  int `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Meta.Total)
	assert.Equal(t, 1, body.Meta.Limit)
	assert.Equal(t, 1, body.Meta.Offset)
}
