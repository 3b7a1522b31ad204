// Package jobs owns job records and drives them through the
// queued → running → completed/failed/cancelled lifecycle.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/agentfleet/agentfleet/internal/cache"
	"github.com/agentfleet/agentfleet/internal/events"
	"github.com/agentfleet/agentfleet/pkg/models"
)

// Executor is the slice of the command executor the engine depends on.
type Executor interface {
	ExecuteInContainer(ctx context.Context, agentID, agentType string, payload models.JobPayload) (models.ExecResult, error)
}

const (
	jobStatusTTL     = 30 * time.Minute
	maxStderrExcerpt = 2000

	defaultListLimit = 50
)

// Engine is the job lifecycle engine. Job records live in process memory
// for the life of the server; accumulation is unbounded.
type Engine struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*models.Job
	cancels map[uuid.UUID]context.CancelFunc

	executor Executor
	cache    cache.Cache
	bus      *events.Bus
	wg       sync.WaitGroup
}

// NewEngine creates a job engine. The cache mirror is best-effort; a nil-op
// cache is fine for tests.
func NewEngine(exec Executor, c cache.Cache, bus *events.Bus) *Engine {
	return &Engine{
		jobs:     make(map[uuid.UUID]*models.Job),
		cancels:  make(map[uuid.UUID]context.CancelFunc),
		executor: exec,
		cache:    c,
		bus:      bus,
	}
}

// CreateJob allocates a queued job record and immediately schedules
// asynchronous processing. The caller sees the queued record right away.
func (e *Engine) CreateJob(agentID, agentType string, payload models.JobPayload) *models.Job {
	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		AgentID:   agentID,
		Status:    models.JobStatusQueued,
		Prompt:    payload.Prompt,
		Context:   payload.Context,
		Options:   payload.Options,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.jobs[job.ID] = job
	e.cancels[job.ID] = cancel
	e.mu.Unlock()

	e.mirrorStatus(job.ID, models.JobStatusQueued)
	e.publish(events.TypeJobQueued, agentID, job.ID, "")

	e.wg.Add(1)
	go e.process(ctx, job.ID, agentID, agentType, payload)

	return job.Clone()
}

// process runs one job to a terminal state. It recovers from panics and
// never leaves a job unresolved.
func (e *Engine) process(ctx context.Context, jobID uuid.UUID, agentID, agentType string, payload models.JobPayload) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic processing job", "job_id", jobID, "error", r)
			e.fail(jobID, agentID, fmt.Sprintf("panic: %v", r))
		}
	}()

	e.transition(jobID, agentID, models.JobStatusRunning, func(j *models.Job) {
		j.Progress = 10
	})

	result, err := e.executor.ExecuteInContainer(ctx, agentID, agentType, payload)
	if err != nil {
		e.fail(jobID, agentID, err.Error())
		return
	}

	if result.ExitCode != 0 {
		detail := fmt.Sprintf("command exited with code %d: %s",
			result.ExitCode, excerpt(result.Stderr, maxStderrExcerpt))
		e.transition(jobID, agentID, models.JobStatusFailed, func(j *models.Job) {
			j.Error = detail
			j.Result = &models.JobResult{
				Stdout:      result.Stdout,
				Stderr:      result.Stderr,
				ExitCode:    result.ExitCode,
				CompletedAt: time.Now().UTC(),
			}
		})
		return
	}

	e.transition(jobID, agentID, models.JobStatusCompleted, func(j *models.Job) {
		j.Progress = 100
		j.Result = &models.JobResult{
			Stdout:      result.Stdout,
			Stderr:      result.Stderr,
			ExitCode:    result.ExitCode,
			CompletedAt: time.Now().UTC(),
		}
	})
}

func (e *Engine) fail(jobID uuid.UUID, agentID, detail string) {
	e.transition(jobID, agentID, models.JobStatusFailed, func(j *models.Job) {
		j.Error = detail
	})
}

// transition moves a job to a new status unless it already reached a
// terminal one. Terminal states never revert; the late write from an
// aborted execution after a cancel is a no-op here.
func (e *Engine) transition(jobID uuid.UUID, agentID, status string, mutate func(*models.Job)) bool {
	e.mu.Lock()
	job, ok := e.jobs[jobID]
	if !ok || models.TerminalJobStatus(job.Status) {
		e.mu.Unlock()
		return false
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	if mutate != nil {
		mutate(job)
	}
	if models.TerminalJobStatus(status) {
		delete(e.cancels, jobID)
	}
	e.mu.Unlock()

	e.mirrorStatus(jobID, status)
	e.publish("job:"+status, agentID, jobID, "")
	return true
}

// GetJob returns a copy of the job record, or false if unknown.
func (e *Engine) GetJob(jobID uuid.UUID) (*models.Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// ListFilter narrows and paginates a by-agent job listing.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// GetJobsByAgent returns the agent's jobs newest-first, plus the total
// count before pagination.
func (e *Engine) GetJobsByAgent(agentID string, filter ListFilter) ([]*models.Job, int) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	e.mu.Lock()
	var matched []*models.Job
	for _, job := range e.jobs {
		if job.AgentID != agentID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		matched = nil
	} else {
		matched = matched[filter.Offset:]
		if len(matched) > filter.Limit {
			matched = matched[:filter.Limit]
		}
	}

	page := make([]*models.Job, len(matched))
	for i, job := range matched {
		page[i] = job.Clone()
	}
	e.mu.Unlock()

	return page, total
}

// CancelJob cancels a queued or running job. It returns false for unknown
// ids and jobs already in a terminal state. The in-flight execution context
// is cancelled, aborting the container exec wait.
func (e *Engine) CancelJob(jobID uuid.UUID) bool {
	e.mu.Lock()
	job, ok := e.jobs[jobID]
	if !ok || models.TerminalJobStatus(job.Status) {
		e.mu.Unlock()
		return false
	}
	job.Status = models.JobStatusCancelled
	job.UpdatedAt = time.Now().UTC()
	agentID := job.AgentID
	cancel := e.cancels[jobID]
	delete(e.cancels, jobID)
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.mirrorStatus(jobID, models.JobStatusCancelled)
	e.publish(events.TypeJobCancelled, agentID, jobID, "")
	return true
}

// Shutdown cancels every non-terminal job, waits for processing goroutines
// to drain, and clears all records.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	var pending []uuid.UUID
	for id, job := range e.jobs {
		if !models.TerminalJobStatus(job.Status) {
			pending = append(pending, id)
		}
	}
	e.mu.Unlock()

	for _, id := range pending {
		e.CancelJob(id)
	}
	e.wg.Wait()

	e.mu.Lock()
	e.jobs = make(map[uuid.UUID]*models.Job)
	e.cancels = make(map[uuid.UUID]context.CancelFunc)
	e.mu.Unlock()
}

func (e *Engine) mirrorStatus(jobID uuid.UUID, status string) {
	if e.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.cache.SetJobStatus(ctx, jobID, status, jobStatusTTL); err != nil {
		slog.Debug("job status cache write failed", "job_id", jobID, "error", err)
	}
}

func (e *Engine) publish(eventType, agentID string, jobID uuid.UUID, detail string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.Event{
		Type:    eventType,
		AgentID: agentID,
		JobID:   jobID.String(),
		Detail:  detail,
	})
}

// excerpt truncates s to maxBytes without splitting UTF-8 runes.
func excerpt(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
