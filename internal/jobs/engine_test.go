package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/agentfleet/internal/events"
	"github.com/agentfleet/agentfleet/internal/jobs"
	"github.com/agentfleet/agentfleet/pkg/models"
)

type mockExecutor struct {
	result   models.ExecResult
	err      error
	panicMsg string
	block    chan struct{} // when non-nil, Exec waits for close or cancellation
}

func (m *mockExecutor) ExecuteInContainer(ctx context.Context, agentID, agentType string, payload models.JobPayload) (models.ExecResult, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return models.ExecResult{}, ctx.Err()
		}
	}
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	return m.result, m.err
}

func waitForStatus(t *testing.T, e *jobs.Engine, jobID uuid.UUID, status string) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		j, ok := e.GetJob(jobID)
		if !ok {
			return false
		}
		job = j
		return j.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestCreateJob_ReturnsQueuedRecord(t *testing.T) {
	exec := &mockExecutor{block: make(chan struct{})}
	engine := jobs.NewEngine(exec, nil, nil)
	defer engine.Shutdown()

	job := engine.CreateJob("claude-code-1", models.AgentTypeClaudeCode,
		models.JobPayload{Prompt: "hi"})

	require.NotNil(t, job)
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, "claude-code-1", job.AgentID)
	assert.Equal(t, "hi", job.Prompt)
	assert.Contains(t, []string{models.JobStatusQueued, models.JobStatusRunning}, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestProcess_Completes(t *testing.T) {
	exec := &mockExecutor{result: models.ExecResult{Stdout: "all good", ExitCode: 0}}
	engine := jobs.NewEngine(exec, nil, nil)
	defer engine.Shutdown()

	job := engine.CreateJob("claude-code-1", models.AgentTypeClaudeCode,
		models.JobPayload{Prompt: "hi"})

	done := waitForStatus(t, engine, job.ID, models.JobStatusCompleted)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.Result)
	assert.Equal(t, "all good", done.Result.Stdout)
	assert.Equal(t, 0, done.Result.ExitCode)
	assert.Empty(t, done.Error)
}

func TestProcess_NonzeroExitFails(t *testing.T) {
	exec := &mockExecutor{result: models.ExecResult{Stderr: "compile error", ExitCode: 2}}
	engine := jobs.NewEngine(exec, nil, nil)
	defer engine.Shutdown()

	job := engine.CreateJob("codex-1", models.AgentTypeCodex, models.JobPayload{Prompt: "hi"})

	failed := waitForStatus(t, engine, job.ID, models.JobStatusFailed)
	assert.Contains(t, failed.Error, "exited with code 2")
	assert.Contains(t, failed.Error, "compile error")
	require.NotNil(t, failed.Result)
	assert.Equal(t, 2, failed.Result.ExitCode)
}

func TestProcess_ExecutorErrorFails(t *testing.T) {
	exec := &mockExecutor{err: errors.New("no container found for agent: codex-1")}
	engine := jobs.NewEngine(exec, nil, nil)
	defer engine.Shutdown()

	job := engine.CreateJob("codex-1", models.AgentTypeCodex, models.JobPayload{Prompt: "hi"})

	failed := waitForStatus(t, engine, job.ID, models.JobStatusFailed)
	assert.Contains(t, failed.Error, "no container found")
	assert.Nil(t, failed.Result)
}

func TestProcess_PanicResolvesToFailed(t *testing.T) {
	exec := &mockExecutor{panicMsg: "executor blew up"}
	engine := jobs.NewEngine(exec, nil, nil)
	defer engine.Shutdown()

	job := engine.CreateJob("codex-1", models.AgentTypeCodex, models.JobPayload{Prompt: "hi"})

	failed := waitForStatus(t, engine, job.ID, models.JobStatusFailed)
	assert.Contains(t, failed.Error, "panic")
}

func TestGetJob_Unknown(t *testing.T) {
	engine := jobs.NewEngine(&mockExecutor{}, nil, nil)
	defer engine.Shutdown()

	_, ok := engine.GetJob(uuid.New())
	assert.False(t, ok)
}

func TestGetJob_ReturnsCopy(t *testing.T) {
	exec := &mockExecutor{result: models.ExecResult{ExitCode: 0}}
	engine := jobs.NewEngine(exec, nil, nil)
	defer engine.Shutdown()

	job := engine.CreateJob("claude-code-1", models.AgentTypeClaudeCode,
		models.JobPayload{Prompt: "hi"})
	waitForStatus(t, engine, job.ID, models.JobStatusCompleted)

	copy1, ok := engine.GetJob(job.ID)
	require.True(t, ok)
	copy1.Status = "mangled"
	copy1.Result.Stdout = "mangled"

	copy2, ok := engine.GetJob(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.JobStatusCompleted, copy2.Status)
	assert.NotEqual(t, "mangled", copy2.Result.Stdout)
}

func TestCancelJob_RunningJob(t *testing.T) {
	exec := &mockExecutor{block: make(chan struct{})}
	engine := jobs.NewEngine(exec, nil, nil)
	defer engine.Shutdown()

	job := engine.CreateJob("claude-code-1", models.AgentTypeClaudeCode,
		models.JobPayload{Prompt: "hi"})
	waitForStatus(t, engine, job.ID, models.JobStatusRunning)

	require.True(t, engine.CancelJob(job.ID))

	cancelled, ok := engine.GetJob(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)

	// The aborted execution must not overwrite the terminal state.
	time.Sleep(50 * time.Millisecond)
	after, _ := engine.GetJob(job.ID)
	assert.Equal(t, models.JobStatusCancelled, after.Status)
}

func TestCancelJob_UnknownAndTerminal(t *testing.T) {
	exec := &mockExecutor{result: models.ExecResult{ExitCode: 0}}
	engine := jobs.NewEngine(exec, nil, nil)
	defer engine.Shutdown()

	assert.False(t, engine.CancelJob(uuid.New()))

	job := engine.CreateJob("claude-code-1", models.AgentTypeClaudeCode,
		models.JobPayload{Prompt: "hi"})
	waitForStatus(t, engine, job.ID, models.JobStatusCompleted)
	assert.False(t, engine.CancelJob(job.ID))
}

func TestGetJobsByAgent_Pagination(t *testing.T) {
	exec := &mockExecutor{result: models.ExecResult{ExitCode: 0}}
	engine := jobs.NewEngine(exec, nil, nil)
	defer engine.Shutdown()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		job := engine.CreateJob("claude-code-1", models.AgentTypeClaudeCode,
			models.JobPayload{Prompt: "hi"})
		ids = append(ids, job.ID)
		time.Sleep(2 * time.Millisecond) // distinct CreatedAt ordering
	}
	engine.CreateJob("codex-1", models.AgentTypeCodex, models.JobPayload{Prompt: "other agent"})

	for _, id := range ids {
		waitForStatus(t, engine, id, models.JobStatusCompleted)
	}

	page, total := engine.GetJobsByAgent("claude-code-1", jobs.ListFilter{Limit: 1, Offset: 1})
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	// Newest first: offset 1 is the second most recent.
	assert.Equal(t, ids[1], page[0].ID)
}

func TestGetJobsByAgent_StatusFilter(t *testing.T) {
	exec := &mockExecutor{block: make(chan struct{})}
	engine := jobs.NewEngine(exec, nil, nil)
	defer engine.Shutdown()

	running := engine.CreateJob("claude-code-1", models.AgentTypeClaudeCode,
		models.JobPayload{Prompt: "hi"})
	waitForStatus(t, engine, running.ID, models.JobStatusRunning)

	cancelled := engine.CreateJob("claude-code-1", models.AgentTypeClaudeCode,
		models.JobPayload{Prompt: "hi"})
	waitForStatus(t, engine, cancelled.ID, models.JobStatusRunning)
	require.True(t, engine.CancelJob(cancelled.ID))

	page, total := engine.GetJobsByAgent("claude-code-1", jobs.ListFilter{Status: models.JobStatusRunning})
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, running.ID, page[0].ID)
}

func TestGetJobsByAgent_OffsetBeyondTotal(t *testing.T) {
	exec := &mockExecutor{result: models.ExecResult{ExitCode: 0}}
	engine := jobs.NewEngine(exec, nil, nil)
	defer engine.Shutdown()

	job := engine.CreateJob("claude-code-1", models.AgentTypeClaudeCode,
		models.JobPayload{Prompt: "hi"})
	waitForStatus(t, engine, job.ID, models.JobStatusCompleted)

	page, total := engine.GetJobsByAgent("claude-code-1", jobs.ListFilter{Offset: 10})
	assert.Equal(t, 1, total)
	assert.Empty(t, page)
}

func TestShutdown_CancelsPendingJobs(t *testing.T) {
	exec := &mockExecutor{block: make(chan struct{})}
	engine := jobs.NewEngine(exec, nil, nil)

	job := engine.CreateJob("claude-code-1", models.AgentTypeClaudeCode,
		models.JobPayload{Prompt: "hi"})
	waitForStatus(t, engine, job.ID, models.JobStatusRunning)

	engine.Shutdown()

	// Records are cleared after drain.
	_, ok := engine.GetJob(job.ID)
	assert.False(t, ok)
}

func TestLifecycleEventsPublished(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	exec := &mockExecutor{result: models.ExecResult{ExitCode: 0}}
	engine := jobs.NewEngine(exec, nil, bus)
	defer engine.Shutdown()

	job := engine.CreateJob("claude-code-1", models.AgentTypeClaudeCode,
		models.JobPayload{Prompt: "hi"})
	waitForStatus(t, engine, job.ID, models.JobStatusCompleted)

	seen := map[string]bool{}
	deadline := time.After(time.Second)
	for len(seen) < 3 {
		select {
		case e := <-ch:
			if e.JobID == job.ID.String() {
				seen[e.Type] = true
			}
		case <-deadline:
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	assert.True(t, seen[events.TypeJobQueued])
	assert.True(t, seen[events.TypeJobRunning])
	assert.True(t, seen[events.TypeJobCompleted])
}
