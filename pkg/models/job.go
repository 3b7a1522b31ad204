package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// TerminalJobStatus reports whether a status admits no further transitions.
func TerminalJobStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobContext carries the files/workspace a job should run against.
type JobContext struct {
	Workspace string   `json:"workspace,omitempty"`
	Files     []string `json:"files,omitempty"`
}

// JobOptions tunes how the agent CLI is invoked for one job.
type JobOptions struct {
	Model     string   `json:"model,omitempty"`
	ExtraArgs []string `json:"extra_args,omitempty"`
}

// JobPayload is the client-supplied body of a job submission.
type JobPayload struct {
	Prompt  string      `json:"prompt"`
	Context *JobContext `json:"context,omitempty"`
	Options *JobOptions `json:"options,omitempty"`
}

// JobResult holds the raw output of a completed execution.
type JobResult struct {
	Stdout      string    `json:"stdout"`
	Stderr      string    `json:"stderr"`
	ExitCode    int       `json:"exit_code"`
	CompletedAt time.Time `json:"completed_at"`
}

// Job tracks one unit of dispatched prompt-execution work. The API returns
// a job id on submission; the client polls until status is terminal.
type Job struct {
	ID        uuid.UUID   `json:"id"`
	AgentID   string      `json:"agent_id"`
	Status    string      `json:"status"`
	Prompt    string      `json:"prompt"`
	Context   *JobContext `json:"context,omitempty"`
	Options   *JobOptions `json:"options,omitempty"`
	Progress  int         `json:"progress"`
	Result    *JobResult  `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of the job record.
func (j *Job) Clone() *Job {
	c := *j
	if j.Context != nil {
		cc := *j.Context
		cc.Files = append([]string(nil), j.Context.Files...)
		c.Context = &cc
	}
	if j.Options != nil {
		oc := *j.Options
		oc.ExtraArgs = append([]string(nil), j.Options.ExtraArgs...)
		c.Options = &oc
	}
	if j.Result != nil {
		rc := *j.Result
		c.Result = &rc
	}
	return &c
}
