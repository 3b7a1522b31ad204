// Package executor translates job payloads into agent CLI invocations and
// runs them inside the agent's container with bounded output and time.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/agentfleet/agentfleet/internal/docker"
	"github.com/agentfleet/agentfleet/pkg/models"
)

var (
	ErrNoContainerFound     = errors.New("no container found for agent")
	ErrUnsupportedAgentType = errors.New("unsupported agent type")
)

const (
	DefaultTimeout        = 5 * time.Minute
	DefaultMaxOutputBytes = 10 * 1024 * 1024
)

// Executor runs synthesized commands inside agent containers.
type Executor struct {
	runtime   docker.Runtime
	prefix    string
	timeout   time.Duration
	maxOutput int64
}

// New creates an Executor. Zero timeout or maxOutput fall back to defaults.
func New(rt docker.Runtime, containerPrefix string, timeout time.Duration, maxOutput int64) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputBytes
	}
	return &Executor{
		runtime:   rt,
		prefix:    containerPrefix,
		timeout:   timeout,
		maxOutput: maxOutput,
	}
}

// FindContainer resolves the agent id to a live container name, or "" when
// none is running.
func (e *Executor) FindContainer(ctx context.Context, agentID string) (string, error) {
	return docker.FindContainer(ctx, e.runtime, e.prefix, agentID)
}

// ExecuteInContainer builds the command for the agent's type and runs it in
// the agent's container. Timeouts and nonzero exits come back in the result;
// only a missing container is an error.
func (e *Executor) ExecuteInContainer(ctx context.Context, agentID, agentType string, payload models.JobPayload) (models.ExecResult, error) {
	name, err := e.FindContainer(ctx, agentID)
	if err != nil {
		return models.ExecResult{}, fmt.Errorf("resolving container for %s: %w", agentID, err)
	}
	if name == "" {
		return models.ExecResult{}, fmt.Errorf("%w: %s", ErrNoContainerFound, agentID)
	}

	command, err := BuildCommand(agentType, payload)
	if err != nil {
		return models.ExecResult{}, err
	}

	slog.Info("executing in container",
		"agent_id", agentID, "container", name, "command", redactPrompt(command))

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := e.runtime.Exec(execCtx, name, command, e.maxOutput)
	if err != nil {
		return models.ExecResult{}, fmt.Errorf("exec in container %s: %w", name, err)
	}
	return result, nil
}

// CheckContainerHealth reports whether the agent's container is currently
// running. Lookup and runtime failures read as unhealthy, not as errors.
func (e *Executor) CheckContainerHealth(ctx context.Context, agentID string) bool {
	name, err := e.FindContainer(ctx, agentID)
	if err != nil || name == "" {
		return false
	}
	running, err := e.runtime.IsRunning(ctx, name)
	if err != nil {
		slog.Warn("container health check failed", "agent_id", agentID, "container", name, "error", err)
		return false
	}
	return running
}

var quotedArg = regexp.MustCompile(`'(?:[^'\\]|\\.)*'`)

// redactPrompt keeps prompt contents out of the logs while preserving the
// shape of the invocation.
func redactPrompt(command string) string {
	return quotedArg.ReplaceAllString(command, "'...'")
}
