// Package docker wraps the container runtime. All container introspection
// and exec operations in the orchestrator go through the Runtime interface.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/agentfleet/agentfleet/pkg/models"
)

// ContainerSummary describes one running container.
type ContainerSummary struct {
	ID   string
	Name string
}

// Runtime is the container runtime interface. Implementations must be safe
// for concurrent use.
type Runtime interface {
	// ListContainers returns the currently running containers.
	ListContainers(ctx context.Context) ([]ContainerSummary, error)
	// IsRunning reports whether the named container is currently running.
	IsRunning(ctx context.Context, name string) (bool, error)
	// Exec runs a shell command inside the named container, capturing at
	// most maxOutput bytes of each stream. Timeouts and nonzero exits are
	// reported in the result, not as errors.
	Exec(ctx context.Context, name string, command string, maxOutput int64) (models.ExecResult, error)
	// Ping checks connectivity to the runtime daemon.
	Ping(ctx context.Context) error
}

// timeoutExitCode mirrors the shell convention for a command killed by
// exceeding its time limit.
const timeoutExitCode = 124

// Client implements Runtime using the Docker Engine API.
type Client struct {
	api *client.Client
}

// NewClient creates a Docker runtime client from the environment
// (DOCKER_HOST etc.), negotiating the API version with the daemon.
func NewClient() (*Client, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Client{api: api}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.Ping(ctx)
	return err
}

// Close releases the underlying connection to the daemon.
func (c *Client) Close() error {
	return c.api.Close()
}

func (c *Client) ListContainers(ctx context.Context) ([]ContainerSummary, error) {
	list, err := c.api.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	summaries := make([]ContainerSummary, 0, len(list))
	for _, ctr := range list {
		if len(ctr.Names) == 0 {
			continue
		}
		// The engine reports names with a leading slash.
		summaries = append(summaries, ContainerSummary{
			ID:   ctr.ID,
			Name: strings.TrimPrefix(ctr.Names[0], "/"),
		})
	}
	return summaries, nil
}

func (c *Client) IsRunning(ctx context.Context, name string) (bool, error) {
	info, err := c.api.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspecting container %s: %w", name, err)
	}
	return info.State != nil && info.State.Running, nil
}

func (c *Client) Exec(ctx context.Context, name string, command string, maxOutput int64) (models.ExecResult, error) {
	created, err := c.api.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return models.ExecResult{}, fmt.Errorf("creating exec in %s: %w", name, err)
	}

	attached, err := c.api.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return models.ExecResult{}, fmt.Errorf("attaching exec in %s: %w", name, err)
	}
	defer attached.Close()

	stdout := newBoundedBuffer(maxOutput)
	stderr := newBoundedBuffer(maxOutput)

	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, attached.Reader)
		copyDone <- err
	}()

	select {
	case <-ctx.Done():
		// Deadline or cancellation: unblock the copier and wait for it
		// before touching the buffers, then report what we have and the
		// failure in the same shape as a completed run.
		attached.Close()
		<-copyDone
		return models.ExecResult{
			Stdout:   stdout.String(),
			Stderr:   fmt.Sprintf("execution aborted: %v", ctx.Err()),
			ExitCode: timeoutExitCode,
		}, nil
	case err := <-copyDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			return models.ExecResult{}, fmt.Errorf("reading exec output from %s: %w", name, err)
		}
	}

	inspect, err := c.api.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return models.ExecResult{}, fmt.Errorf("inspecting exec in %s: %w", name, err)
	}

	return models.ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// boundedBuffer captures up to max bytes and silently discards the rest,
// so a runaway command keeps draining without growing memory. Writes come
// from the stdcopy goroutine while the aborting caller may read, so both
// sides take the lock.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func newBoundedBuffer(max int64) *boundedBuffer {
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.max - int64(b.buf.Len())
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}

var _ Runtime = (*Client)(nil)
