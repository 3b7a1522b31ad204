package docker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/agentfleet/internal/docker"
	"github.com/agentfleet/agentfleet/pkg/models"
)

// --- mock runtime ---

type mockRuntime struct {
	containers []docker.ContainerSummary
	listErr    error
}

func (m *mockRuntime) ListContainers(_ context.Context) ([]docker.ContainerSummary, error) {
	return m.containers, m.listErr
}
func (m *mockRuntime) IsRunning(_ context.Context, _ string) (bool, error) { return true, nil }
func (m *mockRuntime) Exec(_ context.Context, _ string, _ string, _ int64) (models.ExecResult, error) {
	return models.ExecResult{}, nil
}
func (m *mockRuntime) Ping(_ context.Context) error { return nil }

var _ docker.Runtime = (*mockRuntime)(nil)

// --- ParseContainerName ---

func TestParseContainerName_WithPrefix(t *testing.T) {
	agentType, instance, ok := docker.ParseContainerName("agentfleet-claude-code-1", "agentfleet-")
	require.True(t, ok)
	assert.Equal(t, "claude-code", agentType)
	assert.Equal(t, 1, instance)
}

func TestParseContainerName_LeadingSlash(t *testing.T) {
	agentType, instance, ok := docker.ParseContainerName("/agentfleet-codex-2", "agentfleet-")
	require.True(t, ok)
	assert.Equal(t, "codex", agentType)
	assert.Equal(t, 2, instance)
}

func TestParseContainerName_NoPrefixConfigured(t *testing.T) {
	agentType, instance, ok := docker.ParseContainerName("gemini-cli-3", "")
	require.True(t, ok)
	assert.Equal(t, "gemini-cli", agentType)
	assert.Equal(t, 3, instance)
}

func TestParseContainerName_MissingRequiredPrefix(t *testing.T) {
	_, _, ok := docker.ParseContainerName("claude-code-1", "agentfleet-")
	assert.False(t, ok)
}

func TestParseContainerName_NoInstanceSuffix(t *testing.T) {
	_, _, ok := docker.ParseContainerName("agentfleet-claude-code", "agentfleet-")
	assert.False(t, ok)
}

func TestParseContainerName_ZeroInstance(t *testing.T) {
	_, _, ok := docker.ParseContainerName("agentfleet-codex-0", "agentfleet-")
	assert.False(t, ok)
}

// --- MatchesAgent ---

func TestMatchesAgent_ExactWithPrefix(t *testing.T) {
	assert.True(t, docker.MatchesAgent("agentfleet-claude-code-1", "agentfleet-", "claude-code-1"))
}

func TestMatchesAgent_BareName(t *testing.T) {
	assert.True(t, docker.MatchesAgent("claude-code-1", "agentfleet-", "claude-code-1"))
}

func TestMatchesAgent_ReplicaSuffix(t *testing.T) {
	assert.True(t, docker.MatchesAgent("agentfleet-claude-code-1-2", "agentfleet-", "claude-code-1"))
}

func TestMatchesAgent_DifferentAgent(t *testing.T) {
	assert.False(t, docker.MatchesAgent("agentfleet-codex-1", "agentfleet-", "claude-code-1"))
}

func TestMatchesAgent_SubstringDoesNotMatch(t *testing.T) {
	assert.False(t, docker.MatchesAgent("agentfleet-claude-code-1x", "agentfleet-", "claude-code-1"))
}

// --- FindContainer ---

func TestFindContainer_NoMatch(t *testing.T) {
	rt := &mockRuntime{containers: []docker.ContainerSummary{
		{ID: "abc", Name: "postgres"},
	}}

	name, err := docker.FindContainer(context.Background(), rt, "agentfleet-", "claude-code-1")
	require.NoError(t, err)
	assert.Equal(t, "", name)
}

func TestFindContainer_SingleMatch(t *testing.T) {
	rt := &mockRuntime{containers: []docker.ContainerSummary{
		{ID: "abc", Name: "postgres"},
		{ID: "def", Name: "agentfleet-claude-code-1"},
	}}

	name, err := docker.FindContainer(context.Background(), rt, "agentfleet-", "claude-code-1")
	require.NoError(t, err)
	assert.Equal(t, "agentfleet-claude-code-1", name)
}

func TestFindContainer_MultipleMatchesDeterministic(t *testing.T) {
	rt := &mockRuntime{containers: []docker.ContainerSummary{
		{ID: "b", Name: "claude-code-1"},
		{ID: "a", Name: "agentfleet-claude-code-1"},
	}}

	name, err := docker.FindContainer(context.Background(), rt, "agentfleet-", "claude-code-1")
	require.NoError(t, err)
	// Lexicographically first wins, stable run over run.
	assert.Equal(t, "agentfleet-claude-code-1", name)
}

func TestFindContainer_ListError(t *testing.T) {
	rt := &mockRuntime{listErr: errors.New("daemon unreachable")}

	_, err := docker.FindContainer(context.Background(), rt, "agentfleet-", "claude-code-1")
	require.Error(t, err)
}
