// Package authcheck determines whether a subscription agent holds a valid,
// non-expired credential by reading files inside the agent's own container.
// Credentials never leave the container except as parsed verification state.
package authcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentfleet/agentfleet/internal/docker"
	"github.com/agentfleet/agentfleet/pkg/models"
)

var ErrUnknownProvider = errors.New("unknown auth provider")

// Well-known credential file locations inside agent containers.
const (
	claudeCredentialsPath = "/home/agent/.claude/.credentials.json"
	codexAuthPath         = "/home/agent/.codex/auth.json"
)

// Verifier checks credential state for one agent and provider family.
type Verifier interface {
	VerifyAgentAuth(ctx context.Context, agentID, provider string) (models.AuthResult, error)
}

// ContainerVerifier implements Verifier against the container runtime.
type ContainerVerifier struct {
	runtime docker.Runtime
	prefix  string
	now     func() time.Time
}

func NewContainerVerifier(rt docker.Runtime, containerPrefix string) *ContainerVerifier {
	return &ContainerVerifier{runtime: rt, prefix: containerPrefix, now: time.Now}
}

// VerifyAgentAuth resolves the agent's container and dispatches to the
// provider-specific credential check. A missing container is not an error:
// the agent just is not authenticated yet. Only a provider outside the
// supported set fails.
func (v *ContainerVerifier) VerifyAgentAuth(ctx context.Context, agentID, provider string) (models.AuthResult, error) {
	verifiedAt := v.now().UTC()
	result := models.AuthResult{LastVerifiedAt: verifiedAt}

	var parse func([]byte) models.AuthResult
	var path string
	switch provider {
	case "claude", "anthropic":
		path, parse = claudeCredentialsPath, v.parseClaudeCredentials
	case "openai", "codex":
		path, parse = codexAuthPath, v.parseCodexAuth
	default:
		return result, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	name, err := docker.FindContainer(ctx, v.runtime, v.prefix, agentID)
	if err != nil {
		slog.Warn("auth check could not list containers", "agent_id", agentID, "error", err)
		return result, nil
	}
	if name == "" {
		return result, nil
	}

	// The file is read by a tool inside the container; only its stdout
	// crosses the boundary.
	exec, err := v.runtime.Exec(ctx, name, "cat "+path, 64*1024)
	if err != nil || exec.ExitCode != 0 {
		// Absent file or unreadable container state: not authenticated.
		return result, nil
	}

	parsed := parse([]byte(exec.Stdout))
	parsed.LastVerifiedAt = verifiedAt

	// Expiry always wins over a stale "authenticated" flag.
	if parsed.Expired(verifiedAt) {
		parsed.Authenticated = false
	}
	return parsed, nil
}

// parseClaudeCredentials reads the Claude OAuth credential format:
// {"claudeAiOauth": {"accessToken", "expiresAt" (epoch ms), "subscriptionType"}}.
func (v *ContainerVerifier) parseClaudeCredentials(raw []byte) models.AuthResult {
	var file struct {
		ClaudeAiOauth struct {
			AccessToken      string `json:"accessToken"`
			ExpiresAt        int64  `json:"expiresAt"`
			SubscriptionType string `json:"subscriptionType"`
		} `json:"claudeAiOauth"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		slog.Debug("unparseable claude credentials file", "error", err)
		return models.AuthResult{}
	}

	oauth := file.ClaudeAiOauth
	return models.AuthResult{
		Authenticated:    oauth.AccessToken != "",
		ExpiresAt:        oauth.ExpiresAt,
		SubscriptionType: oauth.SubscriptionType,
	}
}

// parseCodexAuth reads the Codex auth format: {"OPENAI_API_KEY",
// "tokens": {"access_token", "account_id"}, "expires_at" (epoch ms, optional)}.
func (v *ContainerVerifier) parseCodexAuth(raw []byte) models.AuthResult {
	var file struct {
		OpenAIAPIKey string `json:"OPENAI_API_KEY"`
		Tokens       struct {
			AccessToken string `json:"access_token"`
			AccountID   string `json:"account_id"`
		} `json:"tokens"`
		ExpiresAt int64 `json:"expires_at"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		slog.Debug("unparseable codex auth file", "error", err)
		return models.AuthResult{}
	}

	result := models.AuthResult{
		Authenticated: file.Tokens.AccessToken != "" || file.OpenAIAPIKey != "",
		ExpiresAt:     file.ExpiresAt,
	}
	if file.Tokens.AccessToken != "" {
		result.SubscriptionType = "chatgpt"
	}
	return result
}

var _ Verifier = (*ContainerVerifier)(nil)
