package fleet

import "github.com/agentfleet/agentfleet/pkg/models"

// typeInfo is the static metadata for one supported agent type. Discovery
// uses it to flesh out agents found by container name alone.
type typeInfo struct {
	DisplayName  string
	Provider     string
	DefaultModel string
	BaseURL      string
	BasePort     int
}

var agentTypes = map[string]typeInfo{
	models.AgentTypeClaudeCode: {
		DisplayName:  "Claude Code",
		Provider:     "claude",
		DefaultModel: "claude-3-5-sonnet-20241022",
		BaseURL:      "http://litellm-proxy:4000",
		BasePort:     8301,
	},
	models.AgentTypeCodex: {
		DisplayName:  "Codex",
		Provider:     "openai",
		DefaultModel: "gpt-4",
		BaseURL:      "http://litellm-proxy:4000",
		BasePort:     8302,
	},
	models.AgentTypeGeminiCLI: {
		DisplayName:  "Gemini CLI",
		Provider:     "google",
		DefaultModel: "gemini-1.5-pro",
		BaseURL:      "http://litellm-proxy:4000",
		BasePort:     8303,
	},
	models.AgentTypeAider: {
		// Aider brings its own API key; no subscription provider exists
		// for it, so fleet-wide subscription mode falls back to api_key.
		DisplayName:  "Aider",
		DefaultModel: "gpt-4o",
		BaseURL:      "http://litellm-proxy:4000",
		BasePort:     8304,
	},
}
