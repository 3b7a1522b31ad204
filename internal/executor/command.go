package executor

import (
	"fmt"
	"strings"

	"github.com/agentfleet/agentfleet/pkg/models"
)

// defaultModels used when neither the job options nor the agent record name one.
var defaultModels = map[string]string{
	models.AgentTypeClaudeCode: "claude-3-5-sonnet-20241022",
	models.AgentTypeCodex:      "gpt-4",
	models.AgentTypeGeminiCLI:  "gemini-1.5-pro",
	models.AgentTypeAider:      "gpt-4o",
}

// BuildCommand maps (agent type, payload) to the exact shell invocation for
// that agent's CLI. Prompt text is always shell-escaped; options.Model
// overrides the default model; a concrete workspace path prefixes the
// command with a directory change.
func BuildCommand(agentType string, payload models.JobPayload) (string, error) {
	model := ""
	if payload.Options != nil {
		model = payload.Options.Model
	}
	if model == "" {
		model = defaultModels[agentType]
	}

	prompt := shellQuote(payload.Prompt)

	var cmd string
	switch agentType {
	case models.AgentTypeClaudeCode:
		cmd = fmt.Sprintf("claude --model %s -p %s", shellQuote(model), prompt)
	case models.AgentTypeCodex:
		cmd = fmt.Sprintf("codex exec --model %s %s", shellQuote(model), prompt)
	case models.AgentTypeGeminiCLI:
		cmd = fmt.Sprintf("gemini -m %s -p %s", shellQuote(model), prompt)
	case models.AgentTypeAider:
		cmd = fmt.Sprintf("aider --model %s --yes --message %s", shellQuote(model), prompt)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAgentType, agentType)
	}

	if payload.Options != nil && len(payload.Options.ExtraArgs) > 0 {
		args := make([]string, len(payload.Options.ExtraArgs))
		for i, a := range payload.Options.ExtraArgs {
			args[i] = shellQuote(a)
		}
		cmd += " " + strings.Join(args, " ")
	}

	if ws := workspacePath(payload.Context); ws != "" {
		cmd = fmt.Sprintf("cd %s && %s", shellQuote(ws), cmd)
	}

	return cmd, nil
}

// workspacePath returns the workspace when it is a real path value, not an
// unexpanded "${...}" template placeholder.
func workspacePath(jc *models.JobContext) string {
	if jc == nil || jc.Workspace == "" {
		return ""
	}
	if strings.Contains(jc.Workspace, "${") {
		return ""
	}
	return jc.Workspace
}

// shellQuote wraps s in single quotes, escaping embedded single quotes so
// the result is safe to interpolate into an sh -c command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
