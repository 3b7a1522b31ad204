package docker

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Containers follow the convention <optional-prefix><agent-type>-<instance>,
// e.g. "agentfleet-claude-code-1" or bare "codex-2". The agent id is
// <agent-type>-<instance>.
var instanceSuffix = regexp.MustCompile(`^(.+)-(\d+)$`)

// ParseContainerName extracts the agent type and instance number from a
// container name. The prefix, when non-empty, must be present. Returns
// ok=false for names outside the convention.
func ParseContainerName(name, prefix string) (agentType string, instance int, ok bool) {
	name = strings.TrimPrefix(name, "/")
	if prefix != "" {
		if !strings.HasPrefix(name, prefix) {
			return "", 0, false
		}
		name = strings.TrimPrefix(name, prefix)
	}

	m := instanceSuffix.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n < 1 {
		return "", 0, false
	}
	return m[1], n, true
}

// MatchesAgent reports whether a container name belongs to the given agent
// id, with or without the configured prefix and with or without a trailing
// replica suffix (compose-style "<name>-<n>").
func MatchesAgent(name, prefix, agentID string) bool {
	name = strings.TrimPrefix(name, "/")
	candidates := []string{agentID}
	if prefix != "" {
		candidates = append(candidates, prefix+agentID)
	}
	for _, want := range candidates {
		if name == want {
			return true
		}
		if rest, found := strings.CutPrefix(name, want+"-"); found {
			if _, err := strconv.Atoi(rest); err == nil {
				return true
			}
		}
	}
	return false
}

// FindContainer resolves an agent id to a live container name. Returns ""
// (not an error) when no running container matches; the agent simply has
// not been started yet. When several containers match, the lexicographically
// first is used so the choice is stable run over run.
func FindContainer(ctx context.Context, rt Runtime, prefix, agentID string) (string, error) {
	containers, err := rt.ListContainers(ctx)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, c := range containers {
		if MatchesAgent(c.Name, prefix, agentID) {
			matches = append(matches, c.Name)
		}
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	if len(matches) > 1 {
		slog.Warn("multiple containers match agent, using first",
			"agent_id", agentID, "matches", len(matches), "chosen", matches[0])
	}
	return matches[0], nil
}
