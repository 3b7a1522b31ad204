package models

// ExecResult is the raw outcome of one in-container command execution.
// Timeouts and nonzero exits are reported here, not as errors, so callers
// handle every completed execution uniformly.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}
