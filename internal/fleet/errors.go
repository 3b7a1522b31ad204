package fleet

import "errors"

var (
	ErrAgentNotFound    = errors.New("agent not found")
	ErrDuplicateAgent   = errors.New("agent already registered")
	ErrAgentOffline     = errors.New("agent is offline")
	ErrNotAuthenticated = errors.New("agent is not authenticated")
	ErrAuthExpired      = errors.New("agent authentication has expired")
	ErrInvalidAuthType  = errors.New("operation not valid for this auth type")
	ErrValidation       = errors.New("invalid agent registration")
)
