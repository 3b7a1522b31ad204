package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("agentfleet:job:%s", jobID)
}

func RateLimitKey(clientIP string) string {
	return fmt.Sprintf("agentfleet:ratelimit:%s", clientIP)
}
