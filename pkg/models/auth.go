package models

import "time"

// AuthResult is the normalized output of one credential verification,
// regardless of which on-disk format the provider uses.
type AuthResult struct {
	Authenticated    bool      `json:"authenticated"`
	ExpiresAt        int64     `json:"expires_at,omitempty"` // epoch ms
	SubscriptionType string    `json:"subscription_type,omitempty"`
	LastVerifiedAt   time.Time `json:"last_verified_at"`
}

// Expired reports whether the credential carries an expiry that has passed.
func (r AuthResult) Expired(now time.Time) bool {
	return r.ExpiresAt > 0 && r.ExpiresAt < now.UnixMilli()
}
