// Package models holds the rate limiting value types.
package models

import (
	"math"
	"time"
)

// Result is the outcome of a single limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns whole seconds until the window frees a slot, at least one.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// IntakeKey scopes a bucket to the public intake endpoints for one client.
func IntakeKey(clientIP string) string {
	return "ratelimit:intake:" + clientIP
}
