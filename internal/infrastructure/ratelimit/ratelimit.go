// Package ratelimit provides the per-credential limiters used by the HTTP layer.
package ratelimit

import "time"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}
