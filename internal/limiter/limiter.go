// Package limiter implements sliding-window rate limiting for metered
// endpoints, by request count per resource class and by a shared token budget.
package limiter

import "time"

// Decision reports the outcome of a single rate-limit check, with enough
// state for callers to populate rate-limit response headers.
type Decision struct {
	Allowed           bool
	LimitRequests     int           // configured per-minute limit for the class
	RemainingRequests int           // slots left in the current window
	LimitTokens       int           // configured per-minute token budget
	RemainingTokens   int           // token budget left in the current window
	ResetIn           time.Duration // when the oldest relevant entry ages out
}

// Limiter gates metered work. Implementations must be safe for concurrent use:
// the prune/count/append cycle for one client must be atomic with respect to
// concurrent checks for the same client.
type Limiter interface {
	// Check admits or denies one request of the given resource class for the
	// client, charging cost against the shared token budget. Admission
	// records the request; denial records nothing.
	Check(clientID, class string, cost int) Decision
}
