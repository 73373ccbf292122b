package ratelimit

import (
	"sync"
)

// ThrottleBreaker counts consecutive per-node failures caused by server
// throttling. Any non-throttled outcome resets the count. Once the count
// reaches the limit the breaker trips and stays tripped.
//
// A limit of 0 disables the breaker.
type ThrottleBreaker struct {
	limit       int
	consecutive int
	tripped     bool
	mu          sync.Mutex
}

// NewThrottleBreaker creates a breaker that trips after limit consecutive throttled failures.
func NewThrottleBreaker(limit int) *ThrottleBreaker {
	return &ThrottleBreaker{limit: limit}
}

// Record registers the outcome of one node action and reports whether the breaker is tripped.
func (b *ThrottleBreaker) Record(throttled bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tripped {
		return true
	}
	if !throttled {
		b.consecutive = 0
		return false
	}
	b.consecutive++
	if b.limit > 0 && b.consecutive >= b.limit {
		b.tripped = true
	}
	return b.tripped
}

// Tripped reports whether the limit has been reached.
func (b *ThrottleBreaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// Consecutive returns the current run of throttled failures.
func (b *ThrottleBreaker) Consecutive() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}
