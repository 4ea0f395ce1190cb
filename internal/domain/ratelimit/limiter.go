package ratelimit

import (
	"sync"
	"time"
)

// Bucket is one fixed-window counter. Safe for concurrent use; callers
// obtain a Bucket from a shared keyed store (see the Rate-Limit Engine
// service, which backs buckets with the bounded LRU cache, C3) and call
// Admit on every request through that bucket's scope/key.
type Bucket struct {
	mu          sync.Mutex
	windowIndex int64
	count       int
	lastSeen    time.Time
}

// IdleSince reports how long it has been since Admit was last called
// on b, for the periodic cleanup sweep described in spec.md §4.9.
func (b *Bucket) IdleSince(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastSeen.IsZero() {
		return 0
	}
	return now.Sub(b.lastSeen)
}

// NewBucket returns a zero-value Bucket, ready to use.
func NewBucket() *Bucket {
	return &Bucket{}
}

// Admit evaluates one request against policy at nowMillis: if nowMillis
// falls into a later window than the bucket's current window, the
// counter resets first. The counter is then incremented unconditionally
// (so the window always reflects true request volume even when over
// quota) and the request is allowed iff the pre-increment count was
// below PermitLimit.
func (b *Bucket) Admit(policy QuotaPolicy, nowMillis int64) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeen = time.UnixMilli(nowMillis)

	window := nowMillis / policy.WindowMillis
	if window != b.windowIndex {
		b.windowIndex = window
		b.count = 0
	}

	allowed := b.count < policy.PermitLimit
	b.count++

	remaining := policy.PermitLimit - b.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: allowed, Remaining: remaining}
}
