package service

import (
	"context"
	"time"

	"github.com/relaygate/gateway/internal/domain/cache"
	"github.com/relaygate/gateway/internal/domain/pattern"
	"github.com/relaygate/gateway/internal/domain/ratelimit"
)

// RateLimitConfig is the static configuration the Rate-Limit Engine is
// built from (spec.md §6 rateLimit.* options).
type RateLimitConfig struct {
	Enabled         bool
	DefaultPolicy   ratelimit.QuotaPolicy
	Overrides       map[string]ratelimit.QuotaPolicy // raw wildcard pattern -> policy
	MaxCacheSize    int
	CleanupInterval time.Duration
	EntryExpiration time.Duration
}

type compiledOverride struct {
	matcher pattern.Pattern
	policy  ratelimit.QuotaPolicy
}

// RateLimitService implements the Rate-Limit Engine (C9): a multi-scope
// fixed-window quota evaluator backed by the bounded LRU cache (C3).
type RateLimitService struct {
	enabled         bool
	defaultPolicy   ratelimit.QuotaPolicy
	overrides       []compiledOverride
	buckets         *cache.Cache[string, *ratelimit.Bucket]
	now             func() time.Time
	entryExpiration time.Duration
	cleanupInterval time.Duration
}

// NewRateLimitService compiles cfg's override patterns and returns a
// ready RateLimitService.
func NewRateLimitService(cfg RateLimitConfig) (*RateLimitService, error) {
	overrides := make([]compiledOverride, 0, len(cfg.Overrides))
	for raw, policy := range cfg.Overrides {
		p, err := pattern.Compile(raw)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, compiledOverride{matcher: p, policy: policy})
	}

	maxSize := cfg.MaxCacheSize
	if maxSize <= 0 {
		maxSize = 10_000
	}

	entryExpiration := cfg.EntryExpiration
	if entryExpiration <= 0 {
		entryExpiration = 10 * time.Minute
	}
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}

	return &RateLimitService{
		enabled:         cfg.Enabled,
		defaultPolicy:   cfg.DefaultPolicy,
		overrides:       overrides,
		buckets:         cache.New[string, *ratelimit.Bucket](maxSize),
		now:             time.Now,
		entryExpiration: entryExpiration,
		cleanupInterval: cleanupInterval,
	}, nil
}

// StartCleanup runs a background sweep every cleanupInterval that
// evicts buckets idle longer than entryExpiration, bounding memory use
// independently of the LRU cache's size cap. It blocks until ctx is
// cancelled.
func (s *RateLimitService) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			s.buckets.RemoveIf(func(_ string, b *ratelimit.Bucket) bool {
				return b.IdleSince(now) > s.entryExpiration
			})
		}
	}
}

// policyFor resolves the QuotaPolicy for externalTool: the first matching
// override in s.overrides wins, otherwise the default policy. s.overrides
// is built from a map, so its order is not defined.
func (s *RateLimitService) policyFor(externalTool string) ratelimit.QuotaPolicy {
	for _, o := range s.overrides {
		if o.matcher.Match(externalTool) {
			return o.policy
		}
	}
	return s.defaultPolicy
}

// Admit evaluates one tools/call admission for (tenantID, userID,
// externalTool). Disabled engines always admit. Only tools/call
// requests should reach this method; tools/list and initialize bypass
// rate limiting entirely per spec.md §4.9.
func (s *RateLimitService) Admit(tenantID, userID, externalTool string) ratelimit.Decision {
	if !s.enabled {
		return ratelimit.Decision{Allowed: true}
	}
	if tenantID == "" {
		tenantID = ratelimit.AnonymousID
	}
	if userID == "" {
		userID = ratelimit.AnonymousID
	}

	policy := s.policyFor(externalTool)
	key := ratelimit.BucketKey(policy.Scope, tenantID, userID, externalTool)

	bucket := s.buckets.GetOrAdd(key, ratelimit.NewBucket)
	return bucket.Admit(policy, s.now().UnixMilli())
}
