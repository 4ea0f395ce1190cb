// Package ratelimit contains the multi-scope fixed-window quota model
// evaluated by the Rate-Limit Engine (C9).
package ratelimit

import (
	"fmt"
	"time"
)

// Scope is the key family used to partition rate-limit buckets.
type Scope string

const (
	Global     Scope = "global"
	Tenant     Scope = "tenant"
	User       Scope = "user"
	Tool       Scope = "tool"
	TenantTool Scope = "tenant_tool"
	UserTool   Scope = "user_tool"
)

// AnonymousID is substituted when a tenant/user header is absent.
const AnonymousID = "anonymous"

// QuotaPolicy configures one fixed-window rate-limit bucket family.
type QuotaPolicy struct {
	Scope Scope
	// PermitLimit is the number of permitted requests per window. Must be > 0.
	PermitLimit int
	// WindowMillis is the fixed-window width in milliseconds. Must be > 0.
	WindowMillis int64
	// QueueLimit is accepted for future-compat but has no queueing effect
	// today: any value is accepted and over-quota requests are rejected
	// immediately regardless (spec.md §4.9).
	QueueLimit int
}

// Validate checks PermitLimit/WindowMillis are positive and QueueLimit is
// non-negative.
func (p QuotaPolicy) Validate() error {
	if p.PermitLimit <= 0 {
		return fmt.Errorf("ratelimit: permitLimit must be > 0, got %d", p.PermitLimit)
	}
	if p.WindowMillis <= 0 {
		return fmt.Errorf("ratelimit: windowMillis must be > 0, got %d", p.WindowMillis)
	}
	if p.QueueLimit < 0 {
		return fmt.Errorf("ratelimit: queueLimit must be >= 0, got %d", p.QueueLimit)
	}
	return nil
}

// Window returns p.WindowMillis as a time.Duration.
func (p QuotaPolicy) Window() time.Duration {
	return time.Duration(p.WindowMillis) * time.Millisecond
}

// BucketKey composes the bucket identifier for scope, given the
// classified tenant/user/tool identifiers. Unused identifiers for a
// given scope are ignored.
func BucketKey(scope Scope, tenantID, userID, toolName string) string {
	switch scope {
	case Global:
		return "global"
	case Tenant:
		return fmt.Sprintf("tenant:%s", tenantID)
	case User:
		return fmt.Sprintf("user:%s", userID)
	case Tool:
		return fmt.Sprintf("tool:%s", toolName)
	case TenantTool:
		return fmt.Sprintf("tenant_tool:%s:%s", tenantID, toolName)
	case UserTool:
		return fmt.Sprintf("user_tool:%s:%s", userID, toolName)
	default:
		return fmt.Sprintf("unknown:%s:%s:%s", tenantID, userID, toolName)
	}
}

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed bool
	// Remaining is the number of permits left in the current window
	// after this request, floored at 0.
	Remaining int
}
