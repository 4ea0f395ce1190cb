package ratelimit

import "testing"

func TestBucketAdmitWithinLimit(t *testing.T) {
	b := NewBucket()
	p := QuotaPolicy{Scope: Tool, PermitLimit: 1, WindowMillis: 60_000}
	got := b.Admit(p, 0)
	if !got.Allowed || got.Remaining != 0 {
		t.Fatalf("first call: got %+v, want allowed with 0 remaining", got)
	}
	got = b.Admit(p, 1000)
	if got.Allowed {
		t.Fatalf("second call within window: got %+v, want denied", got)
	}
}

func TestBucketResetsOnNewWindow(t *testing.T) {
	b := NewBucket()
	p := QuotaPolicy{Scope: Tool, PermitLimit: 1, WindowMillis: 60_000}
	b.Admit(p, 0)
	got := b.Admit(p, 60_000)
	if !got.Allowed {
		t.Fatalf("call in next window: got %+v, want allowed", got)
	}
}

func TestBucketKeyScopes(t *testing.T) {
	cases := []struct {
		scope Scope
		want  string
	}{
		{Global, "global"},
		{Tenant, "tenant:acme"},
		{User, "user:bob"},
		{Tool, "tool:files.read"},
		{TenantTool, "tenant_tool:acme:files.read"},
		{UserTool, "user_tool:bob:files.read"},
	}
	for _, c := range cases {
		got := BucketKey(c.scope, "acme", "bob", "files.read")
		if got != c.want {
			t.Errorf("BucketKey(%v) = %q, want %q", c.scope, got, c.want)
		}
	}
}

func TestQuotaPolicyValidate(t *testing.T) {
	if err := (QuotaPolicy{PermitLimit: 0, WindowMillis: 1}).Validate(); err == nil {
		t.Error("expected error for zero permitLimit")
	}
	if err := (QuotaPolicy{PermitLimit: 1, WindowMillis: 0}).Validate(); err == nil {
		t.Error("expected error for zero windowMillis")
	}
	if err := (QuotaPolicy{PermitLimit: 1, WindowMillis: 1, QueueLimit: -1}).Validate(); err == nil {
		t.Error("expected error for negative queueLimit")
	}
	if err := (QuotaPolicy{PermitLimit: 1, WindowMillis: 1}).Validate(); err != nil {
		t.Errorf("expected valid policy, got %v", err)
	}
}
