package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/relaygate/gateway/internal/domain/ratelimit"
)

func TestRateLimitServiceStartCleanupExitsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc, err := NewRateLimitService(RateLimitConfig{
		Enabled:         true,
		DefaultPolicy:   ratelimit.QuotaPolicy{Scope: ratelimit.Tenant, PermitLimit: 10, WindowMillis: 1000},
		CleanupInterval: 10 * time.Millisecond,
		EntryExpiration: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRateLimitService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartCleanup(ctx)
		close(done)
	}()

	svc.Admit("tenant-a", "user-a", "demo.tool")
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartCleanup did not exit after context cancellation")
	}
}
