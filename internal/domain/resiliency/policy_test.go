package resiliency

import (
	"context"
	"errors"
	"testing"
)

func TestNoRetryPolicySuccess(t *testing.T) {
	p := NoRetryPolicy[int]{}
	rc := NewContext("tool", "up", "http://x", "")
	got, err := p.Execute(context.Background(), rc, func(ctx context.Context, rc Context) (int, error) {
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Fatalf("got (%d, %v), want (7, nil)", got, err)
	}
}

func TestNoRetryPolicyFailureWrapsResiliencyFailure(t *testing.T) {
	p := NoRetryPolicy[int]{}
	rc := NewContext("tool", "up", "http://x", "")
	_, err := p.Execute(context.Background(), rc, func(ctx context.Context, rc Context) (int, error) {
		return 0, errors.New("boom")
	})
	if !errors.Is(err, ErrResiliencyFailure) {
		t.Fatalf("got %v, want ErrResiliencyFailure", err)
	}
}

func TestNoRetryPolicyCancellation(t *testing.T) {
	p := NoRetryPolicy[int]{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rc := NewContext("tool", "up", "http://x", "")
	_, err := p.Execute(ctx, rc, func(ctx context.Context, rc Context) (int, error) {
		return 0, nil
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("got %v, want ErrCancelled", err)
	}
}

func TestRetryPolicyRetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	p := NewRetryPolicy[int](3, func(err error) Classification { return Transient })
	p.Sleep = func(ctx context.Context, millis int64) error { return nil }
	rc := NewContext("tool", "up", "http://x", "")
	got, err := p.Execute(context.Background(), rc, func(ctx context.Context, rc Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 99, nil
	})
	if err != nil || got != 99 {
		t.Fatalf("got (%d, %v), want (99, nil)", got, err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryPolicyFatalNeverRetries(t *testing.T) {
	attempts := 0
	p := NewRetryPolicy[int](3, func(err error) Classification { return Fatal })
	p.Sleep = func(ctx context.Context, millis int64) error { return nil }
	rc := NewContext("tool", "up", "http://x", "")
	_, err := p.Execute(context.Background(), rc, func(ctx context.Context, rc Context) (int, error) {
		attempts++
		return 0, errors.New("fatal")
	})
	if !errors.Is(err, ErrResiliencyFailure) {
		t.Fatalf("got %v, want ErrResiliencyFailure", err)
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for fatal error, got %d", attempts)
	}
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	attempts := 0
	p := NewRetryPolicy[int](3, func(err error) Classification { return Transient })
	p.Sleep = func(ctx context.Context, millis int64) error { return nil }
	rc := NewContext("tool", "up", "http://x", "")
	_, err := p.Execute(context.Background(), rc, func(ctx context.Context, rc Context) (int, error) {
		attempts++
		return 0, errors.New("always fails")
	})
	if !errors.Is(err, ErrResiliencyFailure) {
		t.Fatalf("got %v, want ErrResiliencyFailure", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryPolicyDerivesFreshContextPerAttempt(t *testing.T) {
	var seen []int
	p := NewRetryPolicy[int](3, func(err error) Classification { return Transient })
	p.Sleep = func(ctx context.Context, millis int64) error { return nil }
	rc := NewContext("tool", "up", "http://x", "corr-1")
	_, _ = p.Execute(context.Background(), rc, func(ctx context.Context, rc Context) (int, error) {
		seen = append(seen, rc.AttemptNumber)
		if rc.CorrelationID != "corr-1" {
			t.Errorf("correlation id changed across retries: %q", rc.CorrelationID)
		}
		return 0, errors.New("fail")
	})
	if len(seen) != 3 || seen[0] != 0 || seen[1] != 1 || seen[2] != 2 {
		t.Errorf("expected attempt numbers 0,1,2 got %v", seen)
	}
}

func TestHTTPStatusClassifier(t *testing.T) {
	cases := []struct {
		status int
		err    error
		want   Classification
	}{
		{0, errors.New("dial error"), Transient},
		{500, nil, Transient},
		{503, nil, Transient},
		{429, nil, TransientBackoff},
		{404, nil, Fatal},
		{400, nil, Fatal},
		{200, nil, Fatal},
	}
	for _, c := range cases {
		got := HTTPStatusClassifier(c.status, c.err)
		if got != c.want {
			t.Errorf("HTTPStatusClassifier(%d, %v) = %v, want %v", c.status, c.err, got, c.want)
		}
	}
}
