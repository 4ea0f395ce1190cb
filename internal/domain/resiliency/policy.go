// Package resiliency wraps an outbound operation with retry/no-retry
// behavior and a typed failure surface, classifying errors as transient or
// fatal the way an HTTP-speaking gateway naturally would (5xx and
// connection failures transient, 4xx fatal, 429 transient with backoff).
package resiliency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors surfaced by Execute. Cancellation is always reported as
// ErrCancelled, never converted to ErrResiliencyFailure or ErrTimeout.
var (
	// ErrResiliencyFailure is returned when all permitted attempts are
	// exhausted without success.
	ErrResiliencyFailure = errors.New("resiliency: all attempts exhausted")
	// ErrCancelled is returned when the caller's context was cancelled.
	ErrCancelled = errors.New("resiliency: cancelled")
	// ErrTimeout is returned when a per-attempt deadline elapsed without
	// caller cancellation.
	ErrTimeout = errors.New("resiliency: timeout")
)

// Context carries the identifying fields threaded through a single
// invocation across retries. A retry derives a new Context via
// CreateRetryContext; all fields but AttemptNumber stay invariant.
type Context struct {
	ExternalToolName string
	UpstreamName     string
	Endpoint         string
	CorrelationID    string
	InvocationID     string
	AttemptNumber    int
}

// NewContext builds a Context for the first attempt of an invocation,
// generating a correlation ID if one was not supplied.
func NewContext(externalTool, upstreamName, endpoint, correlationID string) Context {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return Context{
		ExternalToolName: externalTool,
		UpstreamName:     upstreamName,
		Endpoint:         endpoint,
		CorrelationID:    correlationID,
		InvocationID:     uuid.NewString(),
		AttemptNumber:    0,
	}
}

// CreateRetryContext returns a new Context for the next attempt, with
// AttemptNumber incremented and every other field preserved.
func CreateRetryContext(c Context) Context {
	c.AttemptNumber++
	return c
}

// Classification indicates how a failed attempt should be treated.
type Classification int

const (
	// Fatal errors are never retried.
	Fatal Classification = iota
	// Transient errors may be retried, subject to the policy's attempt bound.
	Transient
	// TransientBackoff is Transient but signals the caller should also
	// consult a backoff hint (e.g. an HTTP 429).
	TransientBackoff
)

// Classifier inspects an error from a single attempt and classifies it.
type Classifier func(err error) Classification

// HTTPStatusClassifier classifies by HTTP status the way a gateway forwarding
// JSON-RPC over HTTP naturally would: 5xx and connection-level errors are
// transient, 4xx is fatal, 429 is transient (with backoff).
func HTTPStatusClassifier(status int, transportErr error) Classification {
	if transportErr != nil {
		return Transient
	}
	switch {
	case status == 429:
		return TransientBackoff
	case status >= 500:
		return Transient
	case status >= 400:
		return Fatal
	default:
		return Fatal
	}
}

// Backoff computes the delay before attempt n (0-indexed, n is the attempt
// about to be made, so n=1 is the first retry).
type Backoff func(n int) (delayMillis int64)

// Operation is the unit of work a Policy executes, given the attempt's
// Context and a cancellable context.Context.
type Operation[T any] func(ctx context.Context, rc Context) (T, error)

// Policy executes an Operation with retry/no-retry semantics.
type Policy[T any] interface {
	Execute(ctx context.Context, rc Context, op Operation[T]) (T, error)
}

// NoRetryPolicy passes the operation's result straight through, translating
// a transient transport failure into ErrResiliencyFailure only because, for
// NoRetry, a single attempt is always "all permitted attempts".
type NoRetryPolicy[T any] struct{}

// Execute runs op exactly once.
func (NoRetryPolicy[T]) Execute(ctx context.Context, rc Context, op Operation[T]) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	result, err := op(ctx, rc)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, context.Canceled) {
		return zero, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return zero, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return zero, fmt.Errorf("%w: %v", ErrResiliencyFailure, err)
}

// RetryPolicy bounds retries to MaxAttempts (including the first), sleeps
// between attempts per Backoff, and classifies each failure via Classify to
// decide whether to retry.
type RetryPolicy[T any] struct {
	MaxAttempts int
	Classify    Classifier
	Backoff     Backoff
	Sleep       func(ctx context.Context, millis int64) error
}

// NewRetryPolicy constructs a RetryPolicy with sane defaults: exponential
// backoff starting at 100ms, doubling per retry, capped at 5s.
func NewRetryPolicy[T any](maxAttempts int, classify Classifier) *RetryPolicy[T] {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryPolicy[T]{
		MaxAttempts: maxAttempts,
		Classify:    classify,
		Backoff: func(n int) int64 {
			delay := int64(100)
			for i := 1; i < n; i++ {
				delay *= 2
			}
			if delay > 5000 {
				delay = 5000
			}
			return delay
		},
		Sleep: defaultSleep,
	}
}

// Execute runs op, retrying on Transient/TransientBackoff classifications
// until MaxAttempts is reached or a Fatal classification / success occurs.
// Cancellation at any point surfaces as ErrCancelled and is never retried.
func (p *RetryPolicy[T]) Execute(ctx context.Context, rc Context, op Operation[T]) (T, error) {
	var zero T
	var lastErr error

	attemptCtx := rc
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%w: %v", ErrCancelled, err)
		}

		result, err := op(ctx, attemptCtx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			return zero, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			if attempt == p.MaxAttempts {
				return zero, fmt.Errorf("%w: %v", ErrTimeout, err)
			}
		}

		class := Fatal
		if p.Classify != nil {
			class = p.Classify(err)
		}
		if class == Fatal {
			return zero, fmt.Errorf("%w: %v", ErrResiliencyFailure, err)
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := int64(0)
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		sleep := p.Sleep
		if sleep == nil {
			sleep = defaultSleep
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%w: %v", ErrCancelled, err)
		}

		attemptCtx = CreateRetryContext(attemptCtx)
	}

	return zero, fmt.Errorf("%w: %v", ErrResiliencyFailure, lastErr)
}

func defaultSleep(ctx context.Context, millis int64) error {
	if millis <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(millis) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
