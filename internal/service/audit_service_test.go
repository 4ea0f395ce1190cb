package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygate/gateway/internal/domain/audit"
)

// capturingRecorder records every event it receives under a mutex, since
// AsyncRecorder's worker goroutine is the only caller but tests read the
// slices from a different goroutine.
type capturingRecorder struct {
	mu     sync.Mutex
	starts []audit.StartEvent
	ends   []audit.EndEvent
}

func (c *capturingRecorder) AuditStart(event audit.StartEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts = append(c.starts, event)
}

func (c *capturingRecorder) AuditEnd(event audit.EndEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ends = append(c.ends, event)
}

func (c *capturingRecorder) counts() (starts, ends int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.starts), len(c.ends)
}

func TestAsyncRecorderFlushesOnBatchSize(t *testing.T) {
	downstream := &capturingRecorder{}
	recorder := NewAsyncRecorder(downstream, nil,
		WithBatchSize(3),
		WithFlushInterval(time.Hour),
		WithChannelSize(10),
	)
	recorder.Start(context.Background())
	defer recorder.Stop()

	recorder.AuditStart(audit.StartEvent{InvocationID: "1"})
	recorder.AuditStart(audit.StartEvent{InvocationID: "2"})
	assert.Eventually(t, func() bool {
		starts, _ := downstream.counts()
		return starts == 0
	}, 200*time.Millisecond, 10*time.Millisecond, "flush must not happen before the batch fills")

	recorder.AuditStart(audit.StartEvent{InvocationID: "3"})
	require.Eventually(t, func() bool {
		starts, _ := downstream.counts()
		return starts == 3
	}, time.Second, 10*time.Millisecond, "batch of 3 must flush once full")
}

func TestAsyncRecorderFlushesOnInterval(t *testing.T) {
	downstream := &capturingRecorder{}
	recorder := NewAsyncRecorder(downstream, nil,
		WithBatchSize(100),
		WithFlushInterval(20*time.Millisecond),
		WithChannelSize(10),
	)
	recorder.Start(context.Background())
	defer recorder.Stop()

	recorder.AuditEnd(audit.EndEvent{InvocationID: "1", Success: true})

	require.Eventually(t, func() bool {
		_, ends := downstream.counts()
		return ends == 1
	}, time.Second, 10*time.Millisecond, "flush interval must fire even below batch size")
}

func TestAsyncRecorderDropsUnderBackpressureAndCounts(t *testing.T) {
	downstream := &capturingRecorder{}
	recorder := NewAsyncRecorder(downstream, nil,
		WithBatchSize(1000),
		WithFlushInterval(time.Hour),
		WithChannelSize(1),
		WithSendTimeout(0), // drop immediately on a full buffer
	)
	// Worker intentionally not started: the channel fills and every send
	// beyond its capacity is dropped.
	recorder.AuditStart(audit.StartEvent{InvocationID: "1"})
	recorder.AuditStart(audit.StartEvent{InvocationID: "2"})
	recorder.AuditStart(audit.StartEvent{InvocationID: "3"})

	assert.Equal(t, int64(2), recorder.DroppedEvents())
	assert.Equal(t, 1, recorder.ChannelDepth())
}

func TestAsyncRecorderStopFlushesPendingEvents(t *testing.T) {
	downstream := &capturingRecorder{}
	recorder := NewAsyncRecorder(downstream, nil,
		WithBatchSize(100),
		WithFlushInterval(time.Hour),
		WithChannelSize(10),
	)
	recorder.Start(context.Background())

	recorder.AuditStart(audit.StartEvent{InvocationID: "1"})
	recorder.AuditEnd(audit.EndEvent{InvocationID: "1", Success: true})
	recorder.Stop()

	starts, ends := downstream.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
}

func TestAsyncRecorderChannelCapacityReflectsOption(t *testing.T) {
	recorder := NewAsyncRecorder(&capturingRecorder{}, nil, WithChannelSize(42))
	assert.Equal(t, 42, recorder.ChannelCapacity())
}
