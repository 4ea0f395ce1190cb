package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaygate/gateway/internal/domain/audit"
)

// auditJob carries exactly one of a StartEvent or an EndEvent through
// the background worker's channel.
type auditJob struct {
	start *audit.StartEvent
	end   *audit.EndEvent
}

// AsyncRecorder wraps an audit.Recorder with a buffered channel and
// background worker so the dispatch hot path never blocks on audit
// recording. It implements audit.Recorder itself.
type AsyncRecorder struct {
	downstream    audit.Recorder
	jobChan       chan auditJob
	wg            sync.WaitGroup
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration

	channelSize int
	sendTimeout time.Duration // 0 = drop immediately, >0 = block up to this duration
	dropCount   atomic.Int64

	warningThreshold int
	lastWarning      atomic.Int64

	adaptiveFlushThreshold int
}

// AsyncRecorderOption configures an AsyncRecorder.
type AsyncRecorderOption func(*AsyncRecorder)

// WithBatchSize sets the number of events flushed together.
func WithBatchSize(size int) AsyncRecorderOption {
	return func(s *AsyncRecorder) {
		s.batchSize = size
	}
}

// WithFlushInterval sets the interval pending events are flushed on,
// even if the batch isn't full.
func WithFlushInterval(interval time.Duration) AsyncRecorderOption {
	return func(s *AsyncRecorder) {
		s.flushInterval = interval
	}
}

// WithChannelSize sets the size of the internal event buffer.
func WithChannelSize(size int) AsyncRecorderOption {
	return func(s *AsyncRecorder) {
		s.jobChan = make(chan auditJob, size)
		s.channelSize = size
	}
}

// WithSendTimeout sets the backpressure timeout. 0 means drop
// immediately on a full buffer; >0 blocks up to that duration first.
func WithSendTimeout(timeout time.Duration) AsyncRecorderOption {
	return func(s *AsyncRecorder) {
		s.sendTimeout = timeout
	}
}

// WithWarningThreshold sets the buffer-depth warning percentage (0-100).
func WithWarningThreshold(percent int) AsyncRecorderOption {
	return func(s *AsyncRecorder) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		s.warningThreshold = percent
	}
}

// WithAdaptiveFlushThreshold sets the buffer-depth % that triggers a
// faster flush interval (1/4 of normal). 0 disables adaptive flushing.
func WithAdaptiveFlushThreshold(percent int) AsyncRecorderOption {
	return func(s *AsyncRecorder) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		s.adaptiveFlushThreshold = percent
	}
}

// NewAsyncRecorder wraps downstream (e.g. audit.SlogRecorder) with
// async buffering. downstream.AuditStart/AuditEnd are only ever called
// from the background worker goroutine, never concurrently.
func NewAsyncRecorder(downstream audit.Recorder, logger *slog.Logger, opts ...AsyncRecorderOption) *AsyncRecorder {
	const defaultChannelSize = 1000
	s := &AsyncRecorder{
		downstream:             downstream,
		jobChan:                make(chan auditJob, defaultChannelSize),
		logger:                 logger,
		batchSize:              100,
		flushInterval:          time.Second,
		channelSize:            defaultChannelSize,
		sendTimeout:            100 * time.Millisecond,
		warningThreshold:       80,
		adaptiveFlushThreshold: 80,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background worker.
func (s *AsyncRecorder) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Stop closes the buffer and waits for the worker to flush and exit.
func (s *AsyncRecorder) Stop() {
	close(s.jobChan)
	s.wg.Wait()
}

// AuditStart implements audit.Recorder by enqueuing the event.
func (s *AsyncRecorder) AuditStart(event audit.StartEvent) {
	s.enqueue(auditJob{start: &event})
}

// AuditEnd implements audit.Recorder by enqueuing the event.
func (s *AsyncRecorder) AuditEnd(event audit.EndEvent) {
	s.enqueue(auditJob{end: &event})
}

// enqueue applies backpressure: a fast non-blocking send first, then a
// bounded blocking wait, then drop-and-count.
func (s *AsyncRecorder) enqueue(job auditJob) {
	if s.warningThreshold > 0 {
		depth := len(s.jobChan)
		threshold := s.channelSize * s.warningThreshold / 100
		if depth >= threshold {
			s.warnChannelDepth(depth)
		}
	}

	select {
	case s.jobChan <- job:
		return
	default:
	}

	if s.sendTimeout <= 0 {
		s.recordDrop()
		return
	}

	select {
	case s.jobChan <- job:
	case <-time.After(s.sendTimeout):
		s.recordDrop()
	}
}

func (s *AsyncRecorder) recordDrop() {
	drops := s.dropCount.Add(1)
	if s.logger != nil {
		s.logger.Warn("audit event dropped", "total_drops", drops)
	}
}

func (s *AsyncRecorder) warnChannelDepth(depth int) {
	now := time.Now().UnixNano()
	last := s.lastWarning.Load()
	if now-last < int64(time.Second) {
		return
	}
	if s.lastWarning.CompareAndSwap(last, now) {
		if s.logger != nil {
			s.logger.Warn("audit buffer approaching capacity",
				"depth", depth,
				"capacity", s.channelSize,
				"percent", depth*100/s.channelSize,
			)
		}
	}
}

// DroppedEvents returns the total number of events dropped under
// backpressure, for metrics reporting.
func (s *AsyncRecorder) DroppedEvents() int64 {
	return s.dropCount.Load()
}

// ChannelCapacity returns the configured buffer size.
func (s *AsyncRecorder) ChannelCapacity() int {
	return s.channelSize
}

// ChannelDepth returns current buffer usage.
func (s *AsyncRecorder) ChannelDepth() int {
	return len(s.jobChan)
}

func (s *AsyncRecorder) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]auditJob, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	fastMode := false

	for {
		select {
		case job, ok := <-s.jobChan:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, job)

			shouldFlush := len(batch) >= s.batchSize
			if !shouldFlush && s.adaptiveFlushThreshold > 0 {
				depth := len(s.jobChan)
				if depth*100/s.channelSize >= s.adaptiveFlushThreshold {
					shouldFlush = true
				}
			}
			if shouldFlush {
				s.flush(batch)
				batch = batch[:0]
			}

			if s.adaptiveFlushThreshold > 0 {
				depthPercent := len(s.jobChan) * 100 / s.channelSize
				if depthPercent >= s.adaptiveFlushThreshold && !fastMode {
					ticker.Reset(s.flushInterval / 4)
					fastMode = true
				} else if depthPercent < s.adaptiveFlushThreshold && fastMode {
					ticker.Reset(s.flushInterval)
					fastMode = false
				}
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			for job := range s.jobChan {
				batch = append(batch, job)
			}
			s.flush(batch)
			return
		}
	}
}

// flush forwards every buffered event to the downstream recorder in
// order. A downstream panic is not recovered: the Recorder contract
// requires implementations never to fail the caller, so SlogRecorder
// (the only implementation) cannot raise one under normal operation.
func (s *AsyncRecorder) flush(batch []auditJob) {
	for _, job := range batch {
		if job.start != nil {
			s.downstream.AuditStart(*job.start)
		}
		if job.end != nil {
			s.downstream.AuditEnd(*job.end)
		}
	}
}

var _ audit.Recorder = (*AsyncRecorder)(nil)
