package audit

import "log/slog"

// SlogRecorder implements Recorder by emitting each event as a
// structured slog record. This is the "external logging collaborator"
// spec.md refers to: the gateway itself never persists audit events,
// it only forwards them to the configured logger.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder returns a Recorder backed by logger. A nil logger
// falls back to slog.Default().
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogRecorder{logger: logger}
}

// AuditStart logs a StartEvent at Info level under the "audit_start" message.
func (r *SlogRecorder) AuditStart(event StartEvent) {
	r.logger.Info("audit_start",
		slog.String("invocation_id", event.InvocationID),
		slog.String("tool", event.Tool),
		slog.String("upstream", event.Upstream),
		slog.String("correlation_id", event.CorrelationID),
		slog.Int("args_size", event.ArgsSize),
		slog.String("args_hash", event.ArgsHash),
	)
}

// AuditEnd logs an EndEvent, at Info level on success or Warn on
// failure, under the "audit_end" message.
func (r *SlogRecorder) AuditEnd(event EndEvent) {
	attrs := []any{
		slog.String("invocation_id", event.InvocationID),
		slog.String("tool", event.Tool),
		slog.String("upstream", event.Upstream),
		slog.String("correlation_id", event.CorrelationID),
		slog.Bool("success", event.Success),
		slog.Int64("duration_ms", event.DurationMs),
	}
	if event.ErrorType != "" {
		attrs = append(attrs, slog.String("error_type", event.ErrorType), slog.String("error_message", event.ErrorMessage))
	}
	if event.Success {
		r.logger.Info("audit_end", attrs...)
		return
	}
	r.logger.Warn("audit_end", attrs...)
}
