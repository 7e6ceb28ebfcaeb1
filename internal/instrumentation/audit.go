package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// BookingRecord captures one booking attempt for the audit stream.
//
// AttendeeEmail is PII. LogAttrs only carries its domain; the full address is
// written only when the audit logger is configured with IncludePII.
type BookingRecord struct {
	BlockID       string
	EventID       string
	AttendeeEmail string
	SlotStart     time.Time
	SlotEnd       time.Time

	// FinalState is the reconciler state the attempt ended in.
	FinalState string
	Outcome    string
	Error      string
	Warnings   []string

	StartTime time.Time
	Duration  time.Duration

	TraceID string
	SpanID  string
}

// NewBookingRecord starts a record for the given block and slot.
func NewBookingRecord(blockID, attendeeEmail string, slotStart, slotEnd time.Time) *BookingRecord {
	return &BookingRecord{
		BlockID:       blockID,
		AttendeeEmail: attendeeEmail,
		SlotStart:     slotStart,
		SlotEnd:       slotEnd,
		StartTime:     time.Now(),
	}
}

// WithSpanContext copies trace identifiers from the active span.
func (r *BookingRecord) WithSpanContext(ctx context.Context) *BookingRecord {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.TraceID = span.SpanContext().TraceID().String()
		r.SpanID = span.SpanContext().SpanID().String()
	}
	return r
}

// Complete stamps the duration, terminal state and outcome.
func (r *BookingRecord) Complete(state, outcome string, err error) *BookingRecord {
	r.Duration = time.Since(r.StartTime)
	r.FinalState = state
	r.Outcome = outcome
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Succeeded reports whether the booking event was committed.
func (r *BookingRecord) Succeeded() bool {
	return r.Outcome == OutcomeBooked || r.Outcome == OutcomeBookedWithWarnings
}

// LogAttrs returns attributes with cardinality-controlled attendee identity.
func (r *BookingRecord) LogAttrs() []slog.Attr {
	return r.attrs(slog.String("user_domain", ExtractUserDomain(r.AttendeeEmail)))
}

// LogAuditAttrs returns attributes including the full attendee email.
func (r *BookingRecord) LogAuditAttrs() []slog.Attr {
	return r.attrs(slog.String("attendee", r.AttendeeEmail))
}

func (r *BookingRecord) attrs(identity slog.Attr) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("block_id", r.BlockID),
		identity,
		slog.Time("slot_start", r.SlotStart),
		slog.Time("slot_end", r.SlotEnd),
		slog.String("state", r.FinalState),
		slog.String("outcome", r.Outcome),
		slog.Duration("duration", r.Duration),
	}
	if r.EventID != "" {
		attrs = append(attrs, slog.String("event_id", r.EventID))
	}
	if len(r.Warnings) > 0 {
		attrs = append(attrs, slog.Any("warnings", r.Warnings))
	}
	if r.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", r.TraceID))
	}
	if r.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", r.SpanID))
	}
	if r.Error != "" {
		attrs = append(attrs, slog.String("error", r.Error))
	}
	return attrs
}

// AuditLogger writes booking records to a dedicated slog stream.
// A nil *AuditLogger is a valid no-op.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger with PII excluded.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("log_type", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogBooking writes one record. Committed bookings log at info, the rest at warn.
func (al *AuditLogger) LogBooking(r *BookingRecord) {
	if al == nil || !al.enabled || r == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = r.LogAuditAttrs()
	} else {
		attrs = r.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if r.Succeeded() {
		al.logger.Info("booking_committed", args...)
	} else {
		al.logger.Warn("booking_rejected", args...)
	}
}
