package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/slotbook/internal/calendar"
	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
	"github.com/teemow/slotbook/internal/notify"
)

// ConfirmationMessage is returned to the booker on success.
const ConfirmationMessage = "Booking confirmed! You will receive a calendar invite shortly."

const slotUnavailableMessage = "Slot not found or no longer available"

// State is a step of the booking state machine.
type State string

const (
	StateValidating  State = "Validating"
	StateFetching    State = "Fetching"
	StateCreating    State = "Creating"
	StateReconciling State = "Reconciling"
	StateNotifying   State = "Notifying"
	StateDone        State = "Done"
	StateFailed      State = "Failed"
)

// Gateway is the subset of the calendar client the reconciler drives.
type Gateway interface {
	GetBlock(ctx context.Context, id string) (calendar.FreeBlock, error)
	CreateEvent(ctx context.Context, event calendar.BookingEvent) (string, error)
	PatchBlockStart(ctx context.Context, id, etag string, newStart time.Time) error
	PatchBlockEnd(ctx context.Context, id, etag string, newEnd time.Time) error
	DeleteBlock(ctx context.Context, id, etag string) error
	CreateFreeBlock(ctx context.Context, start, end time.Time, timeZone string) (string, error)
	DeleteEvent(ctx context.Context, id string) error
}

// Notifier receives committed bookings.
type Notifier interface {
	Notify(ctx context.Context, c notify.Confirmation) error
}

// Interval is a half-open time range.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Result describes a booking attempt. On failure State is StateFailed and
// Trace shows how far the attempt got.
type Result struct {
	State     State
	EventID   string
	Remaining []Interval
	Message   string
	Warnings  []string
	Trace     []State
}

// Reconciler reserves slots against the calendar.
type Reconciler struct {
	gateway   Gateway
	notifier  Notifier
	defaultTZ string
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
	audit     *instrumentation.AuditLogger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNotifier sets where committed bookings are handed off.
func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notifier = n }
}

// WithDefaultTimeZone sets the zone used when a block carries none.
func WithDefaultTimeZone(tz string) Option {
	return func(r *Reconciler) { r.defaultTZ = tz }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithAuditLogger sets the booking audit stream.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(r *Reconciler) { r.audit = a }
}

// NewReconciler creates a reconciler over gateway.
func NewReconciler(gateway Gateway, opts ...Option) *Reconciler {
	r := &Reconciler{
		gateway:   gateway,
		defaultTZ: calendar.DefaultTimeZone,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.WithComponent(r.logger, "booking")
	return r
}

// attempt carries the per-booking state through the steps.
type attempt struct {
	result *Result
	span   trace.Span
	logger *slog.Logger
}

func (a *attempt) enter(state State) {
	a.result.State = state
	a.result.Trace = append(a.result.Trace, state)
	instrumentation.AddStateEvent(a.span, string(state))
	a.logger.Debug("booking state", logging.State(string(state)))
}

func (a *attempt) fail(err *Error) (*Result, error) {
	a.enter(StateFailed)
	a.result.Message = err.Message
	a.logger.Info("booking failed",
		slog.String("kind", string(err.Kind)),
		slog.String("reason", err.Message),
		logging.Err(err.Err))
	return a.result, err
}

// Book validates req, creates the booking event and shrinks, splits or
// removes the source block. Once the event exists the booking is committed;
// the only exception is losing the conditional block write to a concurrent
// change, in which case the event is deleted again and SlotNoLongerAvailable
// is returned.
func (r *Reconciler) Book(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	ctx, span := instrumentation.StartSpan(ctx, "booking.reconcile",
		instrumentation.NewSpanAttributeBuilder().
			WithBlock(req.SourceBlockID).
			WithDurationMinutes(int(req.Duration.Minutes())).
			Build()...)
	defer span.End()

	a := &attempt{
		result: &Result{},
		span:   span,
		logger: r.logger.With(logging.BlockID(req.SourceBlockID), logging.UserHash(req.AttendeeEmail)),
	}
	record := instrumentation.NewBookingRecord(req.SourceBlockID, req.AttendeeEmail, req.SlotStart, req.SlotEnd()).
		WithSpanContext(ctx)

	result, err := r.book(ctx, a, req)

	outcome := outcomeFor(result, err)
	record.EventID = result.EventID
	record.Warnings = result.Warnings
	r.audit.LogBooking(record.Complete(string(result.State), outcome, err))
	r.metrics.RecordBooking(ctx, outcome, time.Since(started))

	if err != nil {
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	return result, err
}

func (r *Reconciler) book(ctx context.Context, a *attempt, req Request) (*Result, error) {
	a.enter(StateValidating)
	if err := req.Validate(); err != nil {
		var be *Error
		errors.As(err, &be)
		return a.fail(be)
	}
	slotStart, slotEnd := req.SlotStart, req.SlotEnd()

	a.enter(StateFetching)
	block, err := r.gateway.GetBlock(ctx, req.SourceBlockID)
	if err != nil {
		switch {
		case errors.Is(err, calendar.ErrNotFound):
			return a.fail(newError(SlotNoLongerAvailable, slotUnavailableMessage, err))
		case isUnauthorized(err):
			return a.fail(newError(Unauthorized, "Calendar authorization required", err))
		default:
			return a.fail(newError(UpstreamError, "Failed to fetch slot: "+providerMessage(err), err))
		}
	}
	if !block.Contains(slotStart, slotEnd) {
		return a.fail(newError(SlotNoLongerAvailable, slotUnavailableMessage,
			fmt.Errorf("slot %s-%s outside block %s-%s",
				slotStart.Format(time.RFC3339), slotEnd.Format(time.RFC3339),
				block.Start.Format(time.RFC3339), block.End.Format(time.RFC3339))))
	}

	a.enter(StateCreating)
	tz := block.TimeZone
	if tz == "" {
		tz = r.defaultTZ
	}
	eventID, err := r.gateway.CreateEvent(ctx, calendar.BookingEvent{
		Start:         slotStart,
		End:           slotEnd,
		AttendeeName:  req.AttendeeName,
		AttendeeEmail: req.AttendeeEmail,
		Topic:         req.Topic,
		TimeZone:      tz,
	})
	if err != nil {
		if isUnauthorized(err) {
			return a.fail(newError(Unauthorized, "Calendar authorization required", err))
		}
		return a.fail(newError(UpstreamError, "Failed to create booking: "+providerMessage(err), err))
	}
	a.result.EventID = eventID
	a.logger = a.logger.With(logging.EventID(eventID))
	instrumentation.AddStateEvent(a.span, "committed")

	// Committed: later steps run to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	a.enter(StateReconciling)
	remaining, warnings, err := r.reconcile(ctx, block, slotStart, slotEnd)
	switch {
	case err != nil && isVersionConflict(err):
		a.logger.Info("block changed concurrently, compensating", logging.Err(err))
		msg := slotUnavailableMessage
		if delErr := r.gateway.DeleteEvent(ctx, eventID); delErr != nil {
			a.logger.Error("failed to delete booking event after losing race",
				logging.Err(delErr))
			msg = fmt.Sprintf("%s (booking event %s could not be removed: %v)", msg, eventID, delErr)
		}
		a.result.EventID = ""
		return a.fail(newError(SlotNoLongerAvailable, msg, err))
	case err != nil:
		warnings = append(warnings, conflictWarning(err))
		a.logger.Warn("block reconciliation failed, booking kept",
			slog.String("kind", string(ConflictOrStale)), logging.Err(err))
	}
	a.result.Remaining = remaining
	a.result.Warnings = warnings

	a.enter(StateNotifying)
	if r.notifier != nil {
		err := r.notifier.Notify(ctx, notify.Confirmation{
			EventID:       eventID,
			Start:         slotStart,
			End:           slotEnd,
			TimeZone:      tz,
			AttendeeName:  req.AttendeeName,
			AttendeeEmail: req.AttendeeEmail,
			Topic:         req.Topic,
			AttachmentRef: req.AttachmentRef,
		})
		if err != nil {
			a.logger.Warn("failed to enqueue notifications", logging.Err(err))
		}
	}

	a.enter(StateDone)
	a.result.Message = ConfirmationMessage
	a.logger.Info("booking confirmed", slog.Int("warnings", len(a.result.Warnings)))
	return a.result, nil
}

// reconcile updates block [a,b) after booking [s,e) out of it and returns
// what stays free. A version conflict on the conditional write is returned
// as the error; a failure to recreate the trailing remainder is a warning.
func (r *Reconciler) reconcile(ctx context.Context, block calendar.FreeBlock, s, e time.Time) ([]Interval, []string, error) {
	a, b := block.Start, block.End

	switch {
	case s.Equal(a) && !e.Before(b):
		return nil, nil, r.gateway.DeleteBlock(ctx, block.ID, block.ETag)

	case s.Equal(a):
		if err := r.gateway.PatchBlockStart(ctx, block.ID, block.ETag, e); err != nil {
			return nil, nil, err
		}
		return []Interval{{Start: e, End: b}}, nil, nil

	case !e.Before(b):
		if err := r.gateway.PatchBlockEnd(ctx, block.ID, block.ETag, s); err != nil {
			return nil, nil, err
		}
		return []Interval{{Start: a, End: s}}, nil, nil

	default:
		if err := r.gateway.PatchBlockEnd(ctx, block.ID, block.ETag, s); err != nil {
			return nil, nil, err
		}
		head := Interval{Start: a, End: s}
		tz := block.TimeZone
		if tz == "" {
			tz = r.defaultTZ
		}
		if _, err := r.gateway.CreateFreeBlock(ctx, e, b, tz); err != nil {
			r.logger.Warn("failed to recreate trailing free block",
				logging.BlockID(block.ID), logging.Err(err))
			return []Interval{head}, []string{conflictWarning(fmt.Errorf("recreate free time after booking: %w", err))}, nil
		}
		return []Interval{head, {Start: e, End: b}}, nil, nil
	}
}

func conflictWarning(err error) string {
	return fmt.Sprintf("%s: %v", ConflictOrStale, err)
}

func outcomeFor(result *Result, err error) string {
	if err == nil {
		if len(result.Warnings) > 0 {
			return instrumentation.OutcomeBookedWithWarnings
		}
		return instrumentation.OutcomeBooked
	}
	switch KindOf(err) {
	case InvalidRequest:
		return instrumentation.OutcomeInvalidRequest
	case SlotNoLongerAvailable:
		return instrumentation.OutcomeSlotUnavailable
	case Unauthorized:
		return instrumentation.OutcomeUnauthorized
	default:
		return instrumentation.OutcomeUpstreamError
	}
}
