package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
)

// Config selects the calendar and how free blocks are recognised.
type Config struct {
	CalendarID      string
	Query           string
	DefaultTimeZone string

	// Endpoint overrides the API base URL. Tests point it at a fake server.
	Endpoint string
}

// Client wraps the Google Calendar service for one calendar.
type Client struct {
	svc        *calendar.Service
	calendarID string
	query      string
	defaultTZ  string
	now        func() time.Time
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithClock overrides the time source for the listing horizon.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a gateway that authenticates every call with tokens
// pulled from ts.
func NewClient(ctx context.Context, ts oauth2.TokenSource, cfg Config, opts ...Option) (*Client, error) {
	if cfg.CalendarID == "" {
		return nil, fmt.Errorf("calendar id is required")
	}

	httpClient := oauth2.NewClient(ctx, ts)

	// Force HTTP/1.1; the Calendar API intermittently resets HTTP/2 streams.
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ForceAttemptHTTP2 = false
	if transport, ok := httpClient.Transport.(*oauth2.Transport); ok {
		transport.Base = base
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := calendar.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	c := &Client{
		svc:        svc,
		calendarID: cfg.CalendarID,
		query:      cfg.Query,
		defaultTZ:  cfg.DefaultTimeZone,
		now:        time.Now,
		logger:     slog.Default(),
	}
	if c.query == "" {
		c.query = DefaultAvailabilityQuery
	}
	if c.defaultTZ == "" {
		c.defaultTZ = DefaultTimeZone
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithComponent(c.logger, "calendar")
	return c, nil
}

// CalendarID returns the calendar this client operates on.
func (c *Client) CalendarID() string {
	return c.calendarID
}

// observe runs fn inside a calendar span and records the operation metric.
func (c *Client) observe(ctx context.Context, op, blockID string, fn func(context.Context) error) error {
	attrs := instrumentation.NewSpanAttributeBuilder().
		WithCalendar(c.calendarID).
		WithBlock(blockID).
		Build()
	ctx, span := instrumentation.StartCalendarSpan(ctx, op, attrs...)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		c.logger.Debug("calendar operation failed",
			logging.Operation(op), logging.BlockID(blockID), logging.Err(err))
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordCalendarOperation(ctx, op, status, blockID, time.Since(start))
	return err
}

// ListFreeBlocks returns the timed free blocks in [now, now+horizonDays],
// ordered by start. No matches is an empty slice, not an error.
func (c *Client) ListFreeBlocks(ctx context.Context, horizonDays int) ([]FreeBlock, error) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	now := c.now()
	blocks := []FreeBlock{}

	err := c.observe(ctx, instrumentation.OperationList, "", func(ctx context.Context) error {
		call := c.svc.Events.List(c.calendarID).
			TimeMin(now.Format(time.RFC3339)).
			TimeMax(now.AddDate(0, 0, horizonDays).Format(time.RFC3339)).
			Q(c.query).
			SingleEvents(true).
			OrderBy("startTime")

		return call.Pages(ctx, func(page *calendar.Events) error {
			for _, event := range page.Items {
				if event.Status == "cancelled" || !isFreeBlockEvent(event, c.query) {
					continue
				}
				if block, ok := toFreeBlock(event); ok {
					blocks = append(blocks, block)
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, classify("list", err)
	}

	slices.SortStableFunc(blocks, func(a, b FreeBlock) int {
		return a.Start.Compare(b.Start)
	})
	return blocks, nil
}

// GetBlock fetches one block with its current ETag. An event that is not
// marked available for booking is reported as ErrNotFound, so no other event
// on the calendar can be patched or deleted through a booking.
func (c *Client) GetBlock(ctx context.Context, id string) (FreeBlock, error) {
	var event *calendar.Event
	err := c.observe(ctx, instrumentation.OperationGet, id, func(ctx context.Context) error {
		var err error
		event, err = c.svc.Events.Get(c.calendarID, id).Context(ctx).Do()
		return err
	})
	if err != nil {
		return FreeBlock{}, classify("get", err)
	}
	if event.Status == "cancelled" {
		return FreeBlock{}, fmt.Errorf("calendar get: event %s cancelled: %w", id, ErrNotFound)
	}

	if !isFreeBlockEvent(event, c.query) {
		return FreeBlock{}, fmt.Errorf("calendar get: event %s is not a free block: %w", id, ErrNotFound)
	}

	block, ok := toFreeBlock(event)
	if !ok {
		return FreeBlock{}, fmt.Errorf("calendar get: event %s is not a timed block: %w", id, ErrNotFound)
	}
	return block, nil
}

// PatchBlockStart moves the block start forward, conditional on etag.
func (c *Client) PatchBlockStart(ctx context.Context, id, etag string, newStart time.Time) error {
	patch := &calendar.Event{
		Start: &calendar.EventDateTime{DateTime: newStart.Format(time.RFC3339)},
	}
	return c.patch(ctx, instrumentation.OperationPatchStart, id, etag, patch)
}

// PatchBlockEnd moves the block end back, conditional on etag.
func (c *Client) PatchBlockEnd(ctx context.Context, id, etag string, newEnd time.Time) error {
	patch := &calendar.Event{
		End: &calendar.EventDateTime{DateTime: newEnd.Format(time.RFC3339)},
	}
	return c.patch(ctx, instrumentation.OperationPatchEnd, id, etag, patch)
}

func (c *Client) patch(ctx context.Context, op, id, etag string, patch *calendar.Event) error {
	err := c.observe(ctx, op, id, func(ctx context.Context) error {
		call := c.svc.Events.Patch(c.calendarID, id, patch).Context(ctx)
		if etag != "" {
			call.Header().Set("If-Match", etag)
		}
		_, err := call.Do()
		return err
	})
	return classify(op, err)
}

// DeleteBlock removes a fully consumed block, conditional on etag.
func (c *Client) DeleteBlock(ctx context.Context, id, etag string) error {
	err := c.observe(ctx, instrumentation.OperationDelete, id, func(ctx context.Context) error {
		call := c.svc.Events.Delete(c.calendarID, id).Context(ctx)
		if etag != "" {
			call.Header().Set("If-Match", etag)
		}
		return call.Do()
	})
	return classify("delete", err)
}

// CreateFreeBlock creates a new available block, used for the trailing
// remainder when a block is split. It returns the new block id.
func (c *Client) CreateFreeBlock(ctx context.Context, start, end time.Time, timeZone string) (string, error) {
	tz := c.timeZone(timeZone)
	event := &calendar.Event{
		Summary:            freeBlockSummary(c.query),
		Start:              &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: tz},
		End:                &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: tz},
		ExtendedProperties: marker(markerFreeBlock),
	}

	var created *calendar.Event
	err := c.observe(ctx, instrumentation.OperationCreateBlock, "", func(ctx context.Context) error {
		var err error
		created, err = c.svc.Events.Insert(c.calendarID, event).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", classify("create block", err)
	}
	return created.Id, nil
}

// CreateEvent creates the booking event and returns its remote id. The
// attendee is recorded in the description, not invited.
func (c *Client) CreateEvent(ctx context.Context, booking BookingEvent) (string, error) {
	tz := c.timeZone(booking.TimeZone)
	event := &calendar.Event{
		Summary:            "Consultation with " + booking.AttendeeName,
		Description:        bookingDescription(booking),
		ExtendedProperties: marker(markerBooking),
		Start:              &calendar.EventDateTime{DateTime: booking.Start.Format(time.RFC3339), TimeZone: tz},
		End:                &calendar.EventDateTime{DateTime: booking.End.Format(time.RFC3339), TimeZone: tz},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 30},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	var created *calendar.Event
	err := c.observe(ctx, instrumentation.OperationCreate, "", func(ctx context.Context) error {
		var err error
		created, err = c.svc.Events.Insert(c.calendarID, event).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", classify("create", err)
	}
	return created.Id, nil
}

// DeleteEvent removes a booking event. Only compensation uses it.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	err := c.observe(ctx, instrumentation.OperationDelete, id, func(ctx context.Context) error {
		return c.svc.Events.Delete(c.calendarID, id).Context(ctx).Do()
	})
	return classify("delete event", err)
}

func (c *Client) timeZone(tz string) string {
	if tz != "" {
		return tz
	}
	return c.defaultTZ
}

func freeBlockSummary(query string) string {
	if query == "" {
		return ""
	}
	return strings.ToUpper(query[:1]) + query[1:]
}

func bookingDescription(b BookingEvent) string {
	minutes := int(b.End.Sub(b.Start).Minutes())
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d-minute consultation booked via website\n\n", minutes)
	if b.Topic != "" {
		fmt.Fprintf(&sb, "Topic: %s\n", b.Topic)
	}
	fmt.Fprintf(&sb, "Attendee: %s <%s>\n\n", b.AttendeeName, b.AttendeeEmail)
	fmt.Fprintf(&sb, "Action required: send invite to %s", b.AttendeeEmail)
	return sb.String()
}
