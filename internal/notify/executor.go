package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
)

// ExecutorConfig configures how tasks are turned into mail.
type ExecutorConfig struct {
	// Owner receives owner notifications and organizes invites.
	Owner Organizer

	// From is the sender address; empty lets the provider fill it in.
	From string

	// Fetcher, when set, attaches the booker's uploaded file to the owner
	// notification.
	Fetcher AttachmentFetcher

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Now     func() time.Time
}

// Executor runs notification tasks against a Sender.
type Executor struct {
	sender  Sender
	owner   Organizer
	from    string
	fetcher AttachmentFetcher
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	now     func() time.Time
}

// NewExecutor creates an executor.
func NewExecutor(sender Sender, cfg ExecutorConfig) *Executor {
	e := &Executor{
		sender:  sender,
		owner:   cfg.Owner,
		from:    cfg.From,
		fetcher: cfg.Fetcher,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.logger = logging.WithComponent(e.logger, "notify")
	return e
}

// Execute runs one task and records its terminal status.
func (e *Executor) Execute(ctx context.Context, task Task) error {
	ctx, span := instrumentation.StartTaskSpan(ctx, string(task.Kind))
	defer span.End()

	err := e.run(ctx, task)

	logger := e.logger.With(logging.Task(string(task.Kind)), slog.String("task_id", task.ID))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		e.metrics.RecordNotificationTask(ctx, string(task.Kind), instrumentation.StatusError)
		logger.Warn("notification task failed", logging.Err(err))
		return err
	}
	instrumentation.SetSpanSuccess(span)
	e.metrics.RecordNotificationTask(ctx, string(task.Kind), instrumentation.StatusSuccess)
	logger.Info("notification task succeeded")
	return nil
}

func (e *Executor) run(ctx context.Context, task Task) error {
	if task.Kind == KindContact {
		if task.Contact == nil {
			return errors.New("contact task without message")
		}
		return e.sender.Send(ctx, e.contactMessage(*task.Contact))
	}

	if task.Confirmation == nil {
		return fmt.Errorf("%s task without confirmation", task.Kind)
	}
	c := *task.Confirmation

	switch task.Kind {
	case KindAttendeeConfirmation:
		return e.sender.Send(ctx, e.attendeeMessage(c))
	case KindOwnerNotification:
		return e.sender.Send(ctx, e.ownerMessage(ctx, c))
	default:
		return fmt.Errorf("unknown notification task kind %q", task.Kind)
	}
}

func (e *Executor) attendeeMessage(c Confirmation) Message {
	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", c.AttendeeName)
	fmt.Fprintf(&body, "your consultation on %s is confirmed.\n", formatWhen(c))
	if c.Topic != "" {
		fmt.Fprintf(&body, "\nTopic: %s\n", c.Topic)
	}
	body.WriteString("\nThe calendar invite is included.\n")

	// The inline part drives the accept/decline controls, the attachment
	// serves clients that ignore it.
	invite := BuildInvite(c, e.owner, e.now())
	return Message{
		From:     e.from,
		To:       []string{c.AttendeeEmail},
		ReplyTo:  e.owner.Email,
		Subject:  fmt.Sprintf("Confirmed: %s @ %s", inviteSummary(e.owner), formatWhen(c)),
		TextBody: body.String(),
		Calendar: invite,
		Attachments: []Attachment{{
			Filename:    "invite.ics",
			ContentType: "text/calendar; method=REQUEST",
			Data:        invite,
		}},
	}
}

func (e *Executor) ownerMessage(ctx context.Context, c Confirmation) Message {
	var body strings.Builder
	fmt.Fprintf(&body, "New booking from %s <%s>\n", c.AttendeeName, c.AttendeeEmail)
	fmt.Fprintf(&body, "When: %s\n", formatWhen(c))
	if c.EventID != "" {
		fmt.Fprintf(&body, "Event: %s\n", c.EventID)
	}
	if c.Topic != "" {
		fmt.Fprintf(&body, "\nMessage:\n%s\n", c.Topic)
	}

	msg := Message{
		From:    e.from,
		To:      []string{e.owner.Email},
		ReplyTo: c.AttendeeEmail,
		Subject: "New booking: " + c.AttendeeName,
	}

	if c.AttachmentRef != "" {
		fmt.Fprintf(&body, "\nAttachment: %s\n", c.AttachmentRef)
		if e.fetcher != nil {
			att, err := e.fetcher.Fetch(ctx, c.AttachmentRef)
			if err != nil {
				e.logger.Warn("failed to fetch attachment, sending reference only",
					slog.String("ref", c.AttachmentRef), logging.Err(err))
			} else {
				msg.Attachments = append(msg.Attachments, att)
			}
		}
	}
	msg.TextBody = body.String()
	return msg
}

func (e *Executor) contactMessage(m ContactMessage) Message {
	return Message{
		From:     e.from,
		To:       []string{e.owner.Email},
		ReplyTo:  m.Email,
		Subject:  "New contact form submission from " + m.Name,
		TextBody: fmt.Sprintf("From: %s\nEmail: %s\n\nMessage:\n%s\n\nThis email was sent from your portfolio contact form.\n", m.Name, m.Email, m.Message),
	}
}

// formatWhen renders the booking time in its own zone.
func formatWhen(c Confirmation) string {
	loc := time.UTC
	if c.TimeZone != "" {
		if l, err := time.LoadLocation(c.TimeZone); err == nil {
			loc = l
		}
	}
	start := c.Start.In(loc)
	return fmt.Sprintf("%s, %s-%s (%s)",
		start.Format("Mon 2 Jan 2006"),
		start.Format("15:04"),
		c.End.In(loc).Format("15:04"),
		loc.String())
}
