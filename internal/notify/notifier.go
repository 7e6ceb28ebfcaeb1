package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teemow/slotbook/internal/logging"
)

// Notifier expands committed bookings into notification tasks.
type Notifier struct {
	queue  Queue
	logger *slog.Logger
}

// NewNotifier creates a notifier that enqueues onto queue.
func NewNotifier(queue Queue, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{queue: queue, logger: logging.WithComponent(logger, "notifier")}
}

// Enqueue schedules the attendee confirmation and the owner notification
// independently. It returns the ids of the tasks that were
// accepted and the joined errors of those that were not.
func (n *Notifier) Enqueue(ctx context.Context, c Confirmation) ([]string, error) {
	var (
		ids  []string
		errs []error
	)
	for _, kind := range BookingKinds {
		conf := c
		id, err := n.queue.Enqueue(ctx, Task{Kind: kind, Confirmation: &conf})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		n.logger.Debug("notification enqueued", logging.Task(string(kind)), slog.String("task_id", id))
		ids = append(ids, id)
	}
	return ids, errors.Join(errs...)
}

// Notify implements the booking notifier hook.
func (n *Notifier) Notify(ctx context.Context, c Confirmation) error {
	_, err := n.Enqueue(ctx, c)
	return err
}

// Status returns the tracked status of a task.
func (n *Notifier) Status(id string) (TaskStatus, bool) {
	return n.queue.Status(id)
}

// ContactRelay forwards contact form submissions to the owner.
type ContactRelay struct {
	queue Queue
}

// NewContactRelay creates a relay on queue.
func NewContactRelay(queue Queue) *ContactRelay {
	return &ContactRelay{queue: queue}
}

// Relay validates and enqueues a contact message.
func (r *ContactRelay) Relay(ctx context.Context, m ContactMessage) (string, error) {
	if m.Name == "" || m.Email == "" || m.Message == "" {
		return "", ErrIncompleteContact
	}
	if err := CheckHeaderText(m.Name); err != nil {
		return "", fmt.Errorf("%w: name: %w", ErrInvalidContact, err)
	}
	if err := ValidateEmail(m.Email); err != nil {
		return "", fmt.Errorf("%w: email: %w", ErrInvalidContact, err)
	}
	return r.queue.Enqueue(ctx, Task{Kind: KindContact, Contact: &m})
}
