package notify

import (
	"context"
	"errors"
	"time"
)

// Confirmation is a committed booking handed to the notifier.
type Confirmation struct {
	EventID       string    `json:"event_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	TimeZone      string    `json:"time_zone,omitempty"`
	AttendeeName  string    `json:"attendee_name"`
	AttendeeEmail string    `json:"attendee_email"`
	Topic         string    `json:"topic,omitempty"`
	AttachmentRef string    `json:"attachment_ref,omitempty"`
}

// ContactMessage is a contact form submission relayed to the owner.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Kind names a notification task.
type Kind string

const (
	KindAttendeeConfirmation Kind = "attendee_confirmation"
	KindOwnerNotification    Kind = "owner_notification"
	KindContact              Kind = "contact"
)

// BookingKinds are the tasks every committed booking expands into. The
// attendee confirmation carries the calendar invite, so the attendee gets
// one mail per booking.
var BookingKinds = []Kind{KindAttendeeConfirmation, KindOwnerNotification}

// Task is one unit of notification work. Exactly one of Confirmation and
// Contact is set.
type Task struct {
	ID           string          `json:"id"`
	Kind         Kind            `json:"kind"`
	Confirmation *Confirmation   `json:"confirmation,omitempty"`
	Contact      *ContactMessage `json:"contact,omitempty"`
}

// TaskState is the lifecycle position of a task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// TaskStatus is the tracked outcome of a task.
type TaskStatus struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	State     TaskState `json:"state"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Queue runs tasks after the request that produced them has returned.
type Queue interface {
	Enqueue(ctx context.Context, task Task) (string, error)
	Status(id string) (TaskStatus, bool)
	Close() error
}

// ExecFunc runs a single task.
type ExecFunc func(ctx context.Context, task Task) error

var (
	// ErrQueueFull is returned when the in-process queue has no capacity left.
	ErrQueueFull = errors.New("notification queue full")

	// ErrQueueClosed is returned when enqueueing on a closed queue.
	ErrQueueClosed = errors.New("notification queue closed")
)

var errPanic = errors.New("notification task panicked")

// ErrIncompleteContact is returned for a contact message missing a field.
var ErrIncompleteContact = errors.New("all fields are required")

// ErrInvalidContact is returned for a contact message whose name or email
// cannot be placed in a mail header.
var ErrInvalidContact = errors.New("invalid name or email")
