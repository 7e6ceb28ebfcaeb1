package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingQueue accepts tasks without running them.
type recordingQueue struct {
	mu     sync.Mutex
	tasks  []Task
	reject map[Kind]bool
}

func (q *recordingQueue) Enqueue(_ context.Context, task Task) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reject[task.Kind] {
		return "", ErrQueueFull
	}
	q.tasks = append(q.tasks, task)
	return string(task.Kind) + "-id", nil
}

func (q *recordingQueue) Status(id string) (TaskStatus, bool) {
	return TaskStatus{ID: id, State: TaskPending}, true
}

func (q *recordingQueue) Close() error { return nil }

func TestNotifierEnqueue(t *testing.T) {
	t.Run("independent tasks", func(t *testing.T) {
		q := &recordingQueue{}
		ids, err := NewNotifier(q, nil).Enqueue(context.Background(), testConfirmation())
		require.NoError(t, err)

		assert.Equal(t, []string{"attendee_confirmation-id", "owner_notification-id"}, ids)
		require.Len(t, q.tasks, 2)
		for _, task := range q.tasks {
			require.NotNil(t, task.Confirmation)
			assert.Equal(t, "evt123", task.Confirmation.EventID)
		}
		assert.NotSame(t, q.tasks[0].Confirmation, q.tasks[1].Confirmation)
	})

	t.Run("one rejected task does not stop the others", func(t *testing.T) {
		q := &recordingQueue{reject: map[Kind]bool{KindAttendeeConfirmation: true}}
		n := NewNotifier(q, nil)
		ids, err := n.Enqueue(context.Background(), testConfirmation())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrQueueFull))
		assert.Equal(t, []string{"owner_notification-id"}, ids)

		assert.Error(t, n.Notify(context.Background(), testConfirmation()))
	})
}

func TestContactRelay(t *testing.T) {
	tests := []struct {
		name    string
		msg     ContactMessage
		wantErr error
	}{
		{name: "complete", msg: ContactMessage{Name: "Sam", Email: "sam@example.com", Message: "hi"}},
		{name: "missing name", msg: ContactMessage{Email: "sam@example.com", Message: "hi"}, wantErr: ErrIncompleteContact},
		{name: "missing message", msg: ContactMessage{Name: "Sam", Email: "sam@example.com"}, wantErr: ErrIncompleteContact},
		{
			name:    "bcc injected through name",
			msg:     ContactMessage{Name: "Eve\r\nBcc: victim1@example.org, victim2@example.org", Email: "eve@example.com", Message: "hi"},
			wantErr: ErrInvalidContact,
		},
		{
			name:    "bcc injected through email",
			msg:     ContactMessage{Name: "Eve", Email: "eve@example.com\r\nBcc: victim3@example.org", Message: "hi"},
			wantErr: ErrInvalidContact,
		},
		{name: "malformed email", msg: ContactMessage{Name: "Sam", Email: "sam", Message: "hi"}, wantErr: ErrInvalidContact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &recordingQueue{}
			id, err := NewContactRelay(q).Relay(context.Background(), tt.msg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, q.tasks)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "contact-id", id)
			require.Len(t, q.tasks, 1)
			assert.Equal(t, KindContact, q.tasks[0].Kind)
		})
	}
}
