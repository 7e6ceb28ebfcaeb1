package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/slotbook/internal/logging"
)

const (
	defaultLocalHistory = 1000
	defaultTaskTimeout  = 30 * time.Second
)

// LocalQueue runs tasks on an in-process worker pool and keeps a bounded
// history of task outcomes.
type LocalQueue struct {
	exec    ExecFunc
	tasks   chan Task
	wg      sync.WaitGroup
	timeout time.Duration
	history int
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.Mutex
	closed   bool
	statuses map[string]*TaskStatus
	order    []string
}

// LocalOption configures a LocalQueue.
type LocalOption func(*LocalQueue)

// WithHistory bounds how many task statuses are remembered.
func WithHistory(n int) LocalOption {
	return func(q *LocalQueue) { q.history = n }
}

// WithTaskTimeout bounds how long one task may run.
func WithTaskTimeout(d time.Duration) LocalOption {
	return func(q *LocalQueue) { q.timeout = d }
}

// WithQueueLogger sets the logger.
func WithQueueLogger(logger *slog.Logger) LocalOption {
	return func(q *LocalQueue) { q.logger = logger }
}

// NewLocalQueue starts workers goroutines that run exec. capacity bounds the
// number of tasks waiting to run.
func NewLocalQueue(exec ExecFunc, workers, capacity int, opts ...LocalOption) *LocalQueue {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 64
	}
	q := &LocalQueue{
		exec:     exec,
		tasks:    make(chan Task, capacity),
		timeout:  defaultTaskTimeout,
		history:  defaultLocalHistory,
		now:      time.Now,
		logger:   slog.Default(),
		statuses: map[string]*TaskStatus{},
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = logging.WithComponent(q.logger, "queue")

	for range workers {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// Enqueue records the task as pending and hands it to a worker. It never
// blocks; a full queue returns ErrQueueFull.
func (q *LocalQueue) Enqueue(_ context.Context, task Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrQueueClosed
	}

	select {
	case q.tasks <- task:
	default:
		return "", ErrQueueFull
	}

	q.statuses[task.ID] = &TaskStatus{ID: task.ID, Kind: task.Kind, State: TaskPending, UpdatedAt: q.now()}
	q.order = append(q.order, task.ID)
	q.trim()
	return task.ID, nil
}

// Status returns the tracked status of a task.
func (q *LocalQueue) Status(id string) (TaskStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, ok := q.statuses[id]
	if !ok {
		return TaskStatus{}, false
	}
	return *s, true
}

// Close stops accepting tasks and waits for queued ones to finish.
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

func (q *LocalQueue) work() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.set(task.ID, TaskRunning, "")

		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.run(ctx, task)
		cancel()

		if err != nil {
			q.set(task.ID, TaskFailed, err.Error())
		} else {
			q.set(task.ID, TaskSucceeded, "")
		}
	}
}

func (q *LocalQueue) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("notification task panicked", logging.Task(string(task.Kind)), slog.Any("panic", r))
			err = errPanic
		}
	}()
	return q.exec(ctx, task)
}

func (q *LocalQueue) set(id string, state TaskState, errText string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s, ok := q.statuses[id]; ok {
		s.State = state
		s.Error = errText
		s.UpdatedAt = q.now()
	}
}

// trim drops the oldest statuses beyond the history bound. Callers hold mu.
func (q *LocalQueue) trim() {
	for len(q.order) > q.history {
		delete(q.statuses, q.order[0])
		q.order = q.order[1:]
	}
}
