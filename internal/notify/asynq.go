package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/teemow/slotbook/internal/logging"
)

const (
	// TaskTypePrefix prefixes the asynq task type of every notification kind.
	TaskTypePrefix = "notify:"

	// DefaultQueueName is the asynq queue notifications are placed on.
	DefaultQueueName = "notifications"

	defaultRetention = 24 * time.Hour
)

// TaskType returns the asynq task type for kind.
func TaskType(kind Kind) string {
	return TaskTypePrefix + string(kind)
}

// AsynqQueue places tasks on a Redis-backed asynq queue so they outlive the
// process that enqueued them. Status is read back from the asynq inspector.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	retention time.Duration
	timeout   time.Duration
}

// NewAsynqQueue creates a queue on top of a shared Redis client. Close does
// not close rdb.
func NewAsynqQueue(rdb redis.UniversalClient, queue string) *AsynqQueue {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &AsynqQueue{
		client:    asynq.NewClientFromRedisClient(rdb),
		inspector: asynq.NewInspectorFromRedisClient(rdb),
		queue:     queue,
		retention: defaultRetention,
		timeout:   defaultTaskTimeout,
	}
}

// Enqueue serializes the task and hands it to asynq. Tasks are not retried:
// a failed notification is recorded, not resent.
func (q *AsynqQueue) Enqueue(ctx context.Context, task Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to encode task: %w", err)
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskType(task.Kind), payload),
		asynq.TaskID(task.ID),
		asynq.Queue(q.queue),
		asynq.MaxRetry(0),
		asynq.Retention(q.retention),
		asynq.Timeout(q.timeout),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s task: %w", task.Kind, err)
	}
	return info.ID, nil
}

// Status reports the asynq state of a task.
func (q *AsynqQueue) Status(id string) (TaskStatus, bool) {
	info, err := q.inspector.GetTaskInfo(q.queue, id)
	if err != nil {
		return TaskStatus{}, false
	}
	return statusFromInfo(info), true
}

// Close releases the asynq client and inspector.
func (q *AsynqQueue) Close() error {
	// Both report an error when the connection is shared; that is expected.
	_ = q.client.Close()
	_ = q.inspector.Close()
	return nil
}

func statusFromInfo(info *asynq.TaskInfo) TaskStatus {
	s := TaskStatus{
		ID:    info.ID,
		Kind:  Kind(strings.TrimPrefix(info.Type, TaskTypePrefix)),
		Error: info.LastErr,
	}
	switch info.State {
	case asynq.TaskStateActive:
		s.State = TaskRunning
	case asynq.TaskStateCompleted:
		s.State = TaskSucceeded
		s.UpdatedAt = info.CompletedAt
	case asynq.TaskStateArchived:
		s.State = TaskFailed
		s.UpdatedAt = info.LastFailedAt
	default:
		s.State = TaskPending
	}
	return s
}

// TaskHandler adapts an ExecFunc to asynq.
type TaskHandler struct {
	exec ExecFunc
}

// NewTaskHandler wraps exec.
func NewTaskHandler(exec ExecFunc) *TaskHandler {
	return &TaskHandler{exec: exec}
}

// ProcessTask implements asynq.Handler.
func (h *TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var task Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("invalid notification payload: %v: %w", err, asynq.SkipRetry)
	}
	if task.ID == "" {
		if id, ok := asynq.GetTaskID(ctx); ok {
			task.ID = id
		}
	}
	if err := h.exec(ctx, task); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return nil
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Redis       asynq.RedisClientOpt
	Queue       string
	Concurrency int
	Logger      *slog.Logger
}

// Worker processes notification tasks from Redis.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewWorker creates a worker that runs exec for every notification kind.
func NewWorker(cfg WorkerConfig, exec ExecFunc) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithComponent(logger, "worker")

	queue := cfg.Queue
	if queue == "" {
		queue = DefaultQueueName
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	server := asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      logging.NewAsynqLogger(logger),
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, t *asynq.Task, err error) {
			logger.Warn("notification task errored",
				slog.String("type", t.Type()), logging.Err(err))
		}),
		ShutdownTimeout: 10 * time.Second,
	})

	handler := NewTaskHandler(exec)
	mux := asynq.NewServeMux()
	for _, kind := range append(append([]Kind{}, BookingKinds...), KindContact) {
		mux.Handle(TaskType(kind), handler)
	}

	return &Worker{server: server, mux: mux, logger: logger}
}

// Start begins processing in the background.
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	w.logger.Info("notification worker started")
	return nil
}

// Run processes tasks until the process receives a termination signal.
func (w *Worker) Run() error {
	if err := w.server.Run(w.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown waits for running tasks and stops the worker.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
	w.logger.Info("notification worker stopped")
}
