package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teemow/slotbook/internal/booking"
	"github.com/teemow/slotbook/internal/calendar"
	"github.com/teemow/slotbook/internal/credential"
	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
	"github.com/teemow/slotbook/internal/notify"
)

// Dependencies are the engine parts a ServerContext owns. Only Session is
// required; the rest may be nil when a command does not need them.
type Dependencies struct {
	Session    *credential.Session
	Calendar   *calendar.Client
	Reconciler *booking.Reconciler
	Queue      notify.Queue
	QueueKind  string

	Metrics     *instrumentation.Metrics
	AuditLogger *instrumentation.AuditLogger
	Logger      *slog.Logger
}

// ServerContext holds the dependencies shared by the HTTP API, the MCP tools
// and the health checks.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	deps   Dependencies
	logger *slog.Logger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context. Cancelling ctx or calling
// Shutdown ends it.
func NewServerContext(ctx context.Context, deps Dependencies) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		deps:   deps,
		logger: logging.WithComponent(logger, "server"),
	}
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Session returns the credential session.
func (sc *ServerContext) Session() *credential.Session {
	return sc.deps.Session
}

// Calendar returns the calendar client.
func (sc *ServerContext) Calendar() *calendar.Client {
	return sc.deps.Calendar
}

// Reconciler returns the booking reconciler.
func (sc *ServerContext) Reconciler() *booking.Reconciler {
	return sc.deps.Reconciler
}

// Queue returns the notification queue, or nil when notifications are off.
func (sc *ServerContext) Queue() notify.Queue {
	return sc.deps.Queue
}

// QueueKind names the configured queue backend.
func (sc *ServerContext) QueueKind() string {
	if sc.deps.QueueKind == "" {
		return "none"
	}
	return sc.deps.QueueKind
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.deps.Metrics
}

// AuditLogger returns the booking audit logger, which may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.deps.AuditLogger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the context and drains the notification queue.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.mu.Unlock()

	sc.cancel()
	if sc.deps.Queue != nil {
		sc.logger.Info("draining notification queue")
		return sc.deps.Queue.Close()
	}
	return nil
}
