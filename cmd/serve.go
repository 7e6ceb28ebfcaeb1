package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/teemow/slotbook/internal/api"
	"github.com/teemow/slotbook/internal/booking"
	"github.com/teemow/slotbook/internal/credential"
	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
	"github.com/teemow/slotbook/internal/mcptools"
	"github.com/teemow/slotbook/internal/notify"
	"github.com/teemow/slotbook/internal/server"
)

// serveConfig holds the settings of the serve command.
type serveConfig struct {
	HTTPAddr      string
	AdminAddr     string
	AdminSecret   string
	AllowedOrigin string
	RateLimit     float64
	RateBurst     int
	TrustProxy    bool
	EnableMCP     bool

	// EmbeddedWorker runs the asynq worker inside the server process.
	EmbeddedWorker bool

	Metrics MetricsConfig
	Notify  notifyConfig
}

// MetricsConfig holds configuration for the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

func newServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the booking API",
		Long: `Run the booking HTTP API for the portfolio site.

Endpoints:
  GET  /available-slots     free blocks within the booking horizon
  GET  /bookable-slots      free blocks split into fixed-length slots
  POST /book                book a slot and notify both parties
  POST /contact             relay a contact form message to the owner
  GET  /healthz, /readyz    liveness and readiness probes

Owner endpoints are served on --admin-addr only, never on --http-addr:
  GET  /token               a valid access token for the calendar owner
  GET  /oauth/init          start the calendar authorization handshake
  GET  /oauth/callback      finish the calendar authorization handshake
With --admin-secret, /token and /oauth/init require "Authorization: Bearer <secret>".

With --mcp the same engine is exposed to MCP clients at /mcp over the
streamable HTTP transport.

Notification Queue:
  local: in-process workers, tasks are lost on restart (default)
  asynq: Redis-backed tasks, processed in-process unless --embedded-worker=false
  none:  bookings are committed without sending any mail

Metrics:
  With --metrics-enabled a Prometheus endpoint is served on --metrics-addr.
  OpenTelemetry exporters are configured through the OTEL_* and
  METRICS_EXPORTER / TRACING_EXPORTER environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.loadEnv(cmd); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.HTTPAddr, "http-addr", ":8080", "HTTP listen address (env: HTTP_ADDR)")
	f.StringVar(&cfg.AdminAddr, "admin-addr", defaultAdminAddr, "Listen address of the owner endpoints, empty disables them (env: ADMIN_ADDR)")
	f.StringVar(&cfg.AdminSecret, "admin-secret", "", "Bearer secret required by /token and /oauth/init (env: ADMIN_SECRET)")
	f.StringVar(&cfg.AllowedOrigin, "allowed-origin", "*", "Comma-separated CORS origins (env: CORS_ALLOWED_ORIGIN)")
	f.Float64Var(&cfg.RateLimit, "rate-limit", 5, "Requests per second allowed per client IP, 0 disables limiting (env: RATE_LIMIT)")
	f.IntVar(&cfg.RateBurst, "rate-burst", 20, "Burst size of the per-IP rate limiter (env: RATE_BURST)")
	f.BoolVar(&cfg.TrustProxy, "trust-proxy", false, "Take the client IP from X-Forwarded-For and X-Real-IP (env: TRUST_PROXY)")
	f.BoolVar(&cfg.EnableMCP, "mcp", false, "Expose the MCP tools at /mcp (env: MCP_ENABLED)")
	f.BoolVar(&cfg.EmbeddedWorker, "embedded-worker", true, "Process asynq tasks inside the server process")
	f.BoolVar(&cfg.Metrics.Enabled, "metrics-enabled", false, "Serve Prometheus metrics (env: METRICS_ENABLED)")
	f.StringVar(&cfg.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics listen address (env: METRICS_ADDR)")
	cfg.Notify.bindFlags(cmd, true)

	return cmd
}

func (c *serveConfig) loadEnv(cmd *cobra.Command) error {
	stringFromEnv(cmd, "http-addr", "HTTP_ADDR", &c.HTTPAddr)
	stringFromEnv(cmd, "admin-addr", "ADMIN_ADDR", &c.AdminAddr)
	stringFromEnv(cmd, "admin-secret", "ADMIN_SECRET", &c.AdminSecret)
	stringFromEnv(cmd, "allowed-origin", "CORS_ALLOWED_ORIGIN", &c.AllowedOrigin)
	stringFromEnv(cmd, "metrics-addr", "METRICS_ADDR", &c.Metrics.Addr)
	boolFromEnv(cmd, "trust-proxy", "TRUST_PROXY", &c.TrustProxy)
	boolFromEnv(cmd, "mcp", "MCP_ENABLED", &c.EnableMCP)
	boolFromEnv(cmd, "metrics-enabled", "METRICS_ENABLED", &c.Metrics.Enabled)
	if err := floatFromEnv(cmd, "rate-limit", "RATE_LIMIT", &c.RateLimit); err != nil {
		return err
	}
	if err := intFromEnv(cmd, "rate-burst", "RATE_BURST", &c.RateBurst); err != nil {
		return err
	}
	return c.Notify.loadEnv(cmd)
}

func runServe(cfg *serveConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := globals.requireCalendar(); err != nil {
		return err
	}

	logger := globals.logger()
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	instrConfig.Logger = logger

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		// The signal context is already done here.
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	if cfg.Metrics.Enabled && provider.Enabled() {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("Metrics server failed", logging.Err(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			_ = metricsServer.Shutdown(ctx)
		}()
	}

	// Redis backs the credential store and the asynq queue; only connect when
	// one of them needs it.
	var rdb *redis.Client
	if globals.CredentialStore == credentialStoreRedis || cfg.Notify.Queue == queueAsynq {
		rdb = globals.redisClient()
		defer func() { _ = rdb.Close() }()
	}

	store, err := globals.openStore(redisOrNil(rdb))
	if err != nil {
		return err
	}
	oauthCfg := globals.oauthConfig(cfg.Notify.enabled())
	session := newSession(store, oauthCfg, logger, metrics)

	// Token sources outlive the signal so queued mail can drain on shutdown.
	clientCtx := context.WithoutCancel(shutdownCtx)

	cal, err := globals.calendarClient(clientCtx, session, logger, metrics)
	if err != nil {
		return err
	}

	queue, stopWorker, err := startQueue(clientCtx, cfg, session, rdb, logger, metrics)
	if err != nil {
		return err
	}
	defer stopWorker()

	auditLogger := instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)
	reconcilerOpts := []booking.Option{
		booking.WithDefaultTimeZone(globals.TimeZone),
		booking.WithLogger(logger),
		booking.WithMetrics(metrics),
		booking.WithAuditLogger(auditLogger),
	}
	var contact api.ContactRelay
	if queue != nil {
		reconcilerOpts = append(reconcilerOpts, booking.WithNotifier(notify.NewNotifier(queue, logger)))
		contact = notify.NewContactRelay(queue)
	}
	reconciler := booking.NewReconciler(cal, reconcilerOpts...)

	serverContext := server.NewServerContext(shutdownCtx, server.Dependencies{
		Session:     session,
		Calendar:    cal,
		Reconciler:  reconciler,
		Queue:       queue,
		QueueKind:   cfg.Notify.Queue,
		Metrics:     metrics,
		AuditLogger: auditLogger,
		Logger:      logger,
	})
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("Error during server context shutdown", logging.Err(err))
		}
	}()

	var limiter *api.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = api.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.TrustProxy)
		defer limiter.Stop()
	}

	handler := api.NewHandler(api.Config{
		Blocks:         cal,
		Booker:         reconciler,
		Contact:        contact,
		HorizonDays:    globals.HorizonDays,
		AllowedOrigins: parseCommaSeparatedList(cfg.AllowedOrigin),
		RateLimiter:    limiter,
		Logger:         logger,
		Metrics:        metrics,
	})

	health := server.NewHealthChecker(serverContext).WithCredentials(session)
	health.RegisterHealthEndpoints(handler.Mux())

	if cfg.EnableMCP {
		mcpSrv := mcpserver.NewMCPServer("slotbook", version,
			mcpserver.WithToolCapabilities(true),
		)
		if err := mcptools.Register(mcpSrv, mcptools.Deps{
			Blocks:      cal,
			Booker:      reconciler,
			HorizonDays: globals.HorizonDays,
			Metrics:     metrics,
		}); err != nil {
			return fmt.Errorf("failed to register MCP tools: %w", err)
		}
		handler.Mux().Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv,
			mcpserver.WithEndpointPath("/mcp"),
		))
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.ListenAndServe()
	}()

	var adminServer *http.Server
	if cfg.AdminAddr != "" {
		admin := api.NewAdminHandler(api.AdminConfig{
			Tokens:     session,
			Authorizer: credential.NewHandshake(oauthCfg, store, logger),
			Secret:     cfg.AdminSecret,
			Logger:     logger,
			Metrics:    metrics,
		})
		adminServer = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           admin,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			serverErr <- adminServer.ListenAndServe()
		}()
	}

	logger.Info("Booking API started",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("admin_addr", cfg.AdminAddr),
		slog.String("calendar", cal.CalendarID()),
		slog.String("queue", serverContext.QueueKind()),
		slog.Bool("mcp", cfg.EnableMCP),
	)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-shutdownCtx.Done():
	}

	logger.Info("Shutting down")
	health.SetReady(false)

	ctx, cancelShutdown := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelShutdown()
	if adminServer != nil {
		_ = adminServer.Shutdown(ctx)
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

const defaultAdminAddr = "127.0.0.1:8081"

// startQueue creates the configured notification queue. The returned stop
// function shuts down an embedded asynq worker and is always safe to call.
func startQueue(ctx context.Context, cfg *serveConfig, session *credential.Session, rdb *redis.Client, logger *slog.Logger, metrics *instrumentation.Metrics) (notify.Queue, func(), error) {
	noop := func() {}

	if !cfg.Notify.enabled() {
		logger.Warn("Notifications are disabled, bookings will not send any mail")
		return nil, noop, nil
	}

	exec, err := cfg.Notify.executor(ctx, session, logger, metrics)
	if err != nil {
		return nil, noop, err
	}

	switch cfg.Notify.Queue {
	case queueAsynq:
		queue := notify.NewAsynqQueue(rdb, cfg.Notify.QueueName)
		if !cfg.EmbeddedWorker {
			return queue, noop, nil
		}
		worker := notify.NewWorker(notify.WorkerConfig{
			Redis:       globals.asynqRedisOpt(),
			Queue:       cfg.Notify.QueueName,
			Concurrency: cfg.Notify.Workers,
			Logger:      logger,
		}, exec.Execute)
		if err := worker.Start(); err != nil {
			_ = queue.Close()
			return nil, noop, fmt.Errorf("failed to start notification worker: %w", err)
		}
		return queue, worker.Shutdown, nil
	default:
		queue := notify.NewLocalQueue(exec.Execute, cfg.Notify.Workers, cfg.Notify.Capacity,
			notify.WithQueueLogger(logger),
		)
		return queue, noop, nil
	}
}

// redisOrNil avoids handing a typed nil client to an interface parameter.
func redisOrNil(rdb *redis.Client) redis.UniversalClient {
	if rdb == nil {
		return nil
	}
	return rdb
}
