package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/giantswarm/mcp-oauth/storage/memory"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/teemow/slotbook/internal/calendar"
	"github.com/teemow/slotbook/internal/credential"
	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/notify"
)

// redisClient opens a client for the configured Redis. Callers close it.
func (g *globalConfig) redisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     g.RedisAddr,
		Password: g.RedisPassword,
		DB:       g.RedisDB,
	})
}

func (g *globalConfig) asynqRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     g.RedisAddr,
		Password: g.RedisPassword,
		DB:       g.RedisDB,
	}
}

// oauthConfig builds the Google OAuth client. Gmail send access is requested
// when notifications are delivered.
func (g *globalConfig) oauthConfig(withGmail bool) *oauth2.Config {
	return credential.OAuthConfig(g.GoogleClientID, g.GoogleClientSecret, g.RedirectURL, credential.Scopes(withGmail))
}

// openStore returns the configured credential backend. rdb is only used by
// the redis backend and may be nil otherwise.
func (g *globalConfig) openStore(rdb redis.UniversalClient) (credential.Store, error) {
	switch g.CredentialStore {
	case credentialStoreFile:
		path := g.CredentialFile
		if path == "" {
			path = credential.DefaultFilePath()
		}
		return credential.NewFileStore(path), nil
	case credentialStoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis credential store requires a redis client")
		}
		return credential.NewRedisStore(rdb, ""), nil
	case credentialStoreMemory:
		return credential.NewTokenStoreAdapter(memory.New()), nil
	default:
		return nil, fmt.Errorf("unsupported credential store: %s", g.CredentialStore)
	}
}

// openStandaloneStore opens the credential store for a one-shot command,
// connecting to Redis only when the redis backend is selected.
func (g *globalConfig) openStandaloneStore() (credential.Store, func(), error) {
	if g.CredentialStore != credentialStoreRedis {
		store, err := g.openStore(nil)
		return store, func() {}, err
	}
	rdb := g.redisClient()
	store, err := g.openStore(rdb)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return store, func() { _ = rdb.Close() }, nil
}

func newSession(store credential.Store, oauthCfg *oauth2.Config, logger *slog.Logger, metrics *instrumentation.Metrics) *credential.Session {
	return credential.NewSession(store, credential.OAuthRefresher(oauthCfg, nil),
		credential.WithLogger(logger),
		credential.WithMetrics(metrics),
	)
}

func (g *globalConfig) calendarClient(ctx context.Context, session *credential.Session, logger *slog.Logger, metrics *instrumentation.Metrics) (*calendar.Client, error) {
	client, err := calendar.NewClient(ctx, session.TokenSource(ctx), calendar.Config{
		CalendarID:      g.CalendarID,
		Query:           g.AvailabilityQuery,
		DefaultTimeZone: g.TimeZone,
	},
		calendar.WithLogger(logger),
		calendar.WithMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}
	return client, nil
}

// notifyConfig holds the notification settings shared by serve and worker.
type notifyConfig struct {
	Queue             string
	QueueName         string
	Workers           int
	Capacity          int
	OwnerEmail        string
	OwnerName         string
	SenderEmail       string
	AttachmentBaseURL string
}

// Notification queue backends.
const (
	queueLocal = "local"
	queueAsynq = "asynq"
	queueNone  = "none"
)

func (n *notifyConfig) bindFlags(cmd *cobra.Command, withQueueKind bool) {
	f := cmd.Flags()
	if withQueueKind {
		f.StringVar(&n.Queue, "queue", queueLocal, "Notification queue: local, asynq or none (env: NOTIFY_QUEUE)")
		f.IntVar(&n.Capacity, "queue-capacity", 100, "Pending task capacity of the local queue")
	}
	f.StringVar(&n.QueueName, "queue-name", notify.DefaultQueueName, "asynq queue name (env: NOTIFY_QUEUE_NAME)")
	f.IntVar(&n.Workers, "workers", 4, "Concurrent notification workers (env: NOTIFY_WORKERS)")
	f.StringVar(&n.OwnerEmail, "owner-email", "", "Calendar owner address receiving booking notifications (env: OWNER_EMAIL)")
	f.StringVar(&n.OwnerName, "owner-name", "", "Calendar owner display name (env: OWNER_NAME)")
	f.StringVar(&n.SenderEmail, "sender-email", "", "From address of outgoing mail (env: SENDER_EMAIL)")
	f.StringVar(&n.AttachmentBaseURL, "attachment-base-url", "", "Base URL booker uploads are fetched from (env: ATTACHMENT_BASE_URL)")
}

func (n *notifyConfig) loadEnv(cmd *cobra.Command) error {
	if cmd.Flags().Lookup("queue") != nil {
		stringFromEnv(cmd, "queue", "NOTIFY_QUEUE", &n.Queue)
	}
	stringFromEnv(cmd, "queue-name", "NOTIFY_QUEUE_NAME", &n.QueueName)
	stringFromEnv(cmd, "owner-email", "OWNER_EMAIL", &n.OwnerEmail)
	stringFromEnv(cmd, "owner-name", "OWNER_NAME", &n.OwnerName)
	stringFromEnv(cmd, "sender-email", "SENDER_EMAIL", &n.SenderEmail)
	stringFromEnv(cmd, "attachment-base-url", "ATTACHMENT_BASE_URL", &n.AttachmentBaseURL)
	if err := intFromEnv(cmd, "workers", "NOTIFY_WORKERS", &n.Workers); err != nil {
		return err
	}

	switch n.Queue {
	case "", queueLocal, queueAsynq, queueNone:
	default:
		return fmt.Errorf("unsupported queue: %s (supported: local, asynq, none)", n.Queue)
	}
	if n.Queue != queueNone && n.OwnerEmail == "" {
		return fmt.Errorf("--owner-email is required when notifications are enabled")
	}
	if n.OwnerEmail != "" {
		if err := notify.ValidateEmail(n.OwnerEmail); err != nil {
			return fmt.Errorf("invalid --owner-email: %w", err)
		}
	}
	return nil
}

func (n *notifyConfig) enabled() bool {
	return n.Queue != queueNone
}

// executor builds the task executor that renders mail and sends it through
// Gmail with the owner's credential.
func (n *notifyConfig) executor(ctx context.Context, session *credential.Session, logger *slog.Logger, metrics *instrumentation.Metrics) (*notify.Executor, error) {
	sender, err := notify.NewGmailSender(ctx, session.TokenSource(ctx), "", logger)
	if err != nil {
		return nil, err
	}

	var fetcher notify.AttachmentFetcher
	if n.AttachmentBaseURL != "" {
		fetcher = notify.NewHTTPAttachmentFetcher(n.AttachmentBaseURL, nil)
	}

	return notify.NewExecutor(sender, notify.ExecutorConfig{
		Owner:   notify.Organizer{Name: n.OwnerName, Email: n.OwnerEmail},
		From:    n.SenderEmail,
		Fetcher: fetcher,
		Logger:  logger,
		Metrics: metrics,
	}), nil
}
