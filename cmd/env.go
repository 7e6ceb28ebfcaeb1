package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/slotbook/internal/calendar"
	"github.com/teemow/slotbook/internal/logging"
)

// Credential store backends.
const (
	credentialStoreFile   = "file"
	credentialStoreRedis  = "redis"
	credentialStoreMemory = "memory"
)

const defaultRedirectURL = "http://localhost:8081/oauth/callback"

// globalConfig holds the calendar, OAuth, credential and logging settings
// every subcommand needs.
type globalConfig struct {
	CalendarID        string
	TimeZone          string
	HorizonDays       int
	AvailabilityQuery string

	GoogleClientID     string
	GoogleClientSecret string
	RedirectURL        string

	CredentialStore string
	CredentialFile  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel  string
	LogFormat string
	Debug     bool
}

func defaultGlobalConfig() *globalConfig {
	return &globalConfig{
		TimeZone:          calendar.DefaultTimeZone,
		HorizonDays:       calendar.DefaultHorizonDays,
		AvailabilityQuery: calendar.DefaultAvailabilityQuery,
		RedirectURL:       defaultRedirectURL,
		CredentialStore:   credentialStoreFile,
		RedisAddr:         "localhost:6379",
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

func (g *globalConfig) bindFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()

	f.StringVar(&g.CalendarID, "calendar-id", g.CalendarID, "Google Calendar ID holding the free blocks (env: CALENDAR_ID)")
	f.StringVar(&g.TimeZone, "timezone", g.TimeZone, "Time zone used when a block carries none (env: CALENDAR_TIMEZONE)")
	f.IntVar(&g.HorizonDays, "horizon-days", g.HorizonDays, "How many days ahead free blocks are listed (env: BOOKING_HORIZON_DAYS)")
	f.StringVar(&g.AvailabilityQuery, "availability-query", g.AvailabilityQuery, "Text that marks an event as a free block (env: AVAILABILITY_QUERY)")

	f.StringVar(&g.GoogleClientID, "google-client-id", "", "Google OAuth Client ID (env: GOOGLE_CLIENT_ID)")
	f.StringVar(&g.GoogleClientSecret, "google-client-secret", "", "Google OAuth Client Secret (env: GOOGLE_CLIENT_SECRET)")
	f.StringVar(&g.RedirectURL, "redirect-url", g.RedirectURL, "OAuth redirect URL registered with Google (env: OAUTH_REDIRECT_URL)")

	f.StringVar(&g.CredentialStore, "credential-store", g.CredentialStore, "Credential backend: file, redis or memory (env: CREDENTIAL_STORE)")
	f.StringVar(&g.CredentialFile, "credential-file", "", "Path of the credential file (env: CREDENTIAL_FILE, default: user cache dir)")

	f.StringVar(&g.RedisAddr, "redis-addr", g.RedisAddr, "Redis address for the redis credential store and the asynq queue (env: REDIS_ADDR)")
	f.StringVar(&g.RedisPassword, "redis-password", "", "Redis password (env: REDIS_PASSWORD)")
	f.IntVar(&g.RedisDB, "redis-db", 0, "Redis database number (env: REDIS_DB)")

	f.StringVar(&g.LogLevel, "log-level", g.LogLevel, "Log level: debug, info, warn or error (env: LOG_LEVEL)")
	f.StringVar(&g.LogFormat, "log-format", g.LogFormat, "Log format: json or text (env: LOG_FORMAT)")
	f.BoolVar(&g.Debug, "debug", false, "Enable debug logging")
}

// loadEnv applies environment variables to every flag that was not set
// explicitly.
func (g *globalConfig) loadEnv(cmd *cobra.Command) error {
	stringFromEnv(cmd, "calendar-id", "CALENDAR_ID", &g.CalendarID)
	stringFromEnv(cmd, "timezone", "CALENDAR_TIMEZONE", &g.TimeZone)
	stringFromEnv(cmd, "availability-query", "AVAILABILITY_QUERY", &g.AvailabilityQuery)
	stringFromEnv(cmd, "google-client-id", "GOOGLE_CLIENT_ID", &g.GoogleClientID)
	stringFromEnv(cmd, "google-client-secret", "GOOGLE_CLIENT_SECRET", &g.GoogleClientSecret)
	stringFromEnv(cmd, "redirect-url", "OAUTH_REDIRECT_URL", &g.RedirectURL)
	stringFromEnv(cmd, "credential-store", "CREDENTIAL_STORE", &g.CredentialStore)
	stringFromEnv(cmd, "credential-file", "CREDENTIAL_FILE", &g.CredentialFile)
	stringFromEnv(cmd, "redis-addr", "REDIS_ADDR", &g.RedisAddr)
	stringFromEnv(cmd, "redis-password", "REDIS_PASSWORD", &g.RedisPassword)
	stringFromEnv(cmd, "log-level", "LOG_LEVEL", &g.LogLevel)
	stringFromEnv(cmd, "log-format", "LOG_FORMAT", &g.LogFormat)

	if err := intFromEnv(cmd, "horizon-days", "BOOKING_HORIZON_DAYS", &g.HorizonDays); err != nil {
		return err
	}
	if err := intFromEnv(cmd, "redis-db", "REDIS_DB", &g.RedisDB); err != nil {
		return err
	}
	return g.validate()
}

func (g *globalConfig) validate() error {
	switch g.CredentialStore {
	case credentialStoreFile, credentialStoreRedis, credentialStoreMemory:
	default:
		return fmt.Errorf("unsupported credential store: %s (supported: file, redis, memory)", g.CredentialStore)
	}
	if g.HorizonDays <= 0 {
		return fmt.Errorf("horizon days must be positive, got %d", g.HorizonDays)
	}
	return nil
}

// requireCalendar reports the settings a calendar-backed command cannot run
// without.
func (g *globalConfig) requireCalendar() error {
	var missing []string
	if g.CalendarID == "" {
		missing = append(missing, "--calendar-id")
	}
	if g.GoogleClientID == "" {
		missing = append(missing, "--google-client-id")
	}
	if g.GoogleClientSecret == "" {
		missing = append(missing, "--google-client-secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (g *globalConfig) logger() *slog.Logger {
	level := logging.ParseLevel(g.LogLevel)
	if g.Debug {
		level = slog.LevelDebug
	}
	return logging.New(g.LogFormat, level)
}

// stringFromEnv sets dst from env unless the flag was set on the command line.
func stringFromEnv(cmd *cobra.Command, flag, env string, dst *string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func intFromEnv(cmd *cobra.Command, flag, env string, dst *int) error {
	if cmd.Flags().Changed(flag) {
		return nil
	}
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	*dst = n
	return nil
}

func floatFromEnv(cmd *cobra.Command, flag, env string, dst *float64) error {
	if cmd.Flags().Changed(flag) {
		return nil
	}
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	*dst = n
	return nil
}

// boolFromEnv only switches a flag on; "true" is the only accepted value.
func boolFromEnv(cmd *cobra.Command, flag, env string, dst *bool) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if os.Getenv(env) == "true" {
		*dst = true
	}
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
