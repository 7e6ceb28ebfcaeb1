package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/slotbook/internal/calendar"
	"github.com/teemow/slotbook/internal/credential"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "single value", input: "https://example.com", expected: []string{"https://example.com"}},
		{name: "multiple values", input: "https://example.com,https://www.example.com", expected: []string{"https://example.com", "https://www.example.com"}},
		{name: "values with spaces around comma", input: "https://example.com, https://www.example.com", expected: []string{"https://example.com", "https://www.example.com"}},
		{name: "trailing comma", input: "https://example.com,", expected: []string{"https://example.com"}},
		{name: "multiple consecutive commas", input: "a,,b", expected: []string{"a", "b"}},
		{name: "only commas and spaces", input: ",  , , ", expected: nil},
		{name: "wildcard", input: " * ", expected: []string{"*"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseCommaSeparatedList(tt.input))
		})
	}
}

// newFlagCmd parses args against a command carrying the global flags.
func newFlagCmd(t *testing.T, g *globalConfig, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	g.bindFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestGlobalConfigLoadEnv(t *testing.T) {
	t.Run("env fills unset flags", func(t *testing.T) {
		t.Setenv("CALENDAR_ID", "owner@example.com")
		t.Setenv("BOOKING_HORIZON_DAYS", "21")
		t.Setenv("CREDENTIAL_STORE", "memory")

		g := defaultGlobalConfig()
		cmd := newFlagCmd(t, g)
		require.NoError(t, g.loadEnv(cmd))

		assert.Equal(t, "owner@example.com", g.CalendarID)
		assert.Equal(t, 21, g.HorizonDays)
		assert.Equal(t, credentialStoreMemory, g.CredentialStore)
		assert.Equal(t, calendar.DefaultTimeZone, g.TimeZone)
	})

	t.Run("explicit flag wins over env", func(t *testing.T) {
		t.Setenv("CALENDAR_ID", "env@example.com")
		t.Setenv("BOOKING_HORIZON_DAYS", "21")

		g := defaultGlobalConfig()
		cmd := newFlagCmd(t, g, "--calendar-id", "flag@example.com", "--horizon-days", "7")
		require.NoError(t, g.loadEnv(cmd))

		assert.Equal(t, "flag@example.com", g.CalendarID)
		assert.Equal(t, 7, g.HorizonDays)
	})

	t.Run("invalid number", func(t *testing.T) {
		t.Setenv("REDIS_DB", "one")

		g := defaultGlobalConfig()
		err := g.loadEnv(newFlagCmd(t, g))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REDIS_DB")
	})

	t.Run("unsupported credential store", func(t *testing.T) {
		g := defaultGlobalConfig()
		err := g.loadEnv(newFlagCmd(t, g, "--credential-store", "s3"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported credential store")
	})

	t.Run("non-positive horizon", func(t *testing.T) {
		g := defaultGlobalConfig()
		assert.Error(t, g.loadEnv(newFlagCmd(t, g, "--horizon-days", "0")))
	})
}

func TestRequireCalendar(t *testing.T) {
	g := defaultGlobalConfig()
	err := g.requireCalendar()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--calendar-id")
	assert.Contains(t, err.Error(), "--google-client-secret")

	g.CalendarID = "owner@example.com"
	g.GoogleClientID = "id"
	g.GoogleClientSecret = "secret"
	assert.NoError(t, g.requireCalendar())
}

func TestBoolAndFloatFromEnv(t *testing.T) {
	cfg := &serveConfig{}
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().BoolVar(&cfg.EnableMCP, "mcp", false, "")
	cmd.Flags().Float64Var(&cfg.RateLimit, "rate-limit", 5, "")
	require.NoError(t, cmd.ParseFlags(nil))

	t.Setenv("MCP_ENABLED", "true")
	t.Setenv("RATE_LIMIT", "0.5")

	boolFromEnv(cmd, "mcp", "MCP_ENABLED", &cfg.EnableMCP)
	require.NoError(t, floatFromEnv(cmd, "rate-limit", "RATE_LIMIT", &cfg.RateLimit))

	assert.True(t, cfg.EnableMCP)
	assert.InDelta(t, 0.5, cfg.RateLimit, 1e-9)
}

func TestServeOwnerEndpointsStayInternal(t *testing.T) {
	cmd := newServeCmd()

	admin := cmd.Flags().Lookup("admin-addr")
	require.NotNil(t, admin)
	assert.Equal(t, "127.0.0.1:8081", admin.DefValue)
	assert.NotEqual(t, cmd.Flags().Lookup("http-addr").DefValue, admin.DefValue)
	assert.Contains(t, defaultRedirectURL, "localhost:8081")
}

func TestNotifyConfigLoadEnv(t *testing.T) {
	newCmd := func(n *notifyConfig, withQueue bool, args ...string) *cobra.Command {
		cmd := &cobra.Command{Use: "test"}
		n.bindFlags(cmd, withQueue)
		require.NoError(t, cmd.ParseFlags(args))
		return cmd
	}

	t.Run("owner required when notifying", func(t *testing.T) {
		n := &notifyConfig{}
		err := n.loadEnv(newCmd(n, true))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--owner-email")
	})

	t.Run("no owner needed without notifications", func(t *testing.T) {
		n := &notifyConfig{}
		require.NoError(t, n.loadEnv(newCmd(n, true, "--queue", "none")))
		assert.False(t, n.enabled())
	})

	t.Run("env selects queue", func(t *testing.T) {
		t.Setenv("NOTIFY_QUEUE", "asynq")
		t.Setenv("OWNER_EMAIL", "owner@example.com")

		n := &notifyConfig{}
		require.NoError(t, n.loadEnv(newCmd(n, true)))
		assert.Equal(t, queueAsynq, n.Queue)
		assert.Equal(t, "owner@example.com", n.OwnerEmail)
		assert.True(t, n.enabled())
	})

	t.Run("unsupported queue", func(t *testing.T) {
		n := &notifyConfig{}
		err := n.loadEnv(newCmd(n, true, "--queue", "kafka", "--owner-email", "owner@example.com"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported queue")
	})

	t.Run("owner must be one bare address", func(t *testing.T) {
		n := &notifyConfig{}
		err := n.loadEnv(newCmd(n, true, "--owner-email", "owner@example.com, other@example.com"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--owner-email")
	})

	t.Run("worker has no queue flag", func(t *testing.T) {
		t.Setenv("NOTIFY_QUEUE", "none")

		n := &notifyConfig{Queue: queueAsynq}
		require.NoError(t, n.loadEnv(newCmd(n, false, "--owner-email", "owner@example.com")))
		assert.Equal(t, queueAsynq, n.Queue)
	})
}

func TestOpenStore(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		g := defaultGlobalConfig()
		g.CredentialFile = t.TempDir() + "/credential.json"
		store, err := g.openStore(nil)
		require.NoError(t, err)
		assert.IsType(t, &credential.FileStore{}, store)
	})

	t.Run("memory", func(t *testing.T) {
		g := defaultGlobalConfig()
		g.CredentialStore = credentialStoreMemory
		store, err := g.openStore(nil)
		require.NoError(t, err)
		assert.IsType(t, &credential.TokenStoreAdapter{}, store)
	})

	t.Run("redis without client", func(t *testing.T) {
		g := defaultGlobalConfig()
		g.CredentialStore = credentialStoreRedis
		_, err := g.openStore(nil)
		assert.Error(t, err)
	})
}
