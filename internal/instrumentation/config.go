package instrumentation

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: slotbook)
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// ServiceInstanceID is the unique instance identifier (default: hostname)
	ServiceInstanceID string

	// Enabled determines if instrumentation is active (default: true).
	// INSTRUMENTATION_ENABLED=false disables metrics and tracing.
	Enabled bool

	// MetricsExporter is one of "prometheus", "otlp", "stdout" (default: "prometheus")
	MetricsExporter string

	// TracingExporter is one of "otlp", "stdout", "none" (default: "none")
	TracingExporter string

	// OTLPEndpoint is the OTLP collector endpoint without scheme, e.g. "localhost:4318"
	OTLPEndpoint string

	// OTLPInsecure switches the OTLP exporters to plain HTTP.
	OTLPInsecure bool

	// TraceSamplingRate is the sampling rate for traces (0.0 to 1.0, default: 0.1)
	TraceSamplingRate float64

	// DetailedLabels adds high-cardinality labels (block ids) to calendar metrics.
	DetailedLabels bool

	// AuditLogging configures the booking audit stream.
	AuditLogging AuditLoggingConfig

	// Logger receives exporter warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// AuditLoggingConfig holds configuration for booking audit logging.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true)
	Enabled bool

	// IncludePII includes attendee email addresses in audit records.
	// When false (default), only anonymized identifiers are logged.
	IncludePII bool
}

// Environment variables read by DefaultConfig.
const (
	EnvServiceName       = "OTEL_SERVICE_NAME"
	EnvServiceInstanceID = "OTEL_SERVICE_INSTANCE_ID"
	EnvEnabled           = "INSTRUMENTATION_ENABLED"
	EnvMetricsExporter   = "METRICS_EXPORTER"
	EnvTracingExporter   = "TRACING_EXPORTER"
	EnvOTLPEndpoint      = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure      = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvTraceSamplingRate = "OTEL_TRACES_SAMPLER_ARG"
	EnvDetailedLabels    = "METRICS_DETAILED_LABELS"
	EnvAuditEnabled      = "AUDIT_LOGGING_ENABLED"
	EnvAuditIncludePII   = "AUDIT_LOGGING_INCLUDE_PII"
)

var (
	metricsExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}
	tracingExporters = []string{ExporterOTLP, ExporterStdout, ExporterNone}
)

// DefaultConfig returns a Config with defaults taken from environment variables.
// Unparseable values fall back to the default.
func DefaultConfig() Config {
	return Config{
		ServiceName:       envOr(EnvServiceName, "slotbook", parseString),
		ServiceVersion:    "unknown",
		ServiceInstanceID: envOr(EnvServiceInstanceID, "", parseString),
		Enabled:           envOr(EnvEnabled, true, strconv.ParseBool),
		MetricsExporter:   envOr(EnvMetricsExporter, ExporterPrometheus, parseString),
		TracingExporter:   envOr(EnvTracingExporter, ExporterNone, parseString),
		OTLPEndpoint:      envOr(EnvOTLPEndpoint, "", parseString),
		OTLPInsecure:      envOr(EnvOTLPInsecure, false, strconv.ParseBool),
		TraceSamplingRate: envOr(EnvTraceSamplingRate, 0.1, parseFloat),
		DetailedLabels:    envOr(EnvDetailedLabels, false, strconv.ParseBool),
		AuditLogging: AuditLoggingConfig{
			Enabled:    envOr(EnvAuditEnabled, true, strconv.ParseBool),
			IncludePII: envOr(EnvAuditIncludePII, false, strconv.ParseBool),
		},
	}
}

// Validate checks if the configuration is valid. Empty exporters select the
// defaults.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}
	if c.MetricsExporter != "" && !slices.Contains(metricsExporters, c.MetricsExporter) {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: %s", c.MetricsExporter, strings.Join(metricsExporters, ", "))
	}
	if c.TracingExporter != "" && !slices.Contains(tracingExporters, c.TracingExporter) {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: %s", c.TracingExporter, strings.Join(tracingExporters, ", "))
	}
	if (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when using an OTLP exporter")
	}
	return nil
}

func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	parsed, err := parse(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseString(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// Constants for metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	// Credential refresh results
	RefreshResultSuccess = "success"
	RefreshResultFailure = "failure"

	// Booking outcomes, one per terminal reconciler result
	OutcomeBooked             = "booked"
	OutcomeBookedWithWarnings = "booked_with_warnings"
	OutcomeInvalidRequest     = "invalid_request"
	OutcomeSlotUnavailable    = "slot_unavailable"
	OutcomeUnauthorized       = "unauthorized"
	OutcomeUpstreamError      = "upstream_error"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	DefaultMetricInterval = 10 * time.Second
)
