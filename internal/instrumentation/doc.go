// Package instrumentation provides OpenTelemetry metrics, tracing and the
// booking audit stream for slotbook.
//
// # Metrics
//
//   - http_requests_total, http_request_duration_seconds: API traffic by method, path, status
//   - calendar_api_operations_total, calendar_api_operation_duration_seconds: remote calendar calls
//   - credential_refresh_total: refresh exchanges by result
//   - bookings_total, booking_duration_seconds: booking attempts by outcome
//   - notification_tasks_total: post-commit tasks by kind and terminal status
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds: MCP tool calls
//
// # Tracing
//
// Calendar calls run in client spans named calendar.<operation>. A booking runs
// in one booking.reconcile span with an event per state transition, and each
// notification task gets a notify.<kind> consumer span.
//
// # Configuration
//
//	INSTRUMENTATION_ENABLED      default true
//	METRICS_EXPORTER             prometheus | otlp | stdout
//	TRACING_EXPORTER             otlp | stdout | none
//	OTEL_EXPORTER_OTLP_ENDPOINT  collector host:port
//	OTEL_TRACES_SAMPLER_ARG      0.0 - 1.0
//	METRICS_DETAILED_LABELS      adds block ids to calendar metrics
//	AUDIT_LOGGING_INCLUDE_PII    full attendee emails in audit records
package instrumentation
