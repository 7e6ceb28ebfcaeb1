// Package server holds the process-wide dependencies of slotbook and the
// operational HTTP endpoints around them.
//
// ServerContext owns the credential session, the calendar client, the booking
// reconciler and the notification queue, and shuts them down together.
//
// HealthChecker serves Kubernetes-style probes:
//   - /healthz: the process is alive
//   - /readyz: the server accepts traffic; also reports whether a calendar
//     credential is stored
//   - /healthz/detailed: uptime, credential expiry and queue kind
//
// MetricsServer exposes the Prometheus registry on a separate listener so
// operational metrics stay off the public API port.
package server
