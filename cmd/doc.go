// Package cmd implements the command-line interface for slotbook.
//
// This package provides the following commands:
//   - serve: Run the booking HTTP API, health checks, metrics and the optional MCP endpoint
//   - worker: Process notification tasks from Redis when the asynq queue is used
//   - authorize: Run the calendar authorization handshake from a terminal
//   - slots: List free blocks or bookable slots from the configured calendar
//   - generate-docs: Generate markdown documentation for the MCP tools
//   - version: Display version information
//
// Every flag falls back to an environment variable when it is not set on the
// command line.
package cmd
