// Package logging provides structured logging utilities for slotbook.
//
// All components log through log/slog. This package keeps attribute names
// consistent (block_id, state, task, ...) and keeps attendee PII and OAuth
// tokens out of operational logs.
//
// # Usage Patterns
//
//	logger := logging.WithOperation(slog.Default(), "booking.reconcile")
//	logger.Info("block shrunk",
//	    logging.BlockID(id),
//	    logging.UserHash(req.AttendeeEmail))
//
// AsynqLogger bridges slog into the asynq worker, whose logger interface
// takes fmt.Print style arguments.
package logging
