package calendar

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

var (
	// ErrNotFound means the event no longer exists or was cancelled.
	ErrNotFound = errors.New("calendar event not found")

	// ErrPreconditionFailed means the event changed since its ETag was read.
	ErrPreconditionFailed = errors.New("calendar event changed since it was read")
)

// APIError is any other rejection by the calendar provider.
type APIError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("calendar %s failed (%d): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("calendar %s failed: %s", e.Op, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classify maps a transport or provider error onto the package errors.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("calendar %s: %w", op, ErrNotFound)
		case http.StatusPreconditionFailed:
			return fmt.Errorf("calendar %s: %w", op, ErrPreconditionFailed)
		}
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return &APIError{Op: op, Status: gerr.Code, Message: msg, Err: err}
	}

	return &APIError{Op: op, Message: err.Error(), Err: err}
}
