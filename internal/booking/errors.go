package booking

import (
	"errors"
	"net/http"

	"github.com/teemow/slotbook/internal/calendar"
	"github.com/teemow/slotbook/internal/credential"
)

// Kind classifies booking failures.
type Kind string

const (
	InvalidRequest        Kind = "invalid_request"
	SlotNoLongerAvailable Kind = "slot_no_longer_available"
	Unauthorized          Kind = "unauthorized"
	UpstreamError         Kind = "upstream_error"
	// ConflictOrStale is only ever reported as a warning on a committed booking.
	ConflictOrStale Kind = "conflict_or_stale"
)

// HTTPStatus returns the status a failure of this kind is surfaced with.
// Validation failures surface as 500, matching the public booking contract.
func (k Kind) HTTPStatus() int {
	switch k {
	case SlotNoLongerAvailable:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified booking failure. Message is safe to show the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of err, treating unclassified errors as upstream.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	if isUnauthorized(err) {
		return Unauthorized
	}
	return UpstreamError
}

func isUnauthorized(err error) bool {
	var refreshErr *credential.RefreshError
	return errors.Is(err, credential.ErrNotAuthorized) || errors.As(err, &refreshErr)
}

// isVersionConflict reports whether a conditional write lost to a concurrent change.
func isVersionConflict(err error) bool {
	return errors.Is(err, calendar.ErrPreconditionFailed) || errors.Is(err, calendar.ErrNotFound)
}

// providerMessage extracts the provider's own message when there is one.
func providerMessage(err error) string {
	var apiErr *calendar.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
