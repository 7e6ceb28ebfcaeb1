package notify

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

var (
	// ErrInvalidAddress is returned for a value that is not one mailbox.
	ErrInvalidAddress = errors.New("invalid email address")

	// ErrLineBreak is returned for a header value containing CR or LF.
	ErrLineBreak = errors.New("header value contains a line break")
)

// CheckHeaderText rejects text that would start a new header line.
func CheckHeaderText(s string) error {
	if strings.ContainsAny(s, "\r\n") {
		return ErrLineBreak
	}
	return nil
}

// ValidateEmail accepts a single bare address such as "jane@example.com".
// Display names, groups and lists are rejected.
func ValidateEmail(s string) error {
	if err := CheckHeaderText(s); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if addr.Name != "" || addr.Address != strings.TrimSpace(s) {
		return ErrInvalidAddress
	}
	return nil
}

// headerAddress parses one mailbox, display name allowed, and renders it for
// a header line. The display name is RFC 2047 encoded when needed.
func headerAddress(field, s string) (string, error) {
	if err := CheckHeaderText(s); err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", field, ErrInvalidAddress, err)
	}
	if addr.Name == "" {
		return addr.Address, nil
	}
	return addr.String(), nil
}
