package booking

import (
	"strings"
	"time"

	"github.com/teemow/slotbook/internal/notify"
)

// Request asks to reserve [SlotStart, SlotStart+Duration) out of a free block.
type Request struct {
	SourceBlockID string
	SlotStart     time.Time
	Duration      time.Duration
	AttendeeName  string
	AttendeeEmail string
	Topic         string
	AttachmentRef string
}

// SlotEnd returns the end of the requested interval.
func (r Request) SlotEnd() time.Time {
	return r.SlotStart.Add(r.Duration)
}

// Validate rejects requests with absent required fields and attendee details
// that cannot be placed in a mail header.
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.AttendeeName) == "" {
		missing = append(missing, "attendeeName")
	}
	if strings.TrimSpace(r.AttendeeEmail) == "" {
		missing = append(missing, "attendeeEmail")
	}
	if r.Duration == 0 {
		missing = append(missing, "duration")
	}
	if r.SlotStart.IsZero() {
		missing = append(missing, "slotStart")
	}
	if strings.TrimSpace(r.SourceBlockID) == "" {
		missing = append(missing, "slotId")
	}
	if strings.TrimSpace(r.Topic) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return newError(InvalidRequest,
			"Missing required booking information: "+strings.Join(missing, ", "), nil)
	}

	if r.Duration < 0 {
		return newError(InvalidRequest, "Duration must be positive", nil)
	}
	if err := notify.ValidateEmail(r.AttendeeEmail); err != nil {
		return newError(InvalidRequest, "Invalid attendee email", err)
	}
	if err := notify.CheckHeaderText(r.AttendeeName); err != nil {
		return newError(InvalidRequest, "Invalid attendee name", err)
	}
	return nil
}
