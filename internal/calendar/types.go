package calendar

import (
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

const (
	// DefaultAvailabilityQuery is the free-text marker the owner puts on
	// bookable blocks.
	DefaultAvailabilityQuery = "available for booking"

	// DefaultTimeZone is used when neither the block nor the request names one.
	DefaultTimeZone = "Europe/Amsterdam"

	// DefaultHorizonDays bounds how far ahead free blocks are listed.
	DefaultHorizonDays = 14
)

// FreeBlock is an owner-marked available interval on the calendar.
// ETag is the version the block was read at; conditional writes use it.
type FreeBlock struct {
	ID       string
	Start    time.Time
	End      time.Time
	TimeZone string
	ETag     string
}

// Duration returns the length of the block.
func (b FreeBlock) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// Contains reports whether [start, end) lies inside the block.
func (b FreeBlock) Contains(start, end time.Time) bool {
	return !start.Before(b.Start) && !end.After(b.End) && start.Before(end)
}

// BookingEvent is the calendar event that represents a confirmed meeting.
type BookingEvent struct {
	Start         time.Time
	End           time.Time
	AttendeeName  string
	AttendeeEmail string
	Topic         string
	TimeZone      string
}

// toFreeBlock converts a remote event. All-day and malformed events are not
// blocks and report false.
func toFreeBlock(event *calendar.Event) (FreeBlock, bool) {
	if event == nil || event.Start == nil || event.End == nil {
		return FreeBlock{}, false
	}
	if event.Start.DateTime == "" || event.End.DateTime == "" {
		return FreeBlock{}, false
	}

	start, err := time.Parse(time.RFC3339, event.Start.DateTime)
	if err != nil {
		return FreeBlock{}, false
	}
	end, err := time.Parse(time.RFC3339, event.End.DateTime)
	if err != nil {
		return FreeBlock{}, false
	}

	return FreeBlock{
		ID:       event.Id,
		Start:    start,
		End:      end,
		TimeZone: event.Start.TimeZone,
		ETag:     event.Etag,
	}, true
}

// Private extended property set on events this engine creates.
const (
	markerKey       = "slotbook"
	markerFreeBlock = "free-block"
	markerBooking   = "booking"
)

func marker(value string) *calendar.EventExtendedProperties {
	return &calendar.EventExtendedProperties{Private: map[string]string{markerKey: value}}
}

// isFreeBlockEvent reports whether event is marked available for booking:
// tagged as a free block, or carrying query in its summary or description.
// Booking events never qualify, whatever text the booker put into them.
func isFreeBlockEvent(event *calendar.Event, query string) bool {
	if event == nil {
		return false
	}
	if p := event.ExtendedProperties; p != nil {
		switch p.Private[markerKey] {
		case markerBooking:
			return false
		case markerFreeBlock:
			return true
		}
	}
	if query == "" {
		return false
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(event.Summary), q) ||
		strings.Contains(strings.ToLower(event.Description), q)
}
