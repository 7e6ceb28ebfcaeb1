package notify

import (
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

// Organizer is the calendar owner as it appears on invites.
type Organizer struct {
	Name  string
	Email string
}

// BuildInvite renders an iCalendar REQUEST for the booking with the owner as
// organizer and the booker as the only attendee.
func BuildInvite(c Confirmation, organizer Organizer, now time.Time) []byte {
	cal := ics.NewCalendarFor("slotbook")
	cal.SetMethod(ics.MethodRequest)

	uid := uuid.NewString()
	if c.EventID != "" {
		uid = c.EventID + "@slotbook"
	}

	event := cal.AddEvent(uid)
	event.SetDtStampTime(now)
	event.SetStartAt(c.Start)
	event.SetEndAt(c.End)
	event.SetSummary(inviteSummary(organizer))
	if c.Topic != "" {
		event.SetDescription(c.Topic)
	}
	event.SetStatus(ics.ObjectStatusConfirmed)
	if organizer.Email != "" {
		event.SetOrganizer(organizer.Email, ics.WithCN(organizerName(organizer)))
	}
	event.AddAttendee(c.AttendeeEmail,
		ics.WithCN(c.AttendeeName),
		ics.ParticipationRoleReqParticipant,
		ics.ParticipationStatusNeedsAction,
		ics.WithRSVP(true),
	)

	alarm := event.AddAlarm()
	alarm.SetAction(ics.ActionDisplay)
	alarm.SetTrigger("-PT30M")

	return []byte(cal.Serialize())
}

func organizerName(o Organizer) string {
	if o.Name != "" {
		return o.Name
	}
	return o.Email
}

func inviteSummary(o Organizer) string {
	if name := organizerName(o); name != "" {
		return "Consultation with " + name
	}
	return "Consultation"
}
