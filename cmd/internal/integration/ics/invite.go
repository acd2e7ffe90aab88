// Package ics renders the iCalendar REQUEST attached to customer
// confirmation emails.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

const (
	ContentType = "text/calendar; method=REQUEST; charset=UTF-8"
	productID   = "-//fieldconfirm//visit scheduling//EN"
)

type Party struct {
	Name  string
	Email string
}

type Invite struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Organizer   Party
	Attendees   []Party
}

// WallClock combines a "2006-01-02" date and a "15:04" clock reading in loc.
// Seconds are accepted but not required.
func WallClock(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	layouts := []string{"2006-01-02 15:04", "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, date+" "+strings.TrimSpace(clock), loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse wall clock %q %q", date, clock)
}

// Build encodes the invite as a single-event VCALENDAR.
func Build(inv *Invite, now time.Time) ([]byte, error) {
	if inv.Organizer.Email == "" {
		return nil, errors.New("ics: organizer email is required")
	}
	if !inv.End.After(inv.Start) {
		return nil, errors.New("ics: end must be after start")
	}

	uid := inv.UID
	if uid == "" {
		uid = uuid.NewString()
	}

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, inv.Start)
	event.Props.SetDateTime(ical.PropDateTimeEnd, inv.End)
	event.Props.SetText(ical.PropSummary, inv.Summary)
	event.Props.SetText(ical.PropStatus, "CONFIRMED")
	if inv.Description != "" {
		event.Props.SetText(ical.PropDescription, inv.Description)
	}
	if inv.Location != "" {
		event.Props.SetText(ical.PropLocation, inv.Location)
	}

	event.Props.Add(partyProp(ical.PropOrganizer, inv.Organizer))
	for _, a := range inv.Attendees {
		prop := partyProp(ical.PropAttendee, a)
		prop.Params.Set("ROLE", "REQ-PARTICIPANT")
		prop.Params.Set("PARTSTAT", "NEEDS-ACTION")
		prop.Params.Set("RSVP", "TRUE")
		event.Props.Add(prop)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropMethod, "REQUEST")
	cal.Children = append(cal.Children, event.Component)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("ics: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func partyProp(name string, p Party) *ical.Prop {
	prop := ical.NewProp(name)
	prop.Value = "mailto:" + p.Email
	if p.Name != "" {
		prop.Params.Set(ical.ParamCommonName, p.Name)
	}
	return prop
}
