package reconcile

import (
	"encoding/base64"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"fieldconfirm/cmd/internal/domain/entity"
	"fieldconfirm/cmd/internal/integration/ics"
	"fieldconfirm/cmd/internal/integration/msgraph"
	"fieldconfirm/cmd/internal/utils/signer"
)

// ResponseLinks are the signed accept/decline URLs sent to the customer.
type ResponseLinks struct {
	Accept  string
	Decline string
}

func (e *Engine) responseLinks(scheduleID string) ResponseLinks {
	build := func(action string) string {
		q := url.Values{}
		q.Set("action", action)
		q.Set("scheduleId", scheduleID)
		q.Set("token", e.signer.Sign(scheduleID, action))
		return e.cfg.PublicBaseURL + "/schedule-response?" + q.Encode()
	}
	return ResponseLinks{Accept: build(signer.ActionAccept), Decline: build(signer.ActionDecline)}
}

// visitWindow resolves the schedule's wall-clock slot in the configured zone.
func visitWindow(sched *entity.Schedule, loc *time.Location) (time.Time, time.Time, error) {
	start, err := ics.WallClock(sched.ScheduledDate, sched.ScheduledTimeStart, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ics.WallClock(sched.ScheduledDate, sched.ScheduledTimeEnd, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func visitSummary(ticket *entity.Ticket) string {
	if ticket.CustomerName == "" {
		return "Service visit"
	}
	return "Service visit - " + ticket.CustomerName
}

func confirmationMessage(sched *entity.Schedule, ticket *entity.Ticket, links ResponseLinks, loc *time.Location) *msgraph.Message {
	when := fmt.Sprintf("%s, %s - %s", sched.ScheduledDate, sched.ScheduledTimeStart, sched.ScheduledTimeEnd)
	if start, end, err := visitWindow(sched, loc); err == nil {
		when = fmt.Sprintf("%s, %s - %s (%s)", start.Format("Monday 2 January 2006"), start.Format("15:04"), end.Format("15:04"), loc.String())
	}

	greeting := "Hello,"
	if ticket.CustomerName != "" {
		greeting = "Hello " + html.EscapeString(ticket.CustomerName) + ","
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<p>%s</p>", greeting)
	fmt.Fprintf(&b, "<p>We have scheduled a service visit with %s on <strong>%s</strong>",
		html.EscapeString(technicianLabel(sched)), html.EscapeString(when))
	if ticket.CustomerAddress != "" {
		fmt.Fprintf(&b, " at %s", html.EscapeString(ticket.CustomerAddress))
	}
	b.WriteString(".</p>")
	b.WriteString("<p>Please accept the calendar invitation, or use one of the links below:</p>")
	fmt.Fprintf(&b, `<p><a href="%s">Accept appointment</a> &nbsp;|&nbsp; <a href="%s">Decline appointment</a></p>`,
		html.EscapeString(links.Accept), html.EscapeString(links.Decline))

	return &msgraph.Message{
		Subject: "Please confirm your service appointment on " + sched.ScheduledDate,
		Body:    msgraph.ItemBody{ContentType: "HTML", Content: b.String()},
		ToRecipients: []msgraph.Recipient{{
			EmailAddress: msgraph.EmailAddress{Name: ticket.CustomerName, Address: ticket.Email()},
		}},
	}
}

// inviteAttachment renders an .ics REQUEST for customers whose calendar
// never received the native invite.
func inviteAttachment(sched *entity.Schedule, ticket *entity.Ticket, organizer ics.Party, loc *time.Location, now time.Time) (*msgraph.Attachment, error) {
	start, end, err := visitWindow(sched, loc)
	if err != nil {
		return nil, err
	}

	raw, err := ics.Build(&ics.Invite{
		UID:       sched.EventID(),
		Summary:   visitSummary(ticket),
		Location:  ticket.CustomerAddress,
		Start:     start,
		End:       end,
		Organizer: organizer,
		Attendees: []ics.Party{{Name: ticket.CustomerName, Email: ticket.Email()}},
	}, now)
	if err != nil {
		return nil, err
	}

	return &msgraph.Attachment{
		ODataType:    "#microsoft.graph.fileAttachment",
		Name:         "appointment.ics",
		ContentType:  ics.ContentType,
		ContentBytes: base64.StdEncoding.EncodeToString(raw),
	}, nil
}

func technicianLabel(sched *entity.Schedule) string {
	if sched.TechnicianName != "" {
		return sched.TechnicianName
	}
	return "our technician"
}
