package reconcile

import (
	"context"
	"fmt"
	"strings"

	"fieldconfirm/cmd/internal/domain/entity"
	"fieldconfirm/cmd/internal/integration/ics"
	"fieldconfirm/cmd/internal/integration/msgraph"
	"fieldconfirm/cmd/internal/utils"
	"github.com/labstack/gommon/log"
)

// SendCustomerInvite moves a schedule from tech_accepted to pending_customer:
// the customer is added to the event and receives an email with signed
// accept/decline links. Only a failed email send aborts the transition.
func (e *Engine) SendCustomerInvite(ctx context.Context, scheduleID string) (*entity.Schedule, error) {
	var result *entity.Schedule
	err := e.withScheduleLock(ctx, scheduleID, func() error {
		sched, ticket, err := e.load(scheduleID)
		if err != nil {
			return err
		}
		if err := requireStatus(sched, entity.StatusTechAccepted); err != nil {
			return err
		}
		if !ticket.HasCustomerEmail() {
			return ErrNoCustomerEmail
		}

		attendeeAdded := e.addCustomerAttendee(ctx, sched, ticket)

		msg := confirmationMessage(sched, ticket, e.responseLinks(sched.ID), e.cfg.Timezone)
		e.decorateMessage(ctx, msg, sched, ticket, attendeeAdded)

		if err := e.calendar.SendMail(ctx, msg); err != nil {
			return fmt.Errorf("schedule %s: %w: %w", sched.ID, ErrEmailNotSent, err)
		}

		upd := &entity.ScheduleUpdate{
			Status:                   entity.StatusPendingCustomer,
			TechCalendarResponse:     sched.TechCalendarResponse,
			CustomerCalendarResponse: sched.CustomerCalendarResponse,
			CustomerInviteSentAt:     stamp(sched.CustomerInviteSentAt, e.now().UTC().UnixMilli()),
		}
		if err := e.schedules.ApplyUpdate(sched.ID, upd, ""); err != nil {
			return err
		}
		upd.ApplyTo(sched)

		log.Infof("schedule %s: customer invite sent to %s", sched.ID, ticket.Email())
		result = sched
		return nil
	})
	return result, err
}

// addCustomerAttendee puts the customer on the event and marks the subject as
// awaiting the customer. It reports whether the customer is on the event.
func (e *Engine) addCustomerAttendee(ctx context.Context, sched *entity.Schedule, ticket *entity.Ticket) bool {
	eventID := sched.EventID()
	if eventID == "" {
		log.Warnf("schedule %s: no calendar event, customer gets the email only", sched.ID)
		return false
	}

	event, err := e.calendar.GetEvent(ctx, eventID)
	if err != nil {
		log.Warnf("schedule %s: could not load event %s to add customer: %v", sched.ID, eventID, err)
		return false
	}
	if _, ok := event.FindAttendee(ticket.Email()); ok {
		return true
	}

	attendees := append([]msgraph.Attendee{}, event.Attendees...)
	attendees = append(attendees, msgraph.Attendee{
		Type:         "required",
		EmailAddress: msgraph.EmailAddress{Name: ticket.CustomerName, Address: strings.TrimSpace(ticket.Email())},
	})

	patch := &msgraph.EventPatch{
		Attendees: attendees,
		Subject:   utils.Ptr(WithAwaitingMarker(event.Subject)),
		ShowAs:    utils.Ptr(msgraph.ShowAsTentative),
	}
	if err := e.calendar.UpdateEvent(ctx, eventID, patch); err != nil {
		log.Warnf("schedule %s: failed to add customer to event %s: %v", sched.ID, eventID, err)
		return false
	}
	return true
}

// decorateMessage sets the sender and, when the native invite did not go out,
// attaches an .ics file. Both steps are optional.
func (e *Engine) decorateMessage(ctx context.Context, msg *msgraph.Message, sched *entity.Schedule, ticket *entity.Ticket, attendeeAdded bool) {
	organizer := ics.Party{Name: sched.TechnicianName, Email: sched.TechnicianEmail}
	if sender, err := e.calendar.ResolveSender(ctx); err != nil {
		log.Warnf("schedule %s: could not resolve sender identity: %v", sched.ID, err)
	} else {
		msg.From = &msgraph.Recipient{EmailAddress: msgraph.EmailAddress{Name: sender.DisplayName, Address: sender.Address()}}
		organizer = ics.Party{Name: sender.DisplayName, Email: sender.Address()}
	}

	if attendeeAdded {
		return
	}
	att, err := inviteAttachment(sched, ticket, organizer, e.cfg.Timezone, e.now())
	if err != nil {
		log.Warnf("schedule %s: could not build invite attachment: %v", sched.ID, err)
		return
	}
	msg.Attachments = append(msg.Attachments, *att)
}
