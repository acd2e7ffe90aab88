package reconcile

import (
	"context"
	"fmt"

	"fieldconfirm/cmd/internal/domain/entity"
	"fieldconfirm/cmd/internal/integration/msgraph"
	"fieldconfirm/cmd/internal/utils"
	"github.com/labstack/gommon/log"
)

// Target is the schedule being transitioned plus what is already known about it.
// Event may be nil when the caller did not fetch it. Actor names the operator
// behind a manual transition.
type Target struct {
	Schedule *entity.Schedule
	Ticket   *entity.Ticket
	Event    *msgraph.Event
	Actor    string
}

// Applier performs the side effects of an evaluation and writes the schedule.
// External steps that only tidy the calendar are best-effort; the schedule
// write is the authoritative part.
type Applier struct {
	calendar  Calendar
	schedules ScheduleStore
	nowMillis func() int64
}

func NewApplier(cal Calendar, schedules ScheduleStore, nowMillis func() int64) *Applier {
	if nowMillis == nil {
		nowMillis = utils.NowUTC
	}
	return &Applier{calendar: cal, schedules: schedules, nowMillis: nowMillis}
}

// Apply returns the update it wrote, or nil when the action needs no write.
// method is recorded as the confirmation method on confirming transitions.
func (a *Applier) Apply(ctx context.Context, t *Target, ev Evaluation, method string) (*entity.ScheduleUpdate, error) {
	sched := t.Schedule
	now := a.nowMillis()

	upd := &entity.ScheduleUpdate{
		Status:                   ev.NewStatus,
		TechCalendarResponse:     ev.TechResponse,
		CustomerCalendarResponse: ev.CustomerResponse,
	}
	rollbackTicket := ""

	switch ev.Action {
	case ActionNoChange, ActionSkipped:
		return nil, nil

	case ActionTechAccepted:
		upd.TechnicianAcceptedAt = stamp(sched.TechnicianAcceptedAt, now)
		if ev.NewStatus == entity.StatusConfirmed {
			confirm(upd, sched, sched.TechnicianEmail, method, now)
			a.finalizeEvent(ctx, sched, t.Event)
		}

	case ActionCustomerAccepted:
		upd.CustomerAcceptedAt = stamp(sched.CustomerAcceptedAt, now)
		customer := ""
		if t.Ticket != nil {
			customer = t.Ticket.Email()
		}
		confirm(upd, sched, customer, method, now)
		a.finalizeEvent(ctx, sched, t.Event)

	case ActionForceConfirmed:
		confirm(upd, sched, t.Actor, method, now)
		a.finalizeEvent(ctx, sched, t.Event)

	case ActionTechDeclined, ActionCustomerDeclined, ActionEventDeleted:
		a.cancelEvent(ctx, sched, ev.Action)
		rollbackTicket = sched.TicketID

	default:
		return nil, fmt.Errorf("unknown action %q", ev.Action)
	}

	if err := a.schedules.ApplyUpdate(sched.ID, upd, rollbackTicket); err != nil {
		return nil, err
	}
	upd.ApplyTo(sched)
	if rollbackTicket != "" && t.Ticket != nil {
		t.Ticket.Status = entity.TicketStatusTriaged
	}

	log.Infof("schedule %s: %s -> %s", sched.ID, ev.Action, ev.NewStatus)
	return upd, nil
}

// finalizeEvent drops the awaiting-customer markers and shows the slot as busy.
func (a *Applier) finalizeEvent(ctx context.Context, sched *entity.Schedule, event *msgraph.Event) {
	eventID := sched.EventID()
	if eventID == "" {
		return
	}

	if event == nil {
		fetched, err := a.calendar.GetEvent(ctx, eventID)
		if err != nil {
			log.Warnf("schedule %s: could not fetch event %s for finalization: %v", sched.ID, eventID, err)
			return
		}
		event = fetched
	}

	patch := &msgraph.EventPatch{ShowAs: utils.Ptr(msgraph.ShowAsBusy)}
	if subject := StripAwaitingMarkers(event.Subject); subject != event.Subject {
		patch.Subject = &subject
	}

	if err := a.calendar.UpdateEvent(ctx, eventID, patch); err != nil {
		log.Warnf("schedule %s: failed to finalize event %s: %v", sched.ID, eventID, err)
	}
}

func (a *Applier) cancelEvent(ctx context.Context, sched *entity.Schedule, action Action) {
	eventID := sched.EventID()
	if eventID == "" {
		return
	}
	if err := a.calendar.CancelEvent(ctx, eventID, cancelComment(action)); err != nil {
		log.Warnf("schedule %s: failed to cancel event %s: %v", sched.ID, eventID, err)
	}
}

func cancelComment(action Action) string {
	switch action {
	case ActionTechDeclined:
		return "The technician is unavailable for this appointment. We will contact you to reschedule."
	case ActionCustomerDeclined:
		return "The appointment was declined. We will contact you to find another time."
	default:
		return "This appointment has been cancelled."
	}
}

func confirm(upd *entity.ScheduleUpdate, sched *entity.Schedule, by, method string, now int64) {
	upd.ConfirmedAt = stamp(sched.ConfirmedAt, now)
	if sched.ConfirmedBy != nil {
		upd.ConfirmedBy = sched.ConfirmedBy
	} else if by != "" {
		upd.ConfirmedBy = &by
	}
	if sched.ConfirmationMethod != nil {
		upd.ConfirmationMethod = sched.ConfirmationMethod
	} else {
		upd.ConfirmationMethod = &method
	}
}

// stamp keeps a timestamp that is already set, so re-applying is a no-op.
func stamp(existing *int64, now int64) *int64 {
	if existing != nil {
		return existing
	}
	return &now
}
