package reconcile

import (
	"fieldconfirm/cmd/internal/domain/entity"
	"fieldconfirm/cmd/internal/integration/msgraph"
)

type Action string

const (
	ActionTechAccepted     Action = "tech_accepted"
	ActionCustomerAccepted Action = "customer_accepted"
	ActionTechDeclined     Action = "tech_declined"
	ActionCustomerDeclined Action = "customer_declined"
	ActionEventDeleted     Action = "event_deleted"
	ActionForceConfirmed   Action = "force_confirmed"
	ActionNoChange         Action = "no_change"
	ActionSkipped          Action = "skipped"
)

// IsCancellation reports whether the action diverts the schedule to cancelled.
func (a Action) IsCancellation() bool {
	return a == ActionTechDeclined || a == ActionCustomerDeclined || a == ActionEventDeleted
}

// Snapshot is everything the evaluator looks at for one schedule.
type Snapshot struct {
	Status           entity.ScheduleStatus
	HasEvent         bool
	EventDeleted     bool
	TechResponse     entity.CalendarResponse
	CustomerResponse entity.CalendarResponse
	HasCustomerEmail bool
}

type Evaluation struct {
	Action           Action
	NewStatus        entity.ScheduleStatus
	TechResponse     entity.CalendarResponse
	CustomerResponse entity.CalendarResponse
}

// SnapshotFrom reads the attendee responses off a fetched event. A nil event
// means the fetch reported the event as gone.
func SnapshotFrom(sched *entity.Schedule, ticket *entity.Ticket, event *msgraph.Event) Snapshot {
	snap := Snapshot{
		Status:           sched.Status,
		HasEvent:         sched.EventID() != "",
		TechResponse:     entity.ResponseNone,
		CustomerResponse: entity.ResponseNone,
		HasCustomerEmail: ticket != nil && ticket.HasCustomerEmail(),
	}
	if event == nil {
		// Nothing left to read; keep the last responses we recorded.
		snap.EventDeleted = true
		snap.TechResponse = sched.TechCalendarResponse
		snap.CustomerResponse = sched.CustomerCalendarResponse
		return snap
	}

	snap.TechResponse = event.ResponseOf(sched.TechnicianEmail)
	if snap.HasCustomerEmail {
		snap.CustomerResponse = event.ResponseOf(ticket.Email())
	}
	return snap
}

// Evaluate derives the next action and status. It has no side effects.
// Declines win over acceptances regardless of attendee order.
func Evaluate(s Snapshot) Evaluation {
	ev := Evaluation{
		Action:           ActionNoChange,
		NewStatus:        s.Status,
		TechResponse:     normalize(s.TechResponse),
		CustomerResponse: normalize(s.CustomerResponse),
	}

	switch {
	case !s.HasEvent:
		ev.Action = ActionSkipped
	case s.Status.IsTerminal():
		// confirmed and cancelled never move again
	case s.EventDeleted:
		ev.Action, ev.NewStatus = ActionEventDeleted, entity.StatusCancelled
	case ev.TechResponse == entity.ResponseDeclined:
		ev.Action, ev.NewStatus = ActionTechDeclined, entity.StatusCancelled
	case ev.CustomerResponse == entity.ResponseDeclined:
		ev.Action, ev.NewStatus = ActionCustomerDeclined, entity.StatusCancelled
	case s.Status == entity.StatusPendingTech && ev.TechResponse.IsPositive():
		ev.Action, ev.NewStatus = ActionTechAccepted, entity.StatusTechAccepted
		if !s.HasCustomerEmail {
			ev.NewStatus = entity.StatusConfirmed
		}
	case s.Status == entity.StatusPendingCustomer && ev.CustomerResponse.IsPositive():
		ev.Action, ev.NewStatus = ActionCustomerAccepted, entity.StatusConfirmed
	}
	return ev
}

func normalize(r entity.CalendarResponse) entity.CalendarResponse {
	if r == "" {
		return entity.ResponseNone
	}
	return r
}
