package reconcile

import (
	"context"
	"errors"

	"fieldconfirm/cmd/internal/domain/entity"
	"fieldconfirm/cmd/internal/integration/msgraph"
	"fieldconfirm/cmd/internal/utils/signer"
	"github.com/labstack/gommon/log"
)

// LinkResult describes what an email-link response did.
type LinkResult struct {
	Schedule *entity.Schedule
	Action   Action
	// AlreadyDone is set when the schedule had already reached the state the
	// link asks for.
	AlreadyDone bool
}

// RespondToLink applies a customer's accept/decline coming from the signed
// email link, with the same effects as the polling path. The calendar is
// consulted first: a technician decline or a deleted event still cancels the
// visit even when the link says accept.
func (e *Engine) RespondToLink(ctx context.Context, scheduleID, action, token string) (*LinkResult, error) {
	if action != signer.ActionAccept && action != signer.ActionDecline {
		return nil, ErrInvalidToken
	}
	if !e.signer.Verify(token, scheduleID, action) {
		return nil, ErrInvalidToken
	}

	var result *LinkResult
	err := e.withScheduleLock(ctx, scheduleID, func() error {
		sched, ticket, err := e.load(scheduleID)
		if err != nil {
			return err
		}

		ev := Evaluation{
			TechResponse:     sched.TechCalendarResponse,
			CustomerResponse: entity.ResponseAccepted,
			Action:           ActionCustomerAccepted,
			NewStatus:        entity.StatusConfirmed,
		}
		if action == signer.ActionDecline {
			ev.CustomerResponse = entity.ResponseDeclined
			ev.Action = ActionCustomerDeclined
			ev.NewStatus = entity.StatusCancelled
		}

		if sched.Status == ev.NewStatus {
			result = &LinkResult{Schedule: sched, Action: ev.Action, AlreadyDone: true}
			return nil
		}
		if err := requireStatus(sched, entity.StatusPendingCustomer); err != nil {
			return err
		}

		event, ev := e.linkEvaluation(ctx, sched, ticket, ev)
		if _, err := e.applier.Apply(ctx, &Target{Schedule: sched, Ticket: ticket, Event: event}, ev, entity.ConfirmationEmailLink); err != nil {
			return err
		}

		log.Infof("schedule %s: customer responded %s via email link, applied %s", sched.ID, action, ev.Action)
		result = &LinkResult{Schedule: sched, Action: ev.Action}
		return nil
	})
	return result, err
}

// linkEvaluation folds the link's answer into a fresh calendar snapshot so
// declines win the same way they do for polling. A failed fetch leaves the
// link's answer as is.
func (e *Engine) linkEvaluation(ctx context.Context, sched *entity.Schedule, ticket *entity.Ticket, link Evaluation) (*msgraph.Event, Evaluation) {
	if sched.EventID() == "" {
		return nil, link
	}

	event, err := e.calendar.GetEvent(ctx, sched.EventID())
	switch {
	case errors.Is(err, msgraph.ErrEventNotFound):
		event = nil
	case err != nil:
		log.Warnf("schedule %s: could not fetch event %s before applying link response: %v", sched.ID, sched.EventID(), err)
		return nil, link
	}

	snap := SnapshotFrom(sched, ticket, event)
	if snap.CustomerResponse != entity.ResponseDeclined {
		snap.CustomerResponse = link.CustomerResponse
	}
	ev := Evaluate(snap)
	if ev.Action == ActionNoChange || ev.Action == ActionSkipped {
		return event, link
	}
	return event, ev
}
