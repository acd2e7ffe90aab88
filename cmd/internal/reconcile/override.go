package reconcile

import (
	"context"
	"strings"

	"fieldconfirm/cmd/internal/domain/entity"
	"github.com/labstack/gommon/log"
)

// ForceConfirm lets an operator confirm a schedule without waiting for the
// customer's calendar response.
func (e *Engine) ForceConfirm(ctx context.Context, scheduleID, operator string) (*entity.Schedule, error) {
	var result *entity.Schedule
	err := e.withScheduleLock(ctx, scheduleID, func() error {
		sched, ticket, err := e.load(scheduleID)
		if err != nil {
			return err
		}
		if err := requireStatus(sched, entity.StatusTechAccepted, entity.StatusPendingCustomer); err != nil {
			return err
		}

		by := strings.TrimSpace(operator)
		ev := Evaluation{
			Action:           ActionForceConfirmed,
			NewStatus:        entity.StatusConfirmed,
			TechResponse:     sched.TechCalendarResponse,
			CustomerResponse: sched.CustomerCalendarResponse,
		}
		if _, err := e.applier.Apply(ctx, &Target{Schedule: sched, Ticket: ticket, Actor: by}, ev, entity.ConfirmationInternal); err != nil {
			return err
		}

		log.Infof("schedule %s (ticket %s): confirmed manually by %s", sched.ID, ticket.ID, by)
		result = sched
		return nil
	})
	return result, err
}
