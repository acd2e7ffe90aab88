package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldconfirm/cmd/internal/domain/entity"
	"fieldconfirm/cmd/internal/integration/msgraph"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
)

const DefaultBatchSize = 20

type Outcome string

const (
	OutcomeTechAccepted     Outcome = "tech_accepted"
	OutcomeCustomerAccepted Outcome = "customer_accepted"
	OutcomeDeclined         Outcome = "declined"
	OutcomeNoChange         Outcome = "no_change"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeError            Outcome = "error"
)

type ItemResult struct {
	ScheduleID     string                `json:"scheduleId"`
	Outcome        Outcome               `json:"outcome"`
	Action         Action                `json:"action,omitempty"`
	PreviousStatus entity.ScheduleStatus `json:"previousStatus,omitempty"`
	NewStatus      entity.ScheduleStatus `json:"newStatus,omitempty"`
	Reason         string                `json:"reason,omitempty"`
}

type RunReport struct {
	RunID            string        `json:"runId"`
	Trigger          string        `json:"trigger"`
	StartedAt        time.Time     `json:"startedAt"`
	FinishedAt       time.Time     `json:"finishedAt"`
	Checked          int           `json:"checked"`
	TechAccepted     int           `json:"techAccepted"`
	CustomerAccepted int           `json:"customerAccepted"`
	Declined         int           `json:"declined"`
	NoChange         int           `json:"noChange"`
	Skipped          int           `json:"skipped"`
	Errors           int           `json:"errors"`
	Details          []*ItemResult `json:"details"`
}

func (r *RunReport) add(item *ItemResult) {
	r.Details = append(r.Details, item)
	r.Checked++
	switch item.Outcome {
	case OutcomeTechAccepted:
		r.TechAccepted++
	case OutcomeCustomerAccepted:
		r.CustomerAccepted++
	case OutcomeDeclined:
		r.Declined++
	case OutcomeNoChange:
		r.NoChange++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeError:
		r.Errors++
	}
}

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Run reconciles one batch. With ids it processes those schedules (still
// capped at the batch size) and reports ids that match nothing as skipped;
// without, the oldest active schedules. Only a
// failure to select candidates fails the run; every schedule gets its own
// outcome otherwise.
func (e *Engine) Run(ctx context.Context, ids []string) (*RunReport, error) {
	trigger := TriggerScheduled
	if len(ids) > 0 {
		trigger = TriggerManual
	}

	report := &RunReport{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: e.now().UTC(),
		Details:   []*ItemResult{},
	}

	candidates, missing, err := e.selectCandidates(ids)
	if err != nil {
		return nil, fmt.Errorf("select schedules: %w", err)
	}

	for _, sched := range candidates {
		if ctx.Err() != nil {
			report.add(&ItemResult{ScheduleID: sched.ID, Outcome: OutcomeError, Reason: ctx.Err().Error()})
			continue
		}

		item := e.processSafely(ctx, sched)
		report.add(item)
		e.metrics.recordOutcome(ctx, item.Outcome, item.Action)
	}
	for _, id := range missing {
		item := skip(&ItemResult{ScheduleID: id}, "schedule not found")
		report.add(item)
		e.metrics.recordOutcome(ctx, item.Outcome, item.Action)
	}

	report.FinishedAt = e.now().UTC()
	e.metrics.recordRun(ctx, report.FinishedAt.Sub(report.StartedAt), trigger)

	log.Infof("reconcile run %s (%s): checked=%d techAccepted=%d customerAccepted=%d declined=%d noChange=%d skipped=%d errors=%d",
		report.RunID, trigger, report.Checked, report.TechAccepted, report.CustomerAccepted,
		report.Declined, report.NoChange, report.Skipped, report.Errors)
	return report, nil
}

// selectCandidates also returns the requested ids that matched no schedule,
// so an explicit run accounts for every id it was given.
func (e *Engine) selectCandidates(ids []string) ([]*entity.Schedule, []string, error) {
	if len(ids) == 0 {
		candidates, err := e.schedules.FindActive(e.cfg.BatchSize)
		return candidates, nil, err
	}

	requested := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		requested = append(requested, id)
		if len(requested) == e.cfg.BatchSize {
			break
		}
	}

	candidates, err := e.schedules.FindByIDs(requested, e.cfg.BatchSize)
	if err != nil {
		return nil, nil, err
	}

	found := make(map[string]bool, len(candidates))
	for _, sched := range candidates {
		found[sched.ID] = true
	}
	var missing []string
	for _, id := range requested {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return candidates, missing, nil
}

// processSafely is the per-schedule error boundary; a panic becomes an error outcome.
func (e *Engine) processSafely(ctx context.Context, sched *entity.Schedule) (item *ItemResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("schedule %s: panic during reconciliation: %v", sched.ID, r)
			item = &ItemResult{ScheduleID: sched.ID, Outcome: OutcomeError, PreviousStatus: sched.Status, Reason: fmt.Sprint(r)}
		}
	}()
	return e.process(ctx, sched)
}

func (e *Engine) process(ctx context.Context, candidate *entity.Schedule) *ItemResult {
	item := &ItemResult{ScheduleID: candidate.ID, PreviousStatus: candidate.Status}

	if pre := Evaluate(Snapshot{Status: candidate.Status, HasEvent: candidate.EventID() != ""}); pre.Action == ActionSkipped {
		return skip(item, "no calendar event")
	}
	if candidate.Status.IsTerminal() {
		return skip(item, "terminal status")
	}

	err := e.withScheduleLock(ctx, candidate.ID, func() error {
		return e.reconcileLocked(ctx, candidate.ID, item)
	})
	switch {
	case errors.Is(err, ErrScheduleBusy):
		return skip(item, "locked")
	case err != nil:
		log.Errorf("schedule %s: reconciliation failed: %v", candidate.ID, err)
		item.Outcome = OutcomeError
		item.NewStatus = ""
		item.Reason = err.Error()
	}
	return item
}

// reconcileLocked re-reads the schedule under the lock so a concurrent run's
// write is never evaluated against stale state.
func (e *Engine) reconcileLocked(ctx context.Context, scheduleID string, item *ItemResult) error {
	sched, ticket, err := e.load(scheduleID)
	switch {
	case errors.Is(err, ErrScheduleNotFound):
		skip(item, "schedule not found")
		return nil
	case errors.Is(err, ErrTicketNotFound):
		log.Warnf("schedule %s: ticket %s missing, skipping", scheduleID, sched.TicketID)
		skip(item, "ticket not found")
		return nil
	case err != nil:
		return err
	}

	item.PreviousStatus = sched.Status
	if sched.Status.IsTerminal() {
		skip(item, "terminal status")
		return nil
	}
	if sched.EventID() == "" {
		skip(item, "no calendar event")
		return nil
	}

	event, err := e.calendar.GetEvent(ctx, sched.EventID())
	switch {
	case errors.Is(err, msgraph.ErrEventNotFound):
		event = nil
	case err != nil:
		return err
	}

	ev := Evaluate(SnapshotFrom(sched, ticket, event))
	item.Action = ev.Action
	item.NewStatus = ev.NewStatus

	if _, err := e.applier.Apply(ctx, &Target{Schedule: sched, Ticket: ticket, Event: event}, ev, entity.ConfirmationCalendar); err != nil {
		return err
	}
	item.Outcome = outcomeOf(ev.Action)
	return nil
}

func skip(item *ItemResult, reason string) *ItemResult {
	item.Outcome = OutcomeSkipped
	item.Action = ActionSkipped
	item.Reason = reason
	return item
}

func outcomeOf(a Action) Outcome {
	switch a {
	case ActionTechAccepted:
		return OutcomeTechAccepted
	case ActionCustomerAccepted:
		return OutcomeCustomerAccepted
	case ActionTechDeclined, ActionCustomerDeclined, ActionEventDeleted:
		return OutcomeDeclined
	case ActionSkipped:
		return OutcomeSkipped
	default:
		return OutcomeNoChange
	}
}
