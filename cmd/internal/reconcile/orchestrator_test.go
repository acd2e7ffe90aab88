package reconcile

import (
	"context"
	"errors"
	"testing"

	"fieldconfirm/cmd/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detailFor(t *testing.T, report *RunReport, id string) *ItemResult {
	t.Helper()
	for _, d := range report.Details {
		if d.ScheduleID == id {
			return d
		}
	}
	t.Fatalf("no detail for schedule %s", id)
	return nil
}

func TestRun_MixedBatch(t *testing.T) {
	techAccepts := newSchedule("s1", entity.StatusPendingTech)
	customerAccepts := newSchedule("s2", entity.StatusPendingCustomer)
	customerDeclines := newSchedule("s3", entity.StatusPendingCustomer)
	waiting := newSchedule("s4", entity.StatusTechAccepted)
	deleted := newSchedule("s5", entity.StatusPendingTech)
	for i, s := range []*entity.Schedule{techAccepts, customerAccepts, customerDeclines, waiting, deleted} {
		s.CreatedAt += int64(i)
	}

	h := newHarness(
		[]*entity.Schedule{techAccepts, customerAccepts, customerDeclines, waiting, deleted},
		[]*entity.Ticket{
			newTicket("ticket-s1", customerEmail), newTicket("ticket-s2", customerEmail),
			newTicket("ticket-s3", customerEmail), newTicket("ticket-s4", customerEmail),
			newTicket("ticket-s5", customerEmail),
		},
	)
	h.cal.events["event-s1"] = eventWith("event-s1", attendee(techEmail, "accepted"))
	h.cal.events["event-s2"] = eventWith("event-s2", attendee(techEmail, "accepted"), attendee(customerEmail, "tentativelyAccepted"))
	h.cal.events["event-s3"] = eventWith("event-s3", attendee(techEmail, "accepted"), attendee(customerEmail, "declined"))
	h.cal.events["event-s4"] = eventWith("event-s4", attendee(techEmail, "accepted"))

	report, err := h.engine.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, TriggerScheduled, report.Trigger)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 5, report.Checked)
	assert.Equal(t, 1, report.TechAccepted)
	assert.Equal(t, 1, report.CustomerAccepted)
	assert.Equal(t, 2, report.Declined)
	assert.Equal(t, 1, report.NoChange)
	assert.Zero(t, report.Errors)

	assert.Equal(t, ActionEventDeleted, detailFor(t, report, "s5").Action)
	assert.Equal(t, entity.StatusCancelled, h.schedules.get("s5").Status)
	assert.Equal(t, entity.TicketStatusTriaged, h.tickets.status("ticket-s5"))
	assert.Equal(t, entity.StatusTechAccepted, h.schedules.get("s1").Status)
	assert.Equal(t, entity.StatusConfirmed, h.schedules.get("s2").Status)
	assert.Equal(t, entity.StatusCancelled, h.schedules.get("s3").Status)
	assert.Equal(t, entity.StatusTechAccepted, h.schedules.get("s4").Status)
}

func TestRun_FetchFailureIsIsolated(t *testing.T) {
	broken := newSchedule("s1", entity.StatusPendingTech)
	healthy := newSchedule("s2", entity.StatusPendingTech)
	healthy.CreatedAt++

	h := newHarness(
		[]*entity.Schedule{broken, healthy},
		[]*entity.Ticket{newTicket("ticket-s1", customerEmail), newTicket("ticket-s2", customerEmail)},
	)
	h.cal.getErr["event-s1"] = errors.New("dial tcp: i/o timeout")
	h.cal.events["event-s2"] = eventWith("event-s2", attendee(techEmail, "accepted"))

	report, err := h.engine.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.TechAccepted)

	failed := detailFor(t, report, "s1")
	assert.Equal(t, OutcomeError, failed.Outcome)
	assert.Contains(t, failed.Reason, "i/o timeout")
	assert.Empty(t, failed.NewStatus)
	assert.Equal(t, entity.StatusPendingTech, h.schedules.get("s1").Status)

	assert.Equal(t, OutcomeTechAccepted, detailFor(t, report, "s2").Outcome)
}

func TestRun_NoEventIDIsSkippedWithoutExternalCalls(t *testing.T) {
	sched := newSchedule("s1", entity.StatusPendingTech)
	sched.CalendarEventID = nil

	h := newHarness([]*entity.Schedule{sched}, []*entity.Ticket{newTicket("ticket-s1", customerEmail)})

	report, err := h.engine.Run(context.Background(), []string{"s1"})
	require.NoError(t, err)

	assert.Equal(t, TriggerManual, report.Trigger)
	assert.Equal(t, 1, report.Skipped)
	item := detailFor(t, report, "s1")
	assert.Equal(t, ActionSkipped, item.Action)
	assert.Equal(t, "no calendar event", item.Reason)
	assert.Zero(t, h.cal.calls())
	assert.Empty(t, h.schedules.applied)
}

func TestRun_MissingTicketIsSkipped(t *testing.T) {
	h := newHarness([]*entity.Schedule{newSchedule("s1", entity.StatusPendingTech)}, nil)

	report, err := h.engine.Run(context.Background(), nil)
	require.NoError(t, err)

	item := detailFor(t, report, "s1")
	assert.Equal(t, OutcomeSkipped, item.Outcome)
	assert.Equal(t, "ticket not found", item.Reason)
	assert.Zero(t, h.cal.calls())
}

func TestRun_TerminalScheduleInExplicitListIsSkipped(t *testing.T) {
	h := newHarness(
		[]*entity.Schedule{newSchedule("s1", entity.StatusConfirmed)},
		[]*entity.Ticket{newTicket("ticket-s1", customerEmail)},
	)

	report, err := h.engine.Run(context.Background(), []string{"s1", "unknown"})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, "terminal status", detailFor(t, report, "s1").Reason)
	assert.Equal(t, "schedule not found", detailFor(t, report, "unknown").Reason)
	assert.Zero(t, h.cal.calls())
}

func TestRun_UnknownIDsAreReportedOnce(t *testing.T) {
	h := newHarness(
		[]*entity.Schedule{newSchedule("s1", entity.StatusPendingTech)},
		[]*entity.Ticket{newTicket("ticket-s1", customerEmail)},
	)
	h.cal.events["event-s1"] = eventWith("event-s1", attendee(techEmail, ""))

	report, err := h.engine.Run(context.Background(), []string{"gone", "s1", "gone", ""})
	require.NoError(t, err)

	require.Len(t, report.Details, 2)
	assert.Equal(t, OutcomeNoChange, detailFor(t, report, "s1").Outcome)
	gone := detailFor(t, report, "gone")
	assert.Equal(t, OutcomeSkipped, gone.Outcome)
	assert.Equal(t, ActionSkipped, gone.Action)
	assert.Equal(t, "schedule not found", gone.Reason)
}

func TestRun_ExplicitIDsAreCappedBeforeLookup(t *testing.T) {
	h := newHarness(
		[]*entity.Schedule{newSchedule("s1", entity.StatusPendingTech)},
		[]*entity.Ticket{newTicket("ticket-s1", customerEmail)},
	)
	h.engine.cfg.BatchSize = 2

	report, err := h.engine.Run(context.Background(), []string{"x", "y", "s1"})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, h.cal.calls(), "s1 was past the cap")
}

// eventDetachingStore simulates the event link being cleared between
// candidate selection and the locked re-read.
type eventDetachingStore struct {
	*fakeSchedules
}

func (s eventDetachingStore) FindByID(id string) (*entity.Schedule, error) {
	sched, err := s.fakeSchedules.FindByID(id)
	if sched != nil {
		sched.CalendarEventID = nil
	}
	return sched, err
}

func TestRun_EventIDClearedAfterSelectionIsSkipped(t *testing.T) {
	h := newHarness(
		[]*entity.Schedule{newSchedule("s1", entity.StatusPendingTech)},
		[]*entity.Ticket{newTicket("ticket-s1", customerEmail)},
	)
	h.engine.schedules = eventDetachingStore{h.schedules}

	report, err := h.engine.Run(context.Background(), nil)
	require.NoError(t, err)

	item := detailFor(t, report, "s1")
	assert.Equal(t, OutcomeSkipped, item.Outcome)
	assert.Equal(t, "no calendar event", item.Reason)
	assert.Zero(t, h.cal.calls())
	assert.Empty(t, h.schedules.applied)
}

func TestRun_SelectionFailureFailsRun(t *testing.T) {
	h := newHarness(nil, nil)
	h.schedules.findErr = errors.New("no such table: schedules")

	report, err := h.engine.Run(context.Background(), nil)
	assert.Nil(t, report)
	assert.ErrorContains(t, err, "no such table")
}

func TestRun_RespectsBatchSize(t *testing.T) {
	var scheds []*entity.Schedule
	var tickets []*entity.Ticket
	for _, id := range []string{"a", "b", "c"} {
		s := newSchedule(id, entity.StatusPendingTech)
		scheds = append(scheds, s)
		tickets = append(tickets, newTicket(s.TicketID, customerEmail))
	}
	scheds[0].CreatedAt += 2
	scheds[1].CreatedAt += 1

	h := newHarness(scheds, tickets)
	h.engine.cfg.BatchSize = 2

	report, err := h.engine.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, report.Details, 2)
	assert.Equal(t, "c", report.Details[0].ScheduleID, "oldest first")
	assert.Equal(t, "b", report.Details[1].ScheduleID)
}

func TestRun_LockedScheduleIsSkipped(t *testing.T) {
	h := newHarness(
		[]*entity.Schedule{newSchedule("s1", entity.StatusPendingTech)},
		[]*entity.Ticket{newTicket("ticket-s1", customerEmail)},
	)
	unlock, ok, err := h.engine.locker.TryLock(context.Background(), lockKey("s1"))
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	report, err := h.engine.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "locked", detailFor(t, report, "s1").Reason)
	assert.Zero(t, h.cal.calls())
}

func TestRun_SecondRunIsNoChange(t *testing.T) {
	h := newHarness(
		[]*entity.Schedule{newSchedule("s1", entity.StatusPendingTech)},
		[]*entity.Ticket{newTicket("ticket-s1", customerEmail)},
	)
	h.cal.events["event-s1"] = eventWith("event-s1", attendee(techEmail, "accepted"))

	first, err := h.engine.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TechAccepted)

	second, err := h.engine.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.NoChange)
	assert.Len(t, h.schedules.applied, 1)
}

type panickyTickets struct{}

func (panickyTickets) FindByID(string) (*entity.Ticket, error) {
	panic("boom")
}

func TestRun_PanicBecomesErrorOutcome(t *testing.T) {
	h := newHarness([]*entity.Schedule{newSchedule("s1", entity.StatusPendingTech)}, nil)
	h.engine.tickets = panickyTickets{}

	report, err := h.engine.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, "boom", detailFor(t, report, "s1").Reason)

	_, ok, err := h.engine.locker.TryLock(context.Background(), lockKey("s1"))
	require.NoError(t, err)
	assert.True(t, ok, "lock released after panic")
}
