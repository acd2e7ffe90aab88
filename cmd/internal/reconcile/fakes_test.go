package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"fieldconfirm/cmd/internal/domain/entity"
	"fieldconfirm/cmd/internal/integration/msgraph"
	"fieldconfirm/cmd/internal/utils"
	"fieldconfirm/cmd/internal/utils/signer"
)

var testNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

type patchCall struct {
	EventID string
	Patch   *msgraph.EventPatch
}

type cancelCall struct {
	EventID string
	Comment string
}

type fakeCalendar struct {
	mu        sync.Mutex
	events    map[string]*msgraph.Event
	getErr    map[string]error
	updateErr error
	cancelErr error
	mailErr   error
	senderErr error

	gets    []string
	updates []patchCall
	cancels []cancelCall
	mails   []*msgraph.Message
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: map[string]*msgraph.Event{}, getErr: map[string]error{}}
}

func (f *fakeCalendar) GetEvent(_ context.Context, id string) (*msgraph.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, id)
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	ev, ok := f.events[id]
	if !ok {
		return nil, msgraph.ErrEventNotFound
	}
	cp := *ev
	cp.Attendees = append([]msgraph.Attendee{}, ev.Attendees...)
	return &cp, nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, id string, patch *msgraph.EventPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, patchCall{EventID: id, Patch: patch})
	if f.updateErr != nil {
		return f.updateErr
	}
	if ev, ok := f.events[id]; ok {
		if patch.Subject != nil {
			ev.Subject = *patch.Subject
		}
		if patch.Attendees != nil {
			ev.Attendees = patch.Attendees
		}
	}
	return nil
}

func (f *fakeCalendar) CancelEvent(_ context.Context, id, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, cancelCall{EventID: id, Comment: comment})
	return f.cancelErr
}

func (f *fakeCalendar) SendMail(_ context.Context, msg *msgraph.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mailErr != nil {
		return f.mailErr
	}
	f.mails = append(f.mails, msg)
	return nil
}

func (f *fakeCalendar) ResolveSender(context.Context) (*msgraph.SenderIdentity, error) {
	if f.senderErr != nil {
		return nil, f.senderErr
	}
	return &msgraph.SenderIdentity{ID: "u-1", DisplayName: "Dispatch", Mail: "dispatch@example.com"}, nil
}

func (f *fakeCalendar) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gets) + len(f.updates) + len(f.cancels) + len(f.mails)
}

type appliedUpdate struct {
	ScheduleID     string
	Update         entity.ScheduleUpdate
	RollbackTicket string
}

type fakeSchedules struct {
	mu       sync.Mutex
	rows     map[string]*entity.Schedule
	tickets  *fakeTickets
	findErr  error
	applyErr error
	applied  []appliedUpdate
}

func newFakeSchedules(tickets *fakeTickets, scheds ...*entity.Schedule) *fakeSchedules {
	f := &fakeSchedules{rows: map[string]*entity.Schedule{}, tickets: tickets}
	for _, s := range scheds {
		f.rows[s.ID] = s
	}
	return f
}

func (f *fakeSchedules) FindByID(id string) (*entity.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSchedules) FindByIDs(ids []string, limit int) ([]*entity.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*entity.Schedule
	for _, id := range ids {
		if s, ok := f.rows[id]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return capped(out, limit), nil
}

func (f *fakeSchedules) FindActive(limit int) ([]*entity.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*entity.Schedule
	for _, s := range f.rows {
		if !s.Status.IsTerminal() {
			cp := *s
			out = append(out, &cp)
		}
	}
	return capped(out, limit), nil
}

func capped(out []*entity.Schedule, limit int) []*entity.Schedule {
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeSchedules) ApplyUpdate(id string, upd *entity.ScheduleUpdate, rollbackTicketID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	s, ok := f.rows[id]
	if !ok {
		return errors.New("no such schedule")
	}
	upd.ApplyTo(s)
	if rollbackTicketID != "" {
		f.tickets.setStatus(rollbackTicketID, entity.TicketStatusTriaged)
	}
	f.applied = append(f.applied, appliedUpdate{ScheduleID: id, Update: *upd, RollbackTicket: rollbackTicketID})
	return nil
}

func (f *fakeSchedules) get(id string) *entity.Schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.rows[id]
	return &cp
}

type fakeTickets struct {
	mu   sync.Mutex
	rows map[string]*entity.Ticket
}

func newFakeTickets(tickets ...*entity.Ticket) *fakeTickets {
	f := &fakeTickets{rows: map[string]*entity.Ticket{}}
	for _, t := range tickets {
		f.rows[t.ID] = t
	}
	return f
}

func (f *fakeTickets) FindByID(id string) (*entity.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) setStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.rows[id]; ok {
		t.Status = status
	}
}

func (f *fakeTickets) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].Status
}

const (
	techEmail     = "tech@example.com"
	customerEmail = "customer@example.com"
)

func newSchedule(id string, status entity.ScheduleStatus) *entity.Schedule {
	return &entity.Schedule{
		ID:                       id,
		TicketID:                 "ticket-" + id,
		CalendarEventID:          utils.Ptr("event-" + id),
		Status:                   status,
		TechnicianID:             "tech-1",
		TechnicianEmail:          techEmail,
		TechnicianName:           "Alex Tech",
		TechCalendarResponse:     entity.ResponseNone,
		CustomerCalendarResponse: entity.ResponseNone,
		ScheduledDate:            "2026-10-20",
		ScheduledTimeStart:       "09:00",
		ScheduledTimeEnd:         "11:00",
		CreatedAt:                testNow.UnixMilli(),
		UpdatedAt:                testNow.UnixMilli(),
	}
}

func newTicket(id string, email string) *entity.Ticket {
	t := &entity.Ticket{
		ID:              id,
		CustomerName:    "Casey Customer",
		CustomerAddress: "1 Main Street",
		Status:          "scheduled",
	}
	if email != "" {
		t.CustomerEmail = utils.Ptr(email)
	}
	return t
}

func eventWith(id string, attendees ...msgraph.Attendee) *msgraph.Event {
	return &msgraph.Event{ID: id, Subject: "Service visit", Attendees: attendees}
}

func attendee(email, response string) msgraph.Attendee {
	return msgraph.Attendee{
		Type:         "required",
		Status:       &msgraph.ResponseStatus{Response: response},
		EmailAddress: msgraph.EmailAddress{Address: email},
	}
}

type harness struct {
	cal       *fakeCalendar
	schedules *fakeSchedules
	tickets   *fakeTickets
	signer    *signer.Signer
	engine    *Engine
}

func newHarness(scheds []*entity.Schedule, tickets []*entity.Ticket) *harness {
	h := &harness{cal: newFakeCalendar(), tickets: newFakeTickets(tickets...)}
	h.schedules = newFakeSchedules(h.tickets, scheds...)
	h.signer, _ = signer.New("test-secret")
	h.engine = NewEngine(h.cal, h.schedules, h.tickets, h.signer,
		Config{BatchSize: 20, PublicBaseURL: "https://visits.example.com"},
		WithClock(func() time.Time { return testNow }),
	)
	return h
}
