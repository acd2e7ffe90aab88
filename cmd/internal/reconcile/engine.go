// Package reconcile keeps schedules in step with the calendar: it reads
// attendee responses, decides the next transition and applies its side
// effects. Manual transitions (customer invite, forced confirmation, email
// link responses) go through the same applier.
//
// There is no in-process retry. A schedule that fails in one run is left
// unchanged and picked up again by the next run.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldconfirm/cmd/internal/domain/entity"
	"fieldconfirm/cmd/internal/integration/msgraph"
	"fieldconfirm/cmd/internal/utils/signer"
)

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrNoCustomerEmail  = errors.New("ticket has no customer email")
	ErrInvalidState     = errors.New("schedule is not in a valid state for this action")
	ErrInvalidToken     = errors.New("invalid response token")
	ErrScheduleBusy     = errors.New("schedule is locked by another run")
	ErrEmailNotSent     = errors.New("confirmation email not sent")
)

// StateError is a precondition failure; it unwraps to ErrInvalidState.
type StateError struct {
	ScheduleID string
	Current    entity.ScheduleStatus
	Want       []entity.ScheduleStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("schedule %s is %s, want one of %v", e.ScheduleID, e.Current, e.Want)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// Calendar is the slice of the calendar service the engine drives.
type Calendar interface {
	GetEvent(ctx context.Context, eventID string) (*msgraph.Event, error)
	UpdateEvent(ctx context.Context, eventID string, patch *msgraph.EventPatch) error
	CancelEvent(ctx context.Context, eventID, comment string) error
	SendMail(ctx context.Context, msg *msgraph.Message) error
	ResolveSender(ctx context.Context) (*msgraph.SenderIdentity, error)
}

type ScheduleStore interface {
	FindByID(id string) (*entity.Schedule, error)
	FindByIDs(ids []string, limit int) ([]*entity.Schedule, error)
	FindActive(limit int) ([]*entity.Schedule, error)
	ApplyUpdate(id string, upd *entity.ScheduleUpdate, rollbackTicketID string) error
}

type TicketStore interface {
	FindByID(id string) (*entity.Ticket, error)
}

type Config struct {
	BatchSize     int
	PublicBaseURL string
	Timezone      *time.Location
}

type Option func(*Engine)

func WithLocker(l Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

type Engine struct {
	calendar  Calendar
	schedules ScheduleStore
	tickets   TicketStore
	signer    *signer.Signer
	locker    Locker
	metrics   *Metrics
	applier   *Applier
	cfg       Config
	now       func() time.Time
}

func NewEngine(cal Calendar, schedules ScheduleStore, tickets TicketStore, sign *signer.Signer, cfg Config, opts ...Option) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}

	e := &Engine{
		calendar:  cal,
		schedules: schedules,
		tickets:   tickets,
		signer:    sign,
		locker:    NewMemoryLocker(),
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.applier = NewApplier(cal, schedules, func() int64 { return e.now().UTC().UnixMilli() })
	return e
}

// withScheduleLock runs fn while holding the advisory lock for the schedule.
func (e *Engine) withScheduleLock(ctx context.Context, scheduleID string, fn func() error) error {
	unlock, ok, err := e.locker.TryLock(ctx, lockKey(scheduleID))
	if err != nil {
		return fmt.Errorf("lock schedule %s: %w", scheduleID, err)
	}
	if !ok {
		return ErrScheduleBusy
	}
	defer unlock()
	return fn()
}

// load fetches the schedule and its ticket. A missing ticket is reported as
// ErrTicketNotFound alongside the schedule.
func (e *Engine) load(scheduleID string) (*entity.Schedule, *entity.Ticket, error) {
	sched, err := e.schedules.FindByID(scheduleID)
	if err != nil {
		return nil, nil, fmt.Errorf("load schedule %s: %w", scheduleID, err)
	}
	if sched == nil {
		return nil, nil, ErrScheduleNotFound
	}

	ticket, err := e.tickets.FindByID(sched.TicketID)
	if err != nil {
		return sched, nil, fmt.Errorf("load ticket %s: %w", sched.TicketID, err)
	}
	if ticket == nil {
		return sched, nil, ErrTicketNotFound
	}
	return sched, ticket, nil
}

func requireStatus(sched *entity.Schedule, want ...entity.ScheduleStatus) error {
	for _, w := range want {
		if sched.Status == w {
			return nil
		}
	}
	return &StateError{ScheduleID: sched.ID, Current: sched.Status, Want: want}
}
