package service

import (
	"context"
	"errors"
	"fieldconfirm/cmd/internal/domain/entity"
	"fieldconfirm/cmd/internal/integration/msgraph"
	"fieldconfirm/cmd/internal/reconcile"
	"fieldconfirm/cmd/internal/utils"
	"fieldconfirm/cmd/internal/utils/apierror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/gommon/log"
	"net/http"
)

type ReconcileEngine interface {
	Run(ctx context.Context, ids []string) (*reconcile.RunReport, error)
	SendCustomerInvite(ctx context.Context, scheduleID string) (*entity.Schedule, error)
	ForceConfirm(ctx context.Context, scheduleID, operator string) (*entity.Schedule, error)
	RespondToLink(ctx context.Context, scheduleID, action, token string) (*reconcile.LinkResult, error)
}

type ScheduleRepository interface {
	FindByID(id string) (*entity.Schedule, error)
}

type ReconcileRequest struct {
	ScheduleIDs []string `json:"schedule_ids" validate:"omitempty,max=100,nodupes,dive,required,nospaces"`
}

type LinkResponseRequest struct {
	Action     string `query:"action" validate:"required,oneof=accept decline"`
	ScheduleID string `query:"scheduleId" validate:"required,max=128,nospaces"`
	Token      string `query:"token" validate:"required,len=32,lowerhex"`
}

type ScheduleResponse struct {
	ID                       string  `json:"id"`
	TicketID                 string  `json:"ticket_id"`
	CalendarEventID          *string `json:"calendar_event_id"`
	Status                   string  `json:"status"`
	TechnicianID             string  `json:"technician_id"`
	TechnicianName           string  `json:"technician_name"`
	TechnicianEmail          string  `json:"technician_email"`
	TechCalendarResponse     string  `json:"tech_calendar_response"`
	CustomerCalendarResponse string  `json:"customer_calendar_response"`
	TechnicianAcceptedAt     string  `json:"technician_accepted_at,omitempty"`
	CustomerInviteSentAt     string  `json:"customer_invite_sent_at,omitempty"`
	CustomerAcceptedAt       string  `json:"customer_accepted_at,omitempty"`
	ConfirmedAt              string  `json:"confirmed_at,omitempty"`
	ConfirmedBy              string  `json:"confirmed_by,omitempty"`
	ConfirmationMethod       string  `json:"confirmation_method,omitempty"`
	ScheduledDate            string  `json:"scheduled_date"`
	ScheduledTimeStart       string  `json:"scheduled_time_start"`
	ScheduledTimeEnd         string  `json:"scheduled_time_end"`
	UpdatedAt                string  `json:"updated_at"`
}

// LinkOutcome is what the customer's link click did. Cancelled is set when
// the visit was called off on the calendar side before the click counted.
type LinkOutcome struct {
	ScheduleID  string `json:"schedule_id"`
	Status      string `json:"status"`
	Accepted    bool   `json:"accepted"`
	Cancelled   bool   `json:"cancelled"`
	AlreadyDone bool   `json:"already_done"`
}

type DefaultScheduleService struct {
	Engine       ReconcileEngine
	ScheduleRepo ScheduleRepository
	Validate     *validator.Validate
}

func NewScheduleService(engine ReconcileEngine, scheduleRepo ScheduleRepository, validate *validator.Validate) *DefaultScheduleService {
	return &DefaultScheduleService{Engine: engine, ScheduleRepo: scheduleRepo, Validate: validate}
}

func (s *DefaultScheduleService) Reconcile(ctx context.Context, req *ReconcileRequest) (*reconcile.RunReport, apierror.ErrorResponse) {
	utils.Sanitize(req)
	if err := s.Validate.Struct(req); err != nil {
		return nil, apierror.FromValidationError(err)
	}

	report, err := s.Engine.Run(ctx, req.ScheduleIDs)
	if err != nil {
		log.Errorf("reconcile run failed: %v", err)
		return nil, apierror.InternalServerError
	}
	return report, nil
}

func (s *DefaultScheduleService) GetSchedule(id string) (*ScheduleResponse, apierror.ErrorResponse) {
	sched, err := s.ScheduleRepo.FindByID(id)
	if err != nil {
		log.Errorf("failed to fetch schedule %s: %v", id, err)
		return nil, apierror.InternalServerError
	}
	if sched == nil {
		return nil, apierror.NotFoundError
	}
	return toScheduleResponse(sched), nil
}

func (s *DefaultScheduleService) SendCustomerInvite(ctx context.Context, id string) (*ScheduleResponse, apierror.ErrorResponse) {
	sched, err := s.Engine.SendCustomerInvite(ctx, id)
	if err != nil {
		return nil, mapEngineError(id, "send customer invite", err)
	}
	return toScheduleResponse(sched), nil
}

func (s *DefaultScheduleService) ForceConfirm(ctx context.Context, id string, operator string) (*ScheduleResponse, apierror.ErrorResponse) {
	sched, err := s.Engine.ForceConfirm(ctx, id, operator)
	if err != nil {
		return nil, mapEngineError(id, "force confirm", err)
	}
	return toScheduleResponse(sched), nil
}

func (s *DefaultScheduleService) RespondToLink(ctx context.Context, req *LinkResponseRequest) (*LinkOutcome, apierror.ErrorResponse) {
	utils.Sanitize(req)
	if err := s.Validate.Struct(req); err != nil {
		return nil, apierror.InvalidLinkTokenError
	}

	res, err := s.Engine.RespondToLink(ctx, req.ScheduleID, req.Action, req.Token)
	if err != nil {
		return nil, mapEngineError(req.ScheduleID, "link response", err)
	}

	return &LinkOutcome{
		ScheduleID:  res.Schedule.ID,
		Status:      string(res.Schedule.Status),
		Accepted:    res.Action == reconcile.ActionCustomerAccepted,
		Cancelled:   res.Action == reconcile.ActionTechDeclined || res.Action == reconcile.ActionEventDeleted,
		AlreadyDone: res.AlreadyDone,
	}, nil
}

func mapEngineError(id, op string, err error) apierror.ErrorResponse {
	var stateErr *reconcile.StateError
	var apiErr *msgraph.APIError
	switch {
	case errors.As(err, &stateErr):
		return apierror.NewStateConflictError(string(stateErr.Current))
	case errors.Is(err, reconcile.ErrScheduleNotFound):
		return apierror.NotFoundError
	case errors.Is(err, reconcile.ErrInvalidToken):
		return apierror.InvalidLinkTokenError
	case errors.Is(err, reconcile.ErrTicketNotFound):
		return apierror.TicketNotFoundError
	case errors.Is(err, reconcile.ErrNoCustomerEmail):
		return apierror.MissingCustomerError
	case errors.Is(err, reconcile.ErrScheduleBusy):
		return apierror.ScheduleBusyError
	case errors.Is(err, reconcile.ErrEmailNotSent):
		log.Errorf("%s failed for schedule %s: %v", op, id, err)
		return apierror.ConfirmationEmailError
	case errors.Is(err, context.DeadlineExceeded):
		return apierror.NewSimple(http.StatusGatewayTimeout, "Timed out talking to the calendar service")
	case errors.As(err, &apiErr):
		log.Errorf("%s failed for schedule %s: %v", op, id, err)
		return apierror.CalendarUnavailable
	}

	log.Errorf("%s failed for schedule %s: %v", op, id, err)
	return apierror.InternalServerError
}

func toScheduleResponse(s *entity.Schedule) *ScheduleResponse {
	return &ScheduleResponse{
		ID:                       s.ID,
		TicketID:                 s.TicketID,
		CalendarEventID:          s.CalendarEventID,
		Status:                   string(s.Status),
		TechnicianID:             s.TechnicianID,
		TechnicianName:           s.TechnicianName,
		TechnicianEmail:          s.TechnicianEmail,
		TechCalendarResponse:     string(s.TechCalendarResponse),
		CustomerCalendarResponse: string(s.CustomerCalendarResponse),
		TechnicianAcceptedAt:     utils.FormatEpochPtr(s.TechnicianAcceptedAt),
		CustomerInviteSentAt:     utils.FormatEpochPtr(s.CustomerInviteSentAt),
		CustomerAcceptedAt:       utils.FormatEpochPtr(s.CustomerAcceptedAt),
		ConfirmedAt:              utils.FormatEpochPtr(s.ConfirmedAt),
		ConfirmedBy:              utils.Deref(s.ConfirmedBy),
		ConfirmationMethod:       utils.Deref(s.ConfirmationMethod),
		ScheduledDate:            s.ScheduledDate,
		ScheduledTimeStart:       s.ScheduledTimeStart,
		ScheduledTimeEnd:         s.ScheduledTimeEnd,
		UpdatedAt:                utils.FormatEpoch(s.UpdatedAt),
	}
}
