package routes

import (
	"context"
	"fieldconfirm/cmd/internal/reconcile"
	"fieldconfirm/cmd/internal/service"
	"fieldconfirm/cmd/internal/utils"
	"fieldconfirm/cmd/internal/utils/apierror"
	"html"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type ScheduleService interface {
	Reconcile(ctx context.Context, req *service.ReconcileRequest) (*reconcile.RunReport, apierror.ErrorResponse)
	GetSchedule(id string) (*service.ScheduleResponse, apierror.ErrorResponse)
	SendCustomerInvite(ctx context.Context, id string) (*service.ScheduleResponse, apierror.ErrorResponse)
	ForceConfirm(ctx context.Context, id string, operator string) (*service.ScheduleResponse, apierror.ErrorResponse)
	RespondToLink(ctx context.Context, req *service.LinkResponseRequest) (*service.LinkOutcome, apierror.ErrorResponse)
}

type DefaultScheduleRoute struct {
	ScheduleService ScheduleService
}

func NewScheduleDefault(scheduleService ScheduleService) *DefaultScheduleRoute {
	return &DefaultScheduleRoute{ScheduleService: scheduleService}
}

func (s *DefaultScheduleRoute) Reconcile(c echo.Context) error {
	var req service.ReconcileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apierror.MalformedBodyError)
	}

	report, apierr := s.ScheduleService.Reconcile(c.Request().Context(), &req)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *DefaultScheduleRoute) GetSchedule(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, apierror.NewMissingParamError("id"))
	}

	sched, apierr := s.ScheduleService.GetSchedule(id)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, sched)
}

func (s *DefaultScheduleRoute) SendCustomerInvite(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, apierror.NewMissingParamError("id"))
	}

	sched, apierr := s.ScheduleService.SendCustomerInvite(c.Request().Context(), id)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, sched)
}

func (s *DefaultScheduleRoute) ForceConfirm(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, apierror.NewMissingParamError("id"))
	}

	data, err := utils.ParseTokenDataCtx(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apierror.InvalidAuthTokenError)
	}

	sched, apierr := s.ScheduleService.ForceConfirm(c.Request().Context(), id, data.Actor())
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, sched)
}

// RespondToLink serves the public accept/decline link from confirmation
// emails. It answers with a small HTML page since customers open it in a browser.
func (s *DefaultScheduleRoute) RespondToLink(c echo.Context) error {
	var req service.LinkResponseRequest
	if err := c.Bind(&req); err != nil {
		return c.HTML(http.StatusBadRequest, responsePage("This link is invalid", "Please use the link from your confirmation email."))
	}

	outcome, apierr := s.ScheduleService.RespondToLink(c.Request().Context(), &req)
	if apierr != nil {
		return c.HTML(apierr.Code(), responsePage("We could not process your response", apierr.Error()))
	}

	switch {
	case outcome.Accepted && outcome.AlreadyDone:
		return c.HTML(http.StatusOK, responsePage("Appointment already confirmed", "Your appointment was already confirmed. See you then!"))
	case outcome.Accepted:
		return c.HTML(http.StatusOK, responsePage("Appointment confirmed", "Thank you, your appointment is confirmed."))
	case outcome.Cancelled:
		return c.HTML(http.StatusOK, responsePage("Appointment cancelled", "This appointment is no longer available. We will contact you to reschedule."))
	case outcome.AlreadyDone:
		return c.HTML(http.StatusOK, responsePage("Appointment already declined", "This appointment was already declined. We will be in touch to reschedule."))
	default:
		return c.HTML(http.StatusOK, responsePage("Appointment declined", "Thank you for letting us know. We will contact you to find another time."))
	}
}

func responsePage(title, message string) string {
	title, message = html.EscapeString(title), html.EscapeString(message)
	return "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>" + title + "</title></head>" +
		"<body style=\"font-family:sans-serif;max-width:32rem;margin:4rem auto;text-align:center\">" +
		"<h1>" + title + "</h1><p>" + message + "</p></body></html>"
}
