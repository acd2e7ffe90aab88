package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fieldconfirm/cmd/internal/reconcile"
	"fieldconfirm/cmd/internal/service"
	"fieldconfirm/cmd/internal/utils"
	"fieldconfirm/cmd/internal/utils/apierror"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var operatorSecret = []byte("operator-secret")

type fakeScheduleService struct {
	reconcileReq *service.ReconcileRequest
	operator     string
	linkReq      *service.LinkResponseRequest
	outcome      *service.LinkOutcome
	apierr       apierror.ErrorResponse
}

func (f *fakeScheduleService) Reconcile(_ context.Context, req *service.ReconcileRequest) (*reconcile.RunReport, apierror.ErrorResponse) {
	f.reconcileReq = req
	if f.apierr != nil {
		return nil, f.apierr
	}
	return &reconcile.RunReport{RunID: "run-1", Trigger: reconcile.TriggerManual, Checked: len(req.ScheduleIDs), Details: []*reconcile.ItemResult{}}, nil
}

func (f *fakeScheduleService) GetSchedule(id string) (*service.ScheduleResponse, apierror.ErrorResponse) {
	if f.apierr != nil {
		return nil, f.apierr
	}
	return &service.ScheduleResponse{ID: id, Status: "pending_tech"}, nil
}

func (f *fakeScheduleService) SendCustomerInvite(_ context.Context, id string) (*service.ScheduleResponse, apierror.ErrorResponse) {
	if f.apierr != nil {
		return nil, f.apierr
	}
	return &service.ScheduleResponse{ID: id, Status: "pending_customer"}, nil
}

func (f *fakeScheduleService) ForceConfirm(_ context.Context, id string, operator string) (*service.ScheduleResponse, apierror.ErrorResponse) {
	f.operator = operator
	if f.apierr != nil {
		return nil, f.apierr
	}
	return &service.ScheduleResponse{ID: id, Status: "confirmed", ConfirmedBy: operator}, nil
}

func (f *fakeScheduleService) RespondToLink(_ context.Context, req *service.LinkResponseRequest) (*service.LinkOutcome, apierror.ErrorResponse) {
	f.linkReq = req
	if f.apierr != nil {
		return nil, f.apierr
	}
	return f.outcome, nil
}

func newServer(svc *fakeScheduleService) *echo.Echo {
	r := NewScheduleDefault(svc)
	e := echo.New()
	e.GET("/schedule-response", r.RespondToLink)

	api := e.Group("/api", utils.OperatorAuth(operatorSecret, func(c echo.Context) error {
		return c.JSON(http.StatusUnauthorized, apierror.InvalidAuthTokenError)
	}))
	api.POST("/reconcile", r.Reconcile)
	api.GET("/schedules/:id", r.GetSchedule)
	api.POST("/schedules/:id/invite", r.SendCustomerInvite)
	api.POST("/schedules/:id/confirm", r.ForceConfirm)
	return e
}

func bearer(t *testing.T) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "op-1",
		"email": "ops@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString(operatorSecret)
	require.NoError(t, err)
	return "Bearer " + raw
}

func do(e *echo.Echo, method, target, body, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestReconcileRoute(t *testing.T) {
	svc := &fakeScheduleService{}
	e := newServer(svc)

	rec := do(e, http.MethodPost, "/api/reconcile", `{"schedule_ids":["s1","s2"]}`, bearer(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s1", "s2"}, svc.reconcileReq.ScheduleIDs)

	var report map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "manual", report["trigger"])
	assert.EqualValues(t, 2, report["checked"])

	rec = do(e, http.MethodPost, "/api/reconcile", `{"schedule_ids":`, bearer(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/reconcile", `{}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScheduleRoutes_ErrorsUseServiceStatus(t *testing.T) {
	svc := &fakeScheduleService{apierr: apierror.NewStateConflictError("pending_tech")}
	e := newServer(svc)

	rec := do(e, http.MethodPost, "/api/schedules/s1/invite", "", bearer(t))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body apierror.SimpleError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusConflict, body.Status)
	assert.Contains(t, body.Message, "pending_tech")
}

func TestGetScheduleRoute(t *testing.T) {
	e := newServer(&fakeScheduleService{})

	rec := do(e, http.MethodGet, "/api/schedules/s1", "", bearer(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"s1"`)
}

func TestForceConfirmRoute_UsesOperatorIdentity(t *testing.T) {
	svc := &fakeScheduleService{}
	e := newServer(svc)

	rec := do(e, http.MethodPost, "/api/schedules/s1/confirm", "", bearer(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops@example.com", svc.operator)
}

func TestRespondToLinkRoute(t *testing.T) {
	cases := []struct {
		name    string
		outcome *service.LinkOutcome
		title   string
	}{
		{"accepted", &service.LinkOutcome{Accepted: true}, "Appointment confirmed"},
		{"accepted again", &service.LinkOutcome{Accepted: true, AlreadyDone: true}, "Appointment already confirmed"},
		{"declined", &service.LinkOutcome{}, "Appointment declined"},
		{"declined again", &service.LinkOutcome{AlreadyDone: true}, "Appointment already declined"},
		{"cancelled on the calendar", &service.LinkOutcome{Cancelled: true}, "Appointment cancelled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeScheduleService{outcome: tc.outcome}
			e := newServer(svc)

			rec := do(e, http.MethodGet, "/schedule-response?action=accept&scheduleId=s1&token=abc", "", "")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
			assert.Contains(t, rec.Body.String(), "<h1>"+tc.title+"</h1>")

			assert.Equal(t, "accept", svc.linkReq.Action)
			assert.Equal(t, "s1", svc.linkReq.ScheduleID)
			assert.Equal(t, "abc", svc.linkReq.Token)
		})
	}
}

func TestRespondToLinkRoute_Rejected(t *testing.T) {
	e := newServer(&fakeScheduleService{apierr: apierror.InvalidLinkTokenError})

	rec := do(e, http.MethodGet, "/schedule-response?action=accept&scheduleId=s1&token=bad", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "This link is invalid")
}
