package apierror

import (
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"net/http"
	"strings"
)

// ErrorResponse is what services hand back to routes; it serialises as the
// JSON error body and carries the HTTP status to respond with.
type ErrorResponse interface {
	Code() int
	Error() string
}

type SimpleError struct {
	Status  int      `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func (s *SimpleError) Code() int {
	return s.Status
}

func (s *SimpleError) Error() string {
	return s.Message
}

func NewSimple(status int, message string) *SimpleError {
	return &SimpleError{Status: status, Message: message}
}

func NewMissingParamError(param string) *SimpleError {
	return &SimpleError{
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("Missing required parameter '%s'", param),
		Fields:  []string{param},
	}
}

func NewStateConflictError(current string) *SimpleError {
	return &SimpleError{
		Status:  http.StatusConflict,
		Message: fmt.Sprintf("Schedule cannot perform this action while in status '%s'", current),
	}
}

// FromValidationError flattens validator errors into a single 400 response.
func FromValidationError(err error) *SimpleError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return MalformedBodyError
	}

	fields := make([]string, 0, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
		msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Field(), fe.Tag()))
	}

	return &SimpleError{
		Status:  http.StatusBadRequest,
		Message: "Validation failed: " + strings.Join(msgs, "; "),
		Fields:  fields,
	}
}

var (
	InternalServerError    = NewSimple(http.StatusInternalServerError, "Internal server error")
	NotFoundError          = NewSimple(http.StatusNotFound, "Resource not found")
	MalformedBodyError     = NewSimple(http.StatusBadRequest, "Malformed request body")
	InvalidAuthTokenError  = NewSimple(http.StatusUnauthorized, "Invalid or missing authentication token")
	InvalidLinkTokenError  = NewSimple(http.StatusForbidden, "This link is invalid")
	TicketNotFoundError    = NewSimple(http.StatusUnprocessableEntity, "Schedule has no ticket")
	MissingCustomerError   = NewSimple(http.StatusUnprocessableEntity, "Ticket has no customer email")
	ScheduleBusyError      = NewSimple(http.StatusConflict, "Schedule is being processed, try again shortly")
	ConfirmationEmailError = NewSimple(http.StatusBadGateway, "Could not send the confirmation email")
	CalendarUnavailable    = NewSimple(http.StatusBadGateway, "Calendar service unavailable")
)
