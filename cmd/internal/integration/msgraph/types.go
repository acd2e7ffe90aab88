package msgraph

import (
	"strings"

	"fieldconfirm/cmd/internal/domain/entity"
)

type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type ResponseStatus struct {
	Response string `json:"response,omitempty"`
	Time     string `json:"time,omitempty"`
}

type Attendee struct {
	Type         string          `json:"type,omitempty"`
	Status       *ResponseStatus `json:"status,omitempty"`
	EmailAddress EmailAddress    `json:"emailAddress"`
}

// Response normalises the Graph response onto the schedule vocabulary.
// "organizer", "notResponded" and a missing status all map to none.
func (a Attendee) Response() entity.CalendarResponse {
	if a.Status == nil {
		return entity.ResponseNone
	}
	switch strings.ToLower(a.Status.Response) {
	case "accepted":
		return entity.ResponseAccepted
	case "declined":
		return entity.ResponseDeclined
	case "tentativelyaccepted":
		return entity.ResponseTentativelyAccepted
	default:
		return entity.ResponseNone
	}
}

type Organizer struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// Event is the projection of a Graph event the engine reads.
type Event struct {
	ID        string     `json:"id"`
	Subject   string     `json:"subject"`
	Attendees []Attendee `json:"attendees"`
	Organizer *Organizer `json:"organizer,omitempty"`
}

// FindAttendee matches by email, case-insensitively.
func (e *Event) FindAttendee(email string) (Attendee, bool) {
	if email == "" {
		return Attendee{}, false
	}
	for _, a := range e.Attendees {
		if strings.EqualFold(strings.TrimSpace(a.EmailAddress.Address), strings.TrimSpace(email)) {
			return a, true
		}
	}
	return Attendee{}, false
}

// ResponseOf returns the attendee's response, or none when absent.
func (e *Event) ResponseOf(email string) entity.CalendarResponse {
	a, ok := e.FindAttendee(email)
	if !ok {
		return entity.ResponseNone
	}
	return a.Response()
}

const (
	ShowAsBusy      = "busy"
	ShowAsTentative = "tentative"
)

// EventPatch carries the mutable event fields; nil fields are not sent.
type EventPatch struct {
	Subject   *string    `json:"subject,omitempty"`
	ShowAs    *string    `json:"showAs,omitempty"`
	Attendees []Attendee `json:"attendees,omitempty"`
}

type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

type Attachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

type Message struct {
	Subject      string       `json:"subject"`
	Body         ItemBody     `json:"body"`
	ToRecipients []Recipient  `json:"toRecipients"`
	From         *Recipient   `json:"from,omitempty"`
	Attachments  []Attachment `json:"attachments,omitempty"`
}

// SenderIdentity is the resolved mailbox the service sends as.
type SenderIdentity struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

func (s *SenderIdentity) Address() string {
	if s.Mail != "" {
		return s.Mail
	}
	return s.UserPrincipalName
}
