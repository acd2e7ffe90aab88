package entity

type ScheduleStatus string

const (
	StatusPendingTech     ScheduleStatus = "pending_tech"
	StatusTechAccepted    ScheduleStatus = "tech_accepted"
	StatusPendingCustomer ScheduleStatus = "pending_customer"
	StatusConfirmed       ScheduleStatus = "confirmed"
	StatusCancelled       ScheduleStatus = "cancelled"
)

// ActiveStatuses are the statuses the reconciliation run selects by default.
var ActiveStatuses = []ScheduleStatus{StatusPendingTech, StatusTechAccepted, StatusPendingCustomer}

func (s ScheduleStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

type CalendarResponse string

const (
	ResponseNone                CalendarResponse = "none"
	ResponseAccepted            CalendarResponse = "accepted"
	ResponseDeclined            CalendarResponse = "declined"
	ResponseTentativelyAccepted CalendarResponse = "tentativelyaccepted"
)

// IsPositive reports whether the response counts as an acceptance.
func (r CalendarResponse) IsPositive() bool {
	return r == ResponseAccepted || r == ResponseTentativelyAccepted
}

const (
	ConfirmationCalendar  = "calendar"
	ConfirmationEmailLink = "email_link"
	ConfirmationInternal  = "internal"
)

type Schedule struct {
	ID              string         `gorm:"primaryKey"`
	TicketID        string         `gorm:"not null;index"` // References: tickets(id)
	CalendarEventID *string
	Status          ScheduleStatus `gorm:"not null;index"`

	TechnicianID    string `gorm:"not null"`
	TechnicianEmail string `gorm:"not null"`
	TechnicianName  string

	TechCalendarResponse     CalendarResponse `gorm:"not null;default:'none'"`
	CustomerCalendarResponse CalendarResponse `gorm:"not null;default:'none'"`

	// Epoch millis, written once by the transition that produces them.
	TechnicianAcceptedAt *int64
	CustomerAcceptedAt   *int64
	CustomerInviteSentAt *int64
	ConfirmedAt          *int64
	ConfirmedBy          *string
	ConfirmationMethod   *string

	// Local wall-clock values, e.g. "2026-10-20", "09:00", "11:00".
	ScheduledDate      string `gorm:"not null"`
	ScheduledTimeStart string `gorm:"not null"`
	ScheduledTimeEnd   string `gorm:"not null"`

	CreatedAt int64 `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt int64 `gorm:"not null;autoUpdateTime:milli"`
}

// EventID returns the calendar event id, or "" when none has been attached.
func (s *Schedule) EventID() string {
	if s.CalendarEventID == nil {
		return ""
	}
	return *s.CalendarEventID
}
