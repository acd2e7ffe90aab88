package entity

// ScheduleUpdate is one atomic schedule write. Status and both responses are
// always written as absolute values; nil optional fields are left untouched.
type ScheduleUpdate struct {
	Status                   ScheduleStatus
	TechCalendarResponse     CalendarResponse
	CustomerCalendarResponse CalendarResponse

	TechnicianAcceptedAt *int64
	CustomerAcceptedAt   *int64
	CustomerInviteSentAt *int64
	ConfirmedAt          *int64
	ConfirmedBy          *string
	ConfirmationMethod   *string
}

// Columns maps the update onto schedule column names.
func (u *ScheduleUpdate) Columns() map[string]any {
	cols := map[string]any{
		"status":                     u.Status,
		"tech_calendar_response":     u.TechCalendarResponse,
		"customer_calendar_response": u.CustomerCalendarResponse,
	}
	if u.TechnicianAcceptedAt != nil {
		cols["technician_accepted_at"] = *u.TechnicianAcceptedAt
	}
	if u.CustomerAcceptedAt != nil {
		cols["customer_accepted_at"] = *u.CustomerAcceptedAt
	}
	if u.CustomerInviteSentAt != nil {
		cols["customer_invite_sent_at"] = *u.CustomerInviteSentAt
	}
	if u.ConfirmedAt != nil {
		cols["confirmed_at"] = *u.ConfirmedAt
	}
	if u.ConfirmedBy != nil {
		cols["confirmed_by"] = *u.ConfirmedBy
	}
	if u.ConfirmationMethod != nil {
		cols["confirmation_method"] = *u.ConfirmationMethod
	}
	return cols
}

// ApplyTo copies the update onto an in-memory schedule.
func (u *ScheduleUpdate) ApplyTo(s *Schedule) {
	s.Status = u.Status
	s.TechCalendarResponse = u.TechCalendarResponse
	s.CustomerCalendarResponse = u.CustomerCalendarResponse
	if u.TechnicianAcceptedAt != nil {
		s.TechnicianAcceptedAt = u.TechnicianAcceptedAt
	}
	if u.CustomerAcceptedAt != nil {
		s.CustomerAcceptedAt = u.CustomerAcceptedAt
	}
	if u.CustomerInviteSentAt != nil {
		s.CustomerInviteSentAt = u.CustomerInviteSentAt
	}
	if u.ConfirmedAt != nil {
		s.ConfirmedAt = u.ConfirmedAt
	}
	if u.ConfirmedBy != nil {
		s.ConfirmedBy = u.ConfirmedBy
	}
	if u.ConfirmationMethod != nil {
		s.ConfirmationMethod = u.ConfirmationMethod
	}
}
