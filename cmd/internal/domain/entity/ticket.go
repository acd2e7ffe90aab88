package entity

const TicketStatusTriaged = "triaged"

// Ticket is owned by the ticketing side; the engine only reads it and rolls
// its status back on cancellation.
type Ticket struct {
	ID              string `gorm:"primaryKey"`
	CustomerEmail   *string
	CustomerName    string
	CustomerAddress string
	Status          string `gorm:"not null"`
	CreatedAt       int64  `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt       int64  `gorm:"not null;autoUpdateTime:milli"`
}

func (t *Ticket) HasCustomerEmail() bool {
	return t.CustomerEmail != nil && *t.CustomerEmail != ""
}

func (t *Ticket) Email() string {
	if t.CustomerEmail == nil {
		return ""
	}
	return *t.CustomerEmail
}
