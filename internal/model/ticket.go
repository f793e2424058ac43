package model

import "time"

// TicketStatus is the payment state of a ticket.
type TicketStatus string

const (
	TicketReserved TicketStatus = "RESERVED"
	TicketPaid     TicketStatus = "PAID"
)

// Enrollment is a user's registration for the event.  Tickets hang off
// enrollments, not users.
type Enrollment struct {
	ID        uint64
	UserID    uint64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TicketType describes what a ticket grants.
type TicketType struct {
	ID            uint64
	Name          string
	Price         int
	IsRemote      bool
	IncludesHotel bool
}

// Ticket belongs to an enrollment and carries its type.
type Ticket struct {
	ID           uint64
	EnrollmentID uint64
	TicketTypeID uint64
	Status       TicketStatus
	TicketType   TicketType
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GrantsHotel reports whether the ticket allows booking a room: it must be
// paid and of a type that includes hotel access.
func (t Ticket) GrantsHotel() bool {
	return t.Status == TicketPaid && t.TicketType.IncludesHotel
}
