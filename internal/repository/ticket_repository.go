package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/hotel-room-booking/internal/model"
)

// TicketRepo reads enrollments and tickets.  Both are owned by the
// enrollment/ticket subsystems; this service only consults them to decide
// booking eligibility.
type TicketRepo struct{ DB *sql.DB }

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{DB: db} }

// FindEnrollmentByUser returns the user's enrollment, or nil when the user
// never enrolled.
func (r *TicketRepo) FindEnrollmentByUser(ctx context.Context, userID uint64) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,name,created_at,updated_at FROM enrollments WHERE user_id=? LIMIT 1",
		userID).Scan(&e.ID, &e.UserID, &e.Name, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindTicketByEnrollment returns the enrollment's ticket with its type, or
// nil when no ticket was issued.
func (r *TicketRepo) FindTicketByEnrollment(ctx context.Context, enrollmentID uint64) (*model.Ticket, error) {
	const q = `SELECT t.id, t.enrollment_id, t.ticket_type_id, t.status, t.created_at, t.updated_at,
                      tt.id, tt.name, tt.price, tt.is_remote, tt.includes_hotel
               FROM tickets t
               JOIN ticket_types tt ON tt.id = t.ticket_type_id
               WHERE t.enrollment_id = ?
               LIMIT 1`
	var (
		t      model.Ticket
		status string
	)
	err := r.DB.QueryRowContext(ctx, q, enrollmentID).Scan(
		&t.ID, &t.EnrollmentID, &t.TicketTypeID, &status, &t.CreatedAt, &t.UpdatedAt,
		&t.TicketType.ID, &t.TicketType.Name, &t.TicketType.Price, &t.TicketType.IsRemote, &t.TicketType.IncludesHotel,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.Status = model.TicketStatus(status)
	return &t, nil
}
