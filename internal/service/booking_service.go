// Package service holds the booking eligibility and room allocation rules.
//
// Every operation checks, in this order: ticket eligibility, booking
// existence, room existence, room capacity.  The first failing check
// decides the error, so callers can rely on e.g. an ineligible user never
// learning whether a room exists.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-room-booking/internal/model"
	"github.com/iliyamo/hotel-room-booking/internal/queue"
	"github.com/iliyamo/hotel-room-booking/internal/repository"
)

// BookingStore is the persistence gateway for bookings and rooms.
type BookingStore interface {
	FindByUser(ctx context.Context, userID uint64) ([]model.BookingWithRoom, error)
	FindIDByUser(ctx context.Context, userID uint64) (uint64, bool, error)
	FindRoomByID(ctx context.Context, roomID uint64) (*model.RoomOccupancy, error)
	Create(ctx context.Context, userID, roomID uint64) (model.Booking, error)
	UpdateRoom(ctx context.Context, bookingID, roomID uint64) (model.Booking, error)
}

// TicketLookup reads enrollment and ticket records owned by other
// subsystems.
type TicketLookup interface {
	FindEnrollmentByUser(ctx context.Context, userID uint64) (*model.Enrollment, error)
	FindTicketByEnrollment(ctx context.Context, enrollmentID uint64) (*model.Ticket, error)
}

// EventPublisher receives booking events after successful writes.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.BookingEvent) error
}

// BookingService implements read, create and room change for a user's
// booking.
type BookingService struct {
	bookings BookingStore
	tickets  TicketLookup
	events   EventPublisher
	log      *logrus.Logger
}

// NewBookingService wires the service.  A nil publisher disables events.
func NewBookingService(bookings BookingStore, tickets TicketLookup, events EventPublisher, log *logrus.Logger) *BookingService {
	if bookings == nil || tickets == nil || log == nil {
		panic("nil dependency passed to NewBookingService")
	}
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &BookingService{bookings: bookings, tickets: tickets, events: events, log: log}
}

// GetBooking returns the user's booking with its room.
func (s *BookingService) GetBooking(ctx context.Context, userID uint64) (model.BookingWithRoom, error) {
	if err := s.checkTicket(ctx, userID); err != nil {
		return model.BookingWithRoom{}, err
	}
	bookings, err := s.bookings.FindByUser(ctx, userID)
	if err != nil {
		return model.BookingWithRoom{}, s.internal(err, userID, 0, "find booking")
	}
	if len(bookings) == 0 {
		return model.BookingWithRoom{}, s.reject(ErrNotFound, userID, 0, "no booking yet")
	}
	return bookings[0], nil
}

// BookingProcess books roomID for a user that has no booking yet and
// returns the new booking's id.
func (s *BookingService) BookingProcess(ctx context.Context, userID, roomID uint64) (model.BookingID, error) {
	if err := s.checkTicket(ctx, userID); err != nil {
		return model.BookingID{}, err
	}
	_, has, err := s.bookings.FindIDByUser(ctx, userID)
	if err != nil {
		return model.BookingID{}, s.internal(err, userID, roomID, "find booking")
	}
	if has {
		return model.BookingID{}, s.reject(ErrForbidden, userID, roomID, "user already has a booking")
	}
	if err := s.checkRoom(ctx, userID, roomID); err != nil {
		return model.BookingID{}, err
	}

	b, err := s.bookings.Create(ctx, userID, roomID)
	if err != nil {
		return model.BookingID{}, s.allocationError(err, userID, roomID)
	}
	s.publish(ctx, queue.NewBookingEvent(queue.BookingCreated, b.ID, userID, roomID, 0))
	return model.BookingID{ID: b.ID}, nil
}

// UpdateBooking moves the user's existing booking to roomID and returns
// the booking's id.  Only the destination room's occupancy is checked; the
// user's current place is not discounted, even when moving within the same
// room.
func (s *BookingService) UpdateBooking(ctx context.Context, userID, roomID uint64) (model.BookingID, error) {
	if err := s.checkTicket(ctx, userID); err != nil {
		return model.BookingID{}, err
	}
	bookings, err := s.bookings.FindByUser(ctx, userID)
	if err != nil {
		return model.BookingID{}, s.internal(err, userID, roomID, "find booking")
	}
	if len(bookings) == 0 {
		return model.BookingID{}, s.reject(ErrForbidden, userID, roomID, "no booking to update")
	}
	if err := s.checkRoom(ctx, userID, roomID); err != nil {
		return model.BookingID{}, err
	}

	current := bookings[0]
	b, err := s.bookings.UpdateRoom(ctx, current.ID, roomID)
	if err != nil {
		return model.BookingID{}, s.allocationError(err, userID, roomID)
	}
	s.publish(ctx, queue.NewBookingEvent(queue.BookingUpdated, b.ID, userID, roomID, current.Room.ID))
	return model.BookingID{ID: b.ID}, nil
}

// checkTicket requires an enrollment whose ticket is paid and includes the
// hotel.  Missing enrollment or ticket is a rejection, not an error.
func (s *BookingService) checkTicket(ctx context.Context, userID uint64) error {
	enrollment, err := s.tickets.FindEnrollmentByUser(ctx, userID)
	if err != nil {
		return s.internal(err, userID, 0, "find enrollment")
	}
	if enrollment == nil {
		return s.reject(ErrForbidden, userID, 0, "no enrollment")
	}
	ticket, err := s.tickets.FindTicketByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return s.internal(err, userID, 0, "find ticket")
	}
	if ticket == nil {
		return s.reject(ErrForbidden, userID, 0, "no ticket")
	}
	if !ticket.GrantsHotel() {
		return s.reject(ErrForbidden, userID, 0, "ticket is not paid or does not include hotel")
	}
	return nil
}

// checkRoom looks the room up before checking capacity, so a missing room
// is NotFound even though it trivially has no space.
func (s *BookingService) checkRoom(ctx context.Context, userID, roomID uint64) error {
	room, err := s.bookings.FindRoomByID(ctx, roomID)
	if err != nil {
		return s.internal(err, userID, roomID, "find room")
	}
	if room == nil {
		return s.reject(ErrNotFound, userID, roomID, "room does not exist")
	}
	if room.Full() {
		return s.reject(ErrForbidden, userID, roomID, "room is full")
	}
	return nil
}

// allocationError translates races lost inside the write transaction.
func (s *BookingService) allocationError(err error, userID, roomID uint64) error {
	switch {
	case errors.Is(err, repository.ErrRoomFull):
		return s.reject(ErrForbidden, userID, roomID, "room filled concurrently")
	case errors.Is(err, repository.ErrBookingExists):
		return s.reject(ErrForbidden, userID, roomID, "booking created concurrently")
	case errors.Is(err, repository.ErrRoomNotFound):
		return s.reject(ErrNotFound, userID, roomID, "room removed concurrently")
	}
	return s.internal(err, userID, roomID, "write booking")
}

func (s *BookingService) reject(kind error, userID, roomID uint64, reason string) error {
	s.log.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID, "kind": Kind(kind).String()}).
		Debug("booking rejected: " + reason)
	return fmt.Errorf("%w: %s", kind, reason)
}

func (s *BookingService) internal(err error, userID, roomID uint64, op string) error {
	s.log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "room_id": roomID}).
		Error("booking storage failure: " + op)
	return fmt.Errorf("%s: %w", op, err)
}

// publish is best effort; the booking is already committed.  Only a
// rejected hand-off is logged here; delivery failures are the publisher's.
func (s *BookingService) publish(ctx context.Context, ev queue.BookingEvent) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"booking_id": ev.BookingID, "event_type": ev.Type}).
			Warn("booking event dropped")
	}
}
