// Package queue defines booking event payloads and moves them over RabbitMQ.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// BookingEventsQueue is the durable queue booking events are published to.
const BookingEventsQueue = "booking.events"

// Event types.
const (
	BookingCreated = "booking.created"
	BookingUpdated = "booking.updated"
)

// BookingEvent is published after a booking is created or moved to another
// room.  PreviousRoomID is only set for updates.
type BookingEvent struct {
	EventID        string `json:"event_id"`
	Type           string `json:"type"`
	BookingID      uint64 `json:"booking_id"`
	UserID         uint64 `json:"user_id"`
	RoomID         uint64 `json:"room_id"`
	PreviousRoomID uint64 `json:"previous_room_id,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}

// NewBookingEvent stamps an event with a fresh id and the current UTC time.
func NewBookingEvent(typ string, bookingID, userID, roomID, previousRoomID uint64) BookingEvent {
	return BookingEvent{
		EventID:        uuid.NewString(),
		Type:           typ,
		BookingID:      bookingID,
		UserID:         userID,
		RoomID:         roomID,
		PreviousRoomID: previousRoomID,
		OccurredAt:     time.Now().UTC().Format(time.RFC3339),
	}
}
