package model

import "time"

// Booking links one user to one room.  A user holds at most one booking;
// the rule lives in the service layer, not in a unique index.
//
// Fields:
//
//	ID        – primary key identifier.
//	UserID    – owner of the booking.
//	RoomID    – room the booking occupies.
//	CreatedAt – creation timestamp.
//	UpdatedAt – last update timestamp (changes on room reassignment).
type Booking struct {
	ID        uint64    // bookings.id
	UserID    uint64    // bookings.user_id
	RoomID    uint64    // bookings.room_id
	CreatedAt time.Time // bookings.created_at
	UpdatedAt time.Time // bookings.updated_at
}

// BookingWithRoom is the read model returned to the booking owner.  The
// JSON field names match what existing clients of the platform consume.
type BookingWithRoom struct {
	ID   uint64 `json:"id"`
	Room Room   `json:"Room"`
}

// BookingID is the body returned by create and update.
type BookingID struct {
	ID uint64 `json:"id"`
}
