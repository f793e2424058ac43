package model

import "time"

// Room is a bookable hotel room.  Capacity is the maximum number of
// bookings that may reference the room at the same time.
type Room struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Capacity  int       `json:"capacity"`
	HotelID   uint64    `json:"hotelId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RoomOccupancy is a room together with the bookings currently
// referencing it, used for capacity checks.
type RoomOccupancy struct {
	Room
	Bookings []Booking
}

// Full reports whether no further booking fits.  Rooms whose data is
// already above capacity also count as full.
func (r RoomOccupancy) Full() bool {
	return len(r.Bookings) >= r.Capacity
}

// Hotel owns rooms.
type Hotel struct {
	ID        uint64
	Name      string
	Image     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
