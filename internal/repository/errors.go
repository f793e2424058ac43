// Package repository is the MySQL persistence gateway.  Lookups return a
// nil result (not an error) when nothing matches; deciding what absence
// means is up to the service layer.  The sentinel values below are the
// only business outcomes reported by this package, and they only come out
// of the allocation transactions that close the check-then-write race.
package repository

import "errors"

// ErrRoomFull is returned when the room filled up between the service's
// capacity check and the write.
var ErrRoomFull = errors.New("room is full")

// ErrBookingExists is returned when the user gained a booking between the
// service's duplicate check and the insert.
var ErrBookingExists = errors.New("user already has a booking")

// ErrRoomNotFound is returned when the room vanished before the write.
var ErrRoomNotFound = errors.New("room not found")
