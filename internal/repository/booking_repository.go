package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/hotel-room-booking/internal/model"
)

// BookingRepo provides data access to bookings and the rooms they occupy.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// FindByUser returns every booking owned by the user together with its
// room, oldest first.  An empty slice means the user has no booking.
func (r *BookingRepo) FindByUser(ctx context.Context, userID uint64) ([]model.BookingWithRoom, error) {
	const q = `SELECT b.id, r.id, r.name, r.capacity, r.hotel_id, r.created_at, r.updated_at
               FROM bookings b
               JOIN rooms r ON r.id = b.room_id
               WHERE b.user_id = ?
               ORDER BY b.id`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.BookingWithRoom{}
	for rows.Next() {
		var b model.BookingWithRoom
		if err := rows.Scan(&b.ID, &b.Room.ID, &b.Room.Name, &b.Room.Capacity, &b.Room.HotelID,
			&b.Room.CreatedAt, &b.Room.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindIDByUser returns the id of the user's booking.  ok is false when the
// user has none.
func (r *BookingRepo) FindIDByUser(ctx context.Context, userID uint64) (id uint64, ok bool, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM bookings WHERE user_id = ? ORDER BY id LIMIT 1`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// FindRoomByID returns the room and the bookings currently referencing it.
// A nil room and nil error mean the id does not resolve.
func (r *BookingRepo) FindRoomByID(ctx context.Context, roomID uint64) (*model.RoomOccupancy, error) {
	var room model.RoomOccupancy
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, capacity, hotel_id, created_at, updated_at FROM rooms WHERE id = ?`, roomID,
	).Scan(&room.ID, &room.Name, &room.Capacity, &room.HotelID, &room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, room_id, created_at, updated_at FROM bookings WHERE room_id = ? ORDER BY id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	room.Bookings = []model.Booking{}
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.UserID, &b.RoomID, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		room.Bookings = append(room.Bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &room, nil
}

// Create inserts a booking linking the user to the room.  The room row is
// locked for the duration of the transaction and its occupancy recounted,
// so two concurrent requests cannot both take the last place.
// ErrRoomFull, ErrBookingExists and ErrRoomNotFound report a lost race.
func (r *BookingRepo) Create(ctx context.Context, userID, roomID uint64) (model.Booking, error) {
	return retryOnDeadlock(func() (model.Booking, error) { return r.create(ctx, userID, roomID) })
}

func (r *BookingRepo) create(ctx context.Context, userID, roomID uint64) (model.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Booking{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := lockRoomWithSpaceTx(ctx, tx, roomID); err != nil {
		return model.Booking{}, err
	}
	var existing uint64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM bookings WHERE user_id = ? LIMIT 1 FOR UPDATE`, userID).Scan(&existing)
	switch {
	case err == nil:
		return model.Booking{}, ErrBookingExists
	case !errors.Is(err, sql.ErrNoRows):
		return model.Booking{}, err
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO bookings (user_id, room_id) VALUES (?, ?)`, userID, roomID)
	if err != nil {
		return model.Booking{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Booking{}, err
	}
	b, err := getBookingTx(ctx, tx, uint64(id))
	if err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Booking{}, err
	}
	committed = true
	return b, nil
}

// UpdateRoom points an existing booking at another room, under the same
// lock-and-recount rule as Create.  Only the destination room is counted;
// the booking's current occupancy is not discounted.
func (r *BookingRepo) UpdateRoom(ctx context.Context, bookingID, roomID uint64) (model.Booking, error) {
	return retryOnDeadlock(func() (model.Booking, error) { return r.updateRoom(ctx, bookingID, roomID) })
}

func (r *BookingRepo) updateRoom(ctx context.Context, bookingID, roomID uint64) (model.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Booking{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := lockRoomWithSpaceTx(ctx, tx, roomID); err != nil {
		return model.Booking{}, err
	}
	// RowsAffected is not checked: MySQL reports 0 for a no-op move into the
	// same room.  A missing booking surfaces as sql.ErrNoRows below.
	if _, err := tx.ExecContext(ctx,
		`UPDATE bookings SET room_id = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`, roomID, bookingID); err != nil {
		return model.Booking{}, err
	}
	b, err := getBookingTx(ctx, tx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Booking{}, err
	}
	committed = true
	return b, nil
}

// deadlockAttempts bounds how often an allocation transaction is replayed
// after MySQL picked it as a deadlock victim.
const deadlockAttempts = 3

// retryOnDeadlock replays fn when InnoDB aborts it with ER_LOCK_DEADLOCK.
// The gap lock taken while checking for an existing booking makes two
// concurrent inserts deadlock; on replay the loser sees the winner's row
// and reports ErrBookingExists or ErrRoomFull instead.
func retryOnDeadlock(fn func() (model.Booking, error)) (model.Booking, error) {
	var (
		b   model.Booking
		err error
	)
	for i := 0; i < deadlockAttempts; i++ {
		b, err = fn()
		if !isDeadlock(err) {
			return b, err
		}
	}
	return b, err
}

func isDeadlock(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1213
}

// lockRoomWithSpaceTx takes a row lock on the room and verifies it still has
// a free place.  Every writer of bookings for a room goes through this lock.
func lockRoomWithSpaceTx(ctx context.Context, tx *sql.Tx, roomID uint64) error {
	var capacity int
	err := tx.QueryRowContext(ctx, `SELECT capacity FROM rooms WHERE id = ? FOR UPDATE`, roomID).Scan(&capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRoomNotFound
	}
	if err != nil {
		return err
	}
	var occupied int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE room_id = ?`, roomID).Scan(&occupied); err != nil {
		return err
	}
	if occupied >= capacity {
		return ErrRoomFull
	}
	return nil
}

func getBookingTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Booking, error) {
	var b model.Booking
	err := tx.QueryRowContext(ctx,
		`SELECT id, user_id, room_id, created_at, updated_at FROM bookings WHERE id = ?`, id,
	).Scan(&b.ID, &b.UserID, &b.RoomID, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}
