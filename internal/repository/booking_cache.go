package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-room-booking/internal/config"
	"github.com/iliyamo/hotel-room-booking/internal/model"
)

// Bookings is the booking gateway wrapped by CachedBookingRepo.
// *BookingRepo implements it.
type Bookings interface {
	FindByUser(ctx context.Context, userID uint64) ([]model.BookingWithRoom, error)
	FindIDByUser(ctx context.Context, userID uint64) (uint64, bool, error)
	FindRoomByID(ctx context.Context, roomID uint64) (*model.RoomOccupancy, error)
	Create(ctx context.Context, userID, roomID uint64) (model.Booking, error)
	UpdateRoom(ctx context.Context, bookingID, roomID uint64) (model.Booking, error)
}

// CachedBookingRepo keeps each user's booking-with-room rows in Redis.
// Only non-empty results are stored, and every successful Create or
// UpdateRoom evicts the owner's entry.  Room occupancy is never cached so
// capacity checks always see the database.  Redis errors fall through to
// the wrapped gateway.
type CachedBookingRepo struct {
	Bookings
	rdb *redis.Client
	cfg config.CacheConfig
	log *logrus.Logger
}

// NewCachedBookingRepo wraps base.  With caching disabled or a nil client
// it returns base unchanged.
func NewCachedBookingRepo(base Bookings, rdb *redis.Client, cfg config.CacheConfig, log *logrus.Logger) Bookings {
	if !cfg.Enabled || rdb == nil {
		return base
	}
	return &CachedBookingRepo{Bookings: base, rdb: rdb, cfg: cfg, log: log}
}

func (r *CachedBookingRepo) key(userID uint64) string {
	return fmt.Sprintf("%s:booking:user:%d", r.cfg.Prefix, userID)
}

// FindByUser serves from Redis when possible.
func (r *CachedBookingRepo) FindByUser(ctx context.Context, userID uint64) ([]model.BookingWithRoom, error) {
	key := r.key(userID)
	bs, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out []model.BookingWithRoom
		if jerr := json.Unmarshal(bs, &out); jerr == nil && len(out) > 0 {
			return out, nil
		}
	case !errors.Is(err, redis.Nil):
		r.log.WithError(err).Warn("booking cache read failed")
	}

	out, err := r.Bookings.FindByUser(ctx, userID)
	if err != nil || len(out) == 0 {
		return out, err
	}
	if payload, jerr := json.Marshal(out); jerr == nil {
		if serr := r.rdb.Set(context.WithoutCancel(ctx), key, payload, r.cfg.TTL).Err(); serr != nil {
			r.log.WithError(serr).Warn("booking cache store failed")
		}
	}
	return out, nil
}

// Create inserts through the wrapped gateway and evicts the user's entry.
func (r *CachedBookingRepo) Create(ctx context.Context, userID, roomID uint64) (model.Booking, error) {
	b, err := r.Bookings.Create(ctx, userID, roomID)
	if err == nil {
		r.evict(ctx, b.UserID)
	}
	return b, err
}

// UpdateRoom moves the booking and evicts its owner's entry.
func (r *CachedBookingRepo) UpdateRoom(ctx context.Context, bookingID, roomID uint64) (model.Booking, error) {
	b, err := r.Bookings.UpdateRoom(ctx, bookingID, roomID)
	if err == nil {
		r.evict(ctx, b.UserID)
	}
	return b, err
}

func (r *CachedBookingRepo) evict(ctx context.Context, userID uint64) {
	if err := r.rdb.Del(context.WithoutCancel(ctx), r.key(userID)).Err(); err != nil {
		r.log.WithError(err).WithField("user_id", userID).Warn("booking cache eviction failed")
	}
}
