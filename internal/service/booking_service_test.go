package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hotel-room-booking/internal/config"
	"github.com/iliyamo/hotel-room-booking/internal/logger"
	"github.com/iliyamo/hotel-room-booking/internal/model"
	"github.com/iliyamo/hotel-room-booking/internal/queue"
	"github.com/iliyamo/hotel-room-booking/internal/repository"
)

// memStore is an in-memory BookingStore.
type memStore struct {
	rooms    map[uint64]model.Room
	bookings []model.Booking
	nextID   uint64

	failWith  error // returned by every read when set
	createErr error // returned by Create/UpdateRoom when set
}

func newMemStore(rooms ...model.Room) *memStore {
	s := &memStore{rooms: map[uint64]model.Room{}, nextID: 1}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

func (s *memStore) add(userID, roomID uint64) model.Booking {
	b := model.Booking{ID: s.nextID, UserID: userID, RoomID: roomID}
	s.nextID++
	s.bookings = append(s.bookings, b)
	return b
}

func (s *memStore) FindByUser(_ context.Context, userID uint64) ([]model.BookingWithRoom, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := []model.BookingWithRoom{}
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, model.BookingWithRoom{ID: b.ID, Room: s.rooms[b.RoomID]})
		}
	}
	return out, nil
}

func (s *memStore) FindIDByUser(_ context.Context, userID uint64) (uint64, bool, error) {
	if s.failWith != nil {
		return 0, false, s.failWith
	}
	for _, b := range s.bookings {
		if b.UserID == userID {
			return b.ID, true, nil
		}
	}
	return 0, false, nil
}

func (s *memStore) FindRoomByID(_ context.Context, roomID uint64) (*model.RoomOccupancy, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, nil
	}
	occ := &model.RoomOccupancy{Room: r, Bookings: []model.Booking{}}
	for _, b := range s.bookings {
		if b.RoomID == roomID {
			occ.Bookings = append(occ.Bookings, b)
		}
	}
	return occ, nil
}

func (s *memStore) Create(_ context.Context, userID, roomID uint64) (model.Booking, error) {
	if s.createErr != nil {
		return model.Booking{}, s.createErr
	}
	return s.add(userID, roomID), nil
}

func (s *memStore) UpdateRoom(_ context.Context, bookingID, roomID uint64) (model.Booking, error) {
	if s.createErr != nil {
		return model.Booking{}, s.createErr
	}
	for i := range s.bookings {
		if s.bookings[i].ID == bookingID {
			s.bookings[i].RoomID = roomID
			return s.bookings[i], nil
		}
	}
	return model.Booking{}, errors.New("booking not found")
}

// memTickets maps user ids to their ticket; a nil ticket means enrolled
// without a ticket, a missing key means not enrolled.
type memTickets struct {
	tickets map[uint64]*model.Ticket
	err     error
}

func (m *memTickets) FindEnrollmentByUser(_ context.Context, userID uint64) (*model.Enrollment, error) {
	if m.err != nil {
		return nil, m.err
	}
	if _, ok := m.tickets[userID]; !ok {
		return nil, nil
	}
	return &model.Enrollment{ID: userID + 1000, UserID: userID}, nil
}

func (m *memTickets) FindTicketByEnrollment(_ context.Context, enrollmentID uint64) (*model.Ticket, error) {
	return m.tickets[enrollmentID-1000], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.BookingEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func paidHotel() *model.Ticket {
	return &model.Ticket{Status: model.TicketPaid, TicketType: model.TicketType{IncludesHotel: true}}
}

const (
	eligible   uint64 = 1
	other      uint64 = 2
	reserved   uint64 = 3
	noHotel    uint64 = 4
	noTicket   uint64 = 5
	unenrolled uint64 = 6
)

type fixture struct {
	svc    *BookingService
	store  *memStore
	events *recordingPublisher
}

func newFixture(rooms ...model.Room) fixture {
	store := newMemStore(rooms...)
	tickets := &memTickets{tickets: map[uint64]*model.Ticket{
		eligible: paidHotel(),
		other:    paidHotel(),
		reserved: {Status: model.TicketReserved, TicketType: model.TicketType{IncludesHotel: true}},
		noHotel:  {Status: model.TicketPaid, TicketType: model.TicketType{IncludesHotel: false}},
		noTicket: nil,
	}}
	events := &recordingPublisher{}
	return fixture{
		svc:    NewBookingService(store, tickets, events, logger.Discard()),
		store:  store,
		events: events,
	}
}

var (
	single = model.Room{ID: 10, Name: "Single", Capacity: 1, HotelID: 1}
	triple = model.Room{ID: 30, Name: "Triple", Capacity: 3, HotelID: 1}
)

func TestIneligibleUsersAreForbiddenEverywhere(t *testing.T) {
	for _, user := range []uint64{reserved, noHotel, noTicket, unenrolled} {
		f := newFixture(single)
		ctx := context.Background()

		_, err := f.svc.GetBooking(ctx, user)
		assert.ErrorIs(t, err, ErrForbidden, "read user %d", user)

		_, err = f.svc.BookingProcess(ctx, user, single.ID)
		assert.ErrorIs(t, err, ErrForbidden, "create user %d", user)

		// Even a nonexistent room reports Forbidden: the ticket is checked first.
		_, err = f.svc.UpdateBooking(ctx, user, 999)
		assert.ErrorIs(t, err, ErrForbidden, "update user %d", user)
	}
}

func TestGetBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("no booking is not found", func(t *testing.T) {
		f := newFixture(single)
		_, err := f.svc.GetBooking(ctx, eligible)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, KindNotFound, Kind(err))
	})

	t.Run("returns booking with room", func(t *testing.T) {
		f := newFixture(triple)
		b := f.store.add(eligible, triple.ID)

		got, err := f.svc.GetBooking(ctx, eligible)
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)
		assert.Equal(t, triple, got.Room)
		assert.Empty(t, f.events.events, "reads publish nothing")
	})

	t.Run("storage failure is internal", func(t *testing.T) {
		f := newFixture(single)
		f.store.failWith = errors.New("db down")
		_, err := f.svc.GetBooking(ctx, eligible)
		require.Error(t, err)
		assert.Equal(t, KindInternal, Kind(err))
	})
}

func TestBookingProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("creates booking and round-trips through read", func(t *testing.T) {
		f := newFixture(single)

		res, err := f.svc.BookingProcess(ctx, eligible, single.ID)
		require.NoError(t, err)
		assert.NotZero(t, res.ID)

		got, err := f.svc.GetBooking(ctx, eligible)
		require.NoError(t, err)
		assert.Equal(t, res.ID, got.ID)
		assert.Equal(t, single.ID, got.Room.ID)

		require.Len(t, f.events.events, 1)
		assert.Equal(t, queue.BookingCreated, f.events.events[0].Type)
		assert.Equal(t, res.ID, f.events.events[0].BookingID)
	})

	t.Run("duplicate booking is forbidden", func(t *testing.T) {
		f := newFixture(triple)
		f.store.add(eligible, triple.ID)

		_, err := f.svc.BookingProcess(ctx, eligible, triple.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("duplicate check precedes room lookup", func(t *testing.T) {
		f := newFixture(triple)
		f.store.add(eligible, triple.ID)

		_, err := f.svc.BookingProcess(ctx, eligible, 0)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown room is not found", func(t *testing.T) {
		f := newFixture(single)
		_, err := f.svc.BookingProcess(ctx, eligible, 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("full room is forbidden", func(t *testing.T) {
		f := newFixture(single)
		f.store.add(other, single.ID)

		_, err := f.svc.BookingProcess(ctx, eligible, single.ID)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Empty(t, f.events.events)
	})

	t.Run("race lost in transaction is forbidden", func(t *testing.T) {
		for _, raceErr := range []error{repository.ErrRoomFull, repository.ErrBookingExists} {
			f := newFixture(single)
			f.store.createErr = raceErr
			_, err := f.svc.BookingProcess(ctx, eligible, single.ID)
			assert.ErrorIs(t, err, ErrForbidden)
		}
	})

	t.Run("room removed in transaction is not found", func(t *testing.T) {
		f := newFixture(single)
		f.store.createErr = repository.ErrRoomNotFound
		_, err := f.svc.BookingProcess(ctx, eligible, single.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("publish failure does not fail the booking", func(t *testing.T) {
		f := newFixture(single)
		f.events.err = errors.New("broker down")
		_, err := f.svc.BookingProcess(ctx, eligible, single.ID)
		assert.NoError(t, err)
	})

	t.Run("dropped event is logged once", func(t *testing.T) {
		f := newFixture(single)
		log, hook := logtest.NewNullLogger()
		f.svc.log = log
		f.events.err = queue.ErrPublisherBusy
		_, err := f.svc.BookingProcess(ctx, eligible, single.ID)
		require.NoError(t, err)

		entries := hook.AllEntries()
		require.Len(t, entries, 1)
		assert.Equal(t, "booking event dropped", entries[0].Message)
		assert.ErrorIs(t, entries[0].Data["error"].(error), queue.ErrPublisherBusy)
	})
}

func TestUpdateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("no previous booking is forbidden", func(t *testing.T) {
		f := newFixture(triple)
		_, err := f.svc.UpdateBooking(ctx, eligible, triple.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown room is not found", func(t *testing.T) {
		f := newFixture(single)
		f.store.add(eligible, single.ID)
		_, err := f.svc.UpdateBooking(ctx, eligible, 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("full destination is forbidden", func(t *testing.T) {
		second := model.Room{ID: 11, Capacity: 1, HotelID: 1}
		f := newFixture(single, second)
		f.store.add(other, second.ID)
		f.store.add(eligible, single.ID)

		_, err := f.svc.UpdateBooking(ctx, eligible, second.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("own occupancy is not discounted", func(t *testing.T) {
		f := newFixture(single)
		f.store.add(eligible, single.ID)

		_, err := f.svc.UpdateBooking(ctx, eligible, single.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("moves booking and round-trips through read", func(t *testing.T) {
		newRoom := model.Room{ID: 31, Capacity: 3, HotelID: 1}
		f := newFixture(triple, newRoom)
		b := f.store.add(eligible, triple.ID)

		res, err := f.svc.UpdateBooking(ctx, eligible, newRoom.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, res.ID)

		got, err := f.svc.GetBooking(ctx, eligible)
		require.NoError(t, err)
		assert.Equal(t, newRoom.ID, got.Room.ID)

		occ, err := f.store.FindRoomByID(ctx, triple.ID)
		require.NoError(t, err)
		assert.Empty(t, occ.Bookings, "old room is released")

		require.Len(t, f.events.events, 1)
		ev := f.events.events[0]
		assert.Equal(t, queue.BookingUpdated, ev.Type)
		assert.Equal(t, triple.ID, ev.PreviousRoomID)
		assert.Equal(t, newRoom.ID, ev.RoomID)
	})

	t.Run("race lost in transaction is forbidden", func(t *testing.T) {
		f := newFixture(triple)
		f.store.add(eligible, triple.ID)
		f.store.createErr = repository.ErrRoomFull
		_, err := f.svc.UpdateBooking(ctx, eligible, triple.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestCachedBookingStillChecksTicket(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := newMemStore(triple)
	store.add(eligible, triple.ID)
	tickets := &memTickets{tickets: map[uint64]*model.Ticket{eligible: paidHotel()}}
	cached := repository.NewCachedBookingRepo(store, rdb,
		config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "test"}, logger.Discard())
	svc := NewBookingService(cached, tickets, nil, logger.Discard())
	ctx := context.Background()

	_, err := svc.GetBooking(ctx, eligible)
	require.NoError(t, err)
	require.True(t, mr.Exists("test:booking:user:1"), "booking lookup is cached")

	tickets.tickets[eligible] = &model.Ticket{Status: model.TicketReserved, TicketType: model.TicketType{IncludesHotel: true}}
	_, err = svc.GetBooking(ctx, eligible)
	assert.ErrorIs(t, err, ErrForbidden)

	delete(tickets.tickets, eligible)
	_, err = svc.GetBooking(ctx, eligible)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTicketLookupFailureIsInternal(t *testing.T) {
	svc := NewBookingService(newMemStore(), &memTickets{err: errors.New("timeout")}, nil, logger.Discard())
	_, err := svc.GetBooking(context.Background(), eligible)
	require.Error(t, err)
	assert.Equal(t, KindInternal, Kind(err))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "forbidden", KindForbidden.String())
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "internal", KindInternal.String())
}
