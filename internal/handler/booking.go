package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-room-booking/internal/middleware"
	"github.com/iliyamo/hotel-room-booking/internal/model"
	"github.com/iliyamo/hotel-room-booking/internal/service"
)

// BookingService is what the booking endpoints need from the service layer.
type BookingService interface {
	GetBooking(ctx context.Context, userID uint64) (model.BookingWithRoom, error)
	BookingProcess(ctx context.Context, userID, roomID uint64) (model.BookingID, error)
	UpdateBooking(ctx context.Context, userID, roomID uint64) (model.BookingID, error)
}

// BookingHandler serves /booking.  Routes are expected behind SessionAuth.
type BookingHandler struct {
	svc BookingService
	log *logrus.Logger
}

func NewBookingHandler(svc BookingService, log *logrus.Logger) *BookingHandler {
	if svc == nil || log == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{svc: svc, log: log}
}

type roomReq struct {
	RoomID uint64 `json:"roomId"`
}

// roomID reads {"roomId": n} whatever the Content-Type.  A missing or
// non-numeric value yields 0, which never names a room.
func roomID(c echo.Context) uint64 {
	var req roomReq
	if err := c.Echo().JSONSerializer.Deserialize(c, &req); err != nil {
		return 0
	}
	return req.RoomID
}

// GetBooking handles GET /booking.
func (h *BookingHandler) GetBooking(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	b, err := h.svc.GetBooking(c.Request().Context(), uid)
	if err != nil {
		return c.NoContent(h.readStatus(err))
	}
	return c.JSON(http.StatusOK, b)
}

// BookingProcess handles POST /booking with body {"roomId": n}.
func (h *BookingHandler) BookingProcess(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	res, err := h.svc.BookingProcess(c.Request().Context(), uid, roomID(c))
	if err != nil {
		return c.NoContent(h.readStatus(err))
	}
	return c.JSON(http.StatusOK, res)
}

// UpdateBooking handles PUT /booking/:bookingId with body {"roomId": n}.
// The path id is informational: the caller's own booking is the one moved.
func (h *BookingHandler) UpdateBooking(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if pathID, err := strconv.ParseUint(c.Param("bookingId"), 10, 64); err == nil {
		h.log.WithFields(logrus.Fields{"user_id": uid, "path_booking_id": pathID}).Debug("update booking")
	}
	res, err := h.svc.UpdateBooking(c.Request().Context(), uid, roomID(c))
	if err != nil {
		return c.NoContent(h.updateStatus(err))
	}
	return c.JSON(http.StatusOK, res)
}

// readStatus maps errors for GET and POST: Forbidden is 403, anything
// else (including internal failures) is 404.
func (h *BookingHandler) readStatus(err error) int {
	if service.Kind(err) == service.KindForbidden {
		return http.StatusForbidden
	}
	return http.StatusNotFound
}

// updateStatus maps errors for PUT: NotFound is 404, anything else is 403.
func (h *BookingHandler) updateStatus(err error) int {
	if service.Kind(err) == service.KindNotFound {
		return http.StatusNotFound
	}
	return http.StatusForbidden
}
