// Package router registers the HTTP routes and their middleware.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-room-booking/internal/config"
	"github.com/iliyamo/hotel-room-booking/internal/handler"
	"github.com/iliyamo/hotel-room-booking/internal/middleware"
)

// Deps is everything the routes need.  Redis may be nil, which disables
// rate limiting.
type Deps struct {
	Log       *logrus.Logger
	JWTSecret string
	Sessions  middleware.SessionLookup
	DB        handler.Pinger
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Auth      *handler.AuthHandler
	Booking   *handler.BookingHandler
}

// New builds the echo instance with all routes registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))

	RegisterRoutes(e, d.DB)
	RegisterAuth(e, d)
	RegisterBooking(e, d)
	return e
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers sign-in and sign-out.  Sign-out needs a live
// session so it sits behind SessionAuth.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/auth")
	g.POST("/sign-in", d.Auth.SignIn)
	g.POST("/sign-out", d.Auth.SignOut, middleware.SessionAuth(d.JWTSecret, d.Sessions, d.Log))
}

// RegisterBooking registers /booking.  Authentication runs first so rate
// limit keys carry the user id.
func RegisterBooking(e *echo.Echo, d Deps) {
	g := e.Group("/booking",
		middleware.SessionAuth(d.JWTSecret, d.Sessions, d.Log),
		middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log),
	)
	g.GET("", d.Booking.GetBooking)
	g.POST("", d.Booking.BookingProcess)
	g.PUT("/:bookingId", d.Booking.UpdateBooking)
}
