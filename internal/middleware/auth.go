package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-room-booking/internal/model"
	"github.com/iliyamo/hotel-room-booking/internal/utils"
)

// Context keys set by SessionAuth.
const (
	ctxUserID = "user_id"
	ctxToken  = "token"
)

// SessionLookup resolves a bearer token to its stored session.
type SessionLookup interface {
	FindByToken(ctx context.Context, token string) (model.Session, error)
}

// SessionAuth validates the Bearer token and requires a live session row
// for it.  On success the user id (uint64) and the raw token are stored in
// the context; see UserID and Token.
func SessionAuth(secret string, sessions SessionLookup, log *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			uid, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			sess, err := sessions.FindByToken(c.Request().Context(), raw)
			if err != nil {
				if !errors.Is(err, sql.ErrNoRows) {
					log.WithError(err).Error("session lookup failed")
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session not found"})
			}
			// The session row is authoritative for ownership.
			if sess.UserID != uid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session not found"})
			}

			c.Set(ctxUserID, uid)
			c.Set(ctxToken, raw)
			return next(c)
		}
	}
}
