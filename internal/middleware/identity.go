package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user's id stored by SessionAuth.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	return id, ok && id > 0
}

// Token returns the bearer token of the current session.
func Token(c echo.Context) string {
	s, _ := c.Get(ctxToken).(string)
	return s
}

// userKey is the user id as used in Redis keys; "anon" before auth.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
