package middleware

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hotel-room-booking/internal/config"
	"github.com/iliyamo/hotel-room-booking/internal/logger"
	"github.com/iliyamo/hotel-room-booking/internal/model"
	"github.com/iliyamo/hotel-room-booking/internal/utils"
)

const secret = "mw-secret"

type sessionMap map[string]uint64

func (m sessionMap) FindByToken(_ context.Context, token string) (model.Session, error) {
	uid, ok := m[token]
	if !ok {
		return model.Session{}, sql.ErrNoRows
	}
	return model.Session{ID: 1, UserID: uid, Token: token}, nil
}

func serveAuth(t *testing.T, sessions SessionLookup, header string) (*httptest.ResponseRecorder, uint64, string) {
	t.Helper()
	e := echo.New()
	var gotID uint64
	var gotToken string
	e.GET("/me", func(c echo.Context) error {
		gotID, _ = UserID(c)
		gotToken = Token(c)
		return c.NoContent(http.StatusOK)
	}, SessionAuth(secret, sessions, logger.Discard()))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, gotID, gotToken
}

func TestSessionAuth(t *testing.T) {
	tok, err := utils.NewAccessToken(secret, 42, 5)
	require.NoError(t, err)
	sessions := sessionMap{tok.Token: 42}

	t.Run("valid session", func(t *testing.T) {
		rec, uid, raw := serveAuth(t, sessions, "Bearer "+tok.Token)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, uint64(42), uid)
		assert.Equal(t, tok.Token, raw)
	})

	t.Run("missing header", func(t *testing.T) {
		rec, _, _ := serveAuth(t, sessions, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec, _, _ := serveAuth(t, sessions, "Bearer not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := utils.NewAccessToken("other", 42, 5)
		require.NoError(t, err)
		rec, _, _ := serveAuth(t, sessionMap{other.Token: 42}, "Bearer "+other.Token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("signed out", func(t *testing.T) {
		rec, _, _ := serveAuth(t, sessionMap{}, "Bearer "+tok.Token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("session owned by someone else", func(t *testing.T) {
		rec, _, _ := serveAuth(t, sessionMap{tok.Token: 7}, "Bearer "+tok.Token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUserIDUnauthenticated(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, ok := UserID(c)
	assert.False(t, ok)
	assert.Equal(t, "anon", userKey(c))

	c.Set(ctxUserID, uint64(9))
	assert.Equal(t, "9", userKey(c))
}

func TestTokenBucketWithoutRedisPassesThrough(t *testing.T) {
	e := echo.New()
	e.GET("/booking", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, logger.Discard()))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/booking", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func limitedServer(t *testing.T, cfg config.RateLimitConfig) (*echo.Echo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := echo.New()
	withUser := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid, err := strconv.ParseUint(c.Request().Header.Get("X-Test-User"), 10, 64); err == nil {
				c.Set(ctxUserID, uid)
			}
			return next(c)
		}
	}
	e.GET("/booking", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		withUser, NewTokenBucket(cfg, rdb, logger.Discard()))
	return e, mr
}

func getBooking(e *echo.Echo, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/booking", nil)
	req.Header.Set("X-Test-User", user)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTokenBucketExhaustion(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            2 * time.Hour,
		KeyStrategy:    "user",
		Prefix:         "rl",
	}
	e, mr := limitedServer(t, cfg)

	rec := getBooking(e, "1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	rec = getBooking(e, "1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = getBooking(e, "1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retry, 0)
	assert.LessOrEqual(t, retry, 3600)
	assert.Contains(t, rec.Body.String(), "too_many_requests")

	// Buckets are per user.
	assert.Equal(t, http.StatusOK, getBooking(e, "2").Code)
	assert.True(t, mr.Exists("rl:user:1"))
	assert.True(t, mr.Exists("rl:user:2"))
}

func TestTokenBucketFailsOpen(t *testing.T) {
	e, mr := limitedServer(t, config.RateLimitConfig{
		Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour, Prefix: "rl",
	})
	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, getBooking(e, "1").Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPut, "/booking/3", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/booking/:bookingId")
	c.Set(ctxUserID, uint64(5))

	cases := map[string]string{
		"ip":         "rl:ip:10.0.0.1",
		"user":       "rl:user:5",
		"user_route": "rl:user:5:route:PUT /booking/:bookingId",
		"":           "rl:ip:10.0.0.1:user:5:route:PUT /booking/:bookingId",
	}
	for strategy, want := range cases {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		assert.Equal(t, want, got, strategy)
	}
}

func TestRequestLoggerAndID(t *testing.T) {
	var out bytes.Buffer
	log := logger.Discard()
	log.SetOutput(&out)

	e := echo.New()
	e.Use(RequestID(), RequestLogger(log))
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	id := rec.Header().Get(echo.HeaderXRequestID)
	assert.Len(t, id, 36)
	assert.Contains(t, out.String(), id)
	assert.Contains(t, out.String(), "/healthz")
}
