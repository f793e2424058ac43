package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-room-booking/internal/model"
	"github.com/iliyamo/hotel-room-booking/internal/utils"
)

// UserFinder looks users up by email.  sql.ErrNoRows when absent.
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
}

// SessionStore persists bearer-token sessions.
type SessionStore interface {
	Create(ctx context.Context, userID uint64, token string) error
	DeleteByToken(ctx context.Context, token string) error
}

// SignInResult is returned to a user that signed in.
type SignInResult struct {
	User    SignedInUser `json:"user"`
	Token   string       `json:"token"`
	Expires time.Time    `json:"expires"`
}

type SignedInUser struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
}

// AuthService signs users in and out.
type AuthService struct {
	users    UserFinder
	sessions SessionStore
	secret   string
	ttlMin   int
	log      *logrus.Logger
}

func NewAuthService(users UserFinder, sessions SessionStore, secret string, ttlMin int, log *logrus.Logger) *AuthService {
	return &AuthService{users: users, sessions: sessions, secret: secret, ttlMin: ttlMin, log: log}
}

// SignIn verifies the password, issues a token and records its session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return SignInResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return SignInResult{}, fmt.Errorf("load user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return SignInResult{}, ErrInvalidCredentials
	}

	access, err := utils.NewAccessToken(s.secret, u.ID, s.ttlMin)
	if err != nil {
		return SignInResult{}, fmt.Errorf("issue token: %w", err)
	}
	if err := s.sessions.Create(ctx, u.ID, access.Token); err != nil {
		return SignInResult{}, fmt.Errorf("save session: %w", err)
	}
	s.log.WithField("user_id", u.ID).Info("user signed in")
	return SignInResult{
		User:    SignedInUser{ID: u.ID, Email: u.Email},
		Token:   access.Token,
		Expires: access.Exp,
	}, nil
}

// SignOut deletes the session bound to token.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	if err := s.sessions.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
