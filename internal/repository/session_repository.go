package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/hotel-room-booking/internal/model"
)

// SessionRepo persists bearer-token sessions.  A token is only honoured
// while its row exists.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create stores a session row for the token.
func (r *SessionRepo) Create(ctx context.Context, userID uint64, token string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (user_id, token) VALUES (?,?)",
		userID, token)
	return err
}

// FindByToken returns the session for the token; sql.ErrNoRows when none.
func (r *SessionRepo) FindByToken(ctx context.Context, token string) (model.Session, error) {
	var s model.Session
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,token,created_at FROM sessions WHERE token=? LIMIT 1",
		token).Scan(&s.ID, &s.UserID, &s.Token, &s.CreatedAt)
	return s, err
}

// DeleteByToken ends one session.
func (r *SessionRepo) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE token=?", token)
	return err
}
