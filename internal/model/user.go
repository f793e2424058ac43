package model

import "time"

// User represents an application user record as stored in the `users`
// table.  The password hash never leaves the repository and auth layers.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Session binds a bearer token to a user.  A token whose session row is
// gone is rejected even if its signature is still valid.
type Session struct {
	ID        uint64    // sessions.id
	UserID    uint64    // sessions.user_id
	Token     string    // sessions.token
	CreatedAt time.Time // sessions.created_at
}
