package model

import "time"

// Session binds a user to the currently valid token pair. Policy allows
// at most one live session per user; the store enforces this with a
// unique constraint on user_id.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Expired reports whether the session's refresh token is past its expiry.
// Expiry is checked lazily on use; there is no proactive sweep.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
