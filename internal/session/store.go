package session

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL bounds how long an authorization redirect may stay pending.
const DefaultTTL = 10 * time.Minute

// ErrNotFound means the state was never issued, already consumed, or
// expired. Callers treat all three the same way.
var ErrNotFound = errors.New("session: state not found")

// Session is the transient CSRF record backing one authorization
// redirect. It is keyed by State and consumed exactly once.
type Session struct {
	State     string    `json:"state"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists pending authorization sessions. Consume must be atomic
// single-use: two concurrent Consume calls for the same state succeed at
// most once.
type Store interface {
	Create(ctx context.Context, s Session) error
	Consume(ctx context.Context, state string) (*Session, error)
}
