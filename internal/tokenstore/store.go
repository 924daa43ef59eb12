package tokenstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the user has never connected an account (or the
	// stored row is unusable because it lacks a refresh token).
	ErrNotFound = errors.New("tokenstore: record not found")

	// ErrUnavailable means the backing store could not be reached. It is
	// deliberately distinct from ErrNotFound: a store outage must never
	// be read as "user not authenticated".
	ErrUnavailable = errors.New("tokenstore: store unavailable")
)

// Record holds one user's encrypted credential set. The access token may
// be absent; the refresh token never is. A record without one is
// treated as missing by every Store implementation.
type Record struct {
	UserID                string
	EncryptedAccessToken  []byte // nil when only a refresh token is cached
	EncryptedRefreshToken []byte
	Account               []byte // serialized provider account blob, opaque
	ExpiresAt             time.Time
	UpdatedAt             time.Time
}

// Store persists one Record per user. Upsert must be atomic: a concurrent
// Get observes either the old record or the new one, never a mix.
type Store interface {
	Get(ctx context.Context, userID string) (*Record, error)
	Upsert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, userID string) error
}
