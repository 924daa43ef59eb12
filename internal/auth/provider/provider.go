package provider

import (
	"context"
	"time"

	"token-service/internal/auth"
)

// TokenSet is the normalized result of a code exchange or refresh.
// RefreshToken may be empty on refresh when the provider does not
// rotate; callers then keep the refresh token they already hold.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Account      *auth.ProviderAccount // nil when the response carried no id_token
}

// OAuthProvider defines the contract for the delegated identity
// provider. Implementations speak the wire protocol and classify
// provider failures; they never touch storage or encryption.
type OAuthProvider interface {
	// AuthCodeURL returns the provider authorization URL embedding the
	// given CSRF state and scopes.
	AuthCodeURL(state string, scopes []string) string

	// Exchange trades an authorization code for the initial token set.
	Exchange(ctx context.Context, code string) (*TokenSet, error)

	// Refresh trades a refresh token for a fresh token set using the
	// given scopes.
	Refresh(ctx context.Context, refreshToken string, scopes []string) (*TokenSet, error)
}
