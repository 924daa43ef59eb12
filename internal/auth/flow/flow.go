package flow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"token-service/internal/auth/cipher"
	"token-service/internal/auth/provider"
	"token-service/internal/logger"
	"token-service/internal/session"
	"token-service/internal/tokenstore"
)

var (
	// ErrConfig: the flow cannot run because client configuration is
	// incomplete.
	ErrConfig = errors.New("flow: oauth configuration incomplete")

	// ErrInvalidState: the callback state is unknown, expired, already
	// consumed, or bound to a different user.
	ErrInvalidState = errors.New("flow: invalid or expired state")
)

// ExchangeError carries the provider's machine-readable rejection of
// the authorization code.
type ExchangeError struct {
	ProviderCode    string
	ProviderMessage string
	Err             error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("flow: code exchange failed (%s): %s", e.ProviderCode, e.ProviderMessage)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Controller runs the interactive half of the credential lifecycle:
// building the authorization redirect and landing the callback. It
// writes the initial token record; it never refreshes.
type Controller struct {
	provider provider.OAuthProvider
	sessions session.Store
	store    tokenstore.Store
	cipher   cipher.Cipher

	scopes []string
}

func NewController(
	p provider.OAuthProvider,
	sessions session.Store,
	store tokenstore.Store,
	c cipher.Cipher,
	scopes []string,
) *Controller {
	return &Controller{
		provider: p,
		sessions: sessions,
		store:    store,
		cipher:   c,
		scopes:   scopes,
	}
}

// Initiate creates a single-use pending session and returns the
// provider authorization URL carrying its state.
func (c *Controller) Initiate(ctx context.Context, userID string) (string, error) {
	if c.provider == nil || len(c.scopes) == 0 {
		return "", ErrConfig
	}
	if userID == "" {
		return "", errors.New("flow: missing user id")
	}

	state, err := session.GenerateState()
	if err != nil {
		return "", err
	}

	now := time.Now()
	err = c.sessions.Create(ctx, session.Session{
		State:     state,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(session.DefaultTTL),
	})
	if err != nil {
		return "", fmt.Errorf("flow: failed to persist pending session: %w", err)
	}

	return c.provider.AuthCodeURL(state, c.scopes), nil
}

// Callback consumes the pending session, exchanges the code and writes
// the full token record in one upsert. On any failure nothing is
// persisted; replaying the same state fails at the consume step.
func (c *Controller) Callback(ctx context.Context, userID, code, state string) error {
	if code == "" || state == "" {
		return ErrInvalidState
	}

	sess, err := c.sessions.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrInvalidState
		}
		return fmt.Errorf("flow: session lookup failed: %w", err)
	}

	// On a plain browser redirect the user binding comes from the
	// session itself; a host-mediated callback passes the user id and
	// it must match. Constant-time on the comparison; the state was
	// already matched by keyed lookup.
	if userID == "" {
		userID = sess.UserID
	} else if subtle.ConstantTimeCompare([]byte(sess.UserID), []byte(userID)) != 1 {
		return ErrInvalidState
	}

	set, err := c.provider.Exchange(ctx, code)
	if err != nil {
		return c.mapExchangeError(userID, err)
	}

	if set.RefreshToken == "" {
		// Without offline_access the provider returns no refresh token
		// and there is nothing durable to keep valid.
		return &ExchangeError{
			ProviderCode:    "no_refresh_token",
			ProviderMessage: "provider response carried no refresh token",
		}
	}
	if set.Account == nil {
		return &ExchangeError{
			ProviderCode:    "no_id_token",
			ProviderMessage: "provider response carried no account identity",
		}
	}

	rec, err := c.buildRecord(userID, set)
	if err != nil {
		return err
	}

	if err := c.store.Upsert(ctx, *rec); err != nil {
		return fmt.Errorf("flow: failed to persist token record: %w", err)
	}

	logger.Info("account connected", map[string]any{
		"user_id":    userID,
		"subject_id": set.Account.SubjectID,
		"expires_at": set.ExpiresAt.UTC(),
	})

	return nil
}

func (c *Controller) buildRecord(userID string, set *provider.TokenSet) (*tokenstore.Record, error) {
	encAccess, err := c.cipher.Encrypt([]byte(set.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("flow: failed to encrypt access token: %w", err)
	}

	encRefresh, err := c.cipher.Encrypt([]byte(set.RefreshToken))
	if err != nil {
		return nil, fmt.Errorf("flow: failed to encrypt refresh token: %w", err)
	}

	accountBlob, err := set.Account.Marshal()
	if err != nil {
		return nil, fmt.Errorf("flow: failed to serialize account: %w", err)
	}

	return &tokenstore.Record{
		UserID:                userID,
		EncryptedAccessToken:  encAccess,
		EncryptedRefreshToken: encRefresh,
		Account:               accountBlob,
		ExpiresAt:             set.ExpiresAt,
		UpdatedAt:             time.Now(),
	}, nil
}

func (c *Controller) mapExchangeError(userID string, err error) error {
	var grantErr *provider.GrantError
	if errors.As(err, &grantErr) {
		logger.Warn("authorization code rejected", map[string]any{
			"user_id":       userID,
			"provider_code": grantErr.ProviderCode,
		})
		return &ExchangeError{
			ProviderCode:    grantErr.ProviderCode,
			ProviderMessage: grantErr.ProviderMessage,
			Err:             err,
		}
	}
	return &ExchangeError{
		ProviderCode:    "exchange_failed",
		ProviderMessage: err.Error(),
		Err:             err,
	}
}
