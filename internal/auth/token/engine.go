package token

import (
	"context"
	"errors"
	"time"

	"token-service/internal/auth"
	"token-service/internal/auth/cipher"
	"token-service/internal/auth/provider"
	"token-service/internal/logger"
	"token-service/internal/tokenstore"

	"golang.org/x/sync/singleflight"
)

// ExpirySkew is subtracted from the stored expiry when deciding whether
// a cached access token is still usable. A token expiring inside the
// margin is refreshed rather than risking a downstream 401 mid-flight.
const ExpirySkew = 60 * time.Second

// Payload is what callers get back: a usable access token plus the
// subject identity needed to build provider-side queries.
type Payload struct {
	AccessToken   string `json:"access_token"`
	SubjectID     string `json:"subject_id"`
	PrincipalName string `json:"principal_name,omitempty"`
}

// Engine keeps per-user delegated access tokens valid. It is stateless
// across calls except through the shared Store; concurrent refreshes
// for one user are collapsed into a single provider call because the
// provider may rotate refresh tokens on every use.
type Engine struct {
	store    tokenstore.Store
	cipher   cipher.Cipher
	provider provider.OAuthProvider

	refreshGroup singleflight.Group

	now func() time.Time
}

func NewEngine(
	store tokenstore.Store,
	c cipher.Cipher,
	p provider.OAuthProvider,
) *Engine {
	return &Engine{
		store:    store,
		cipher:   c,
		provider: p,
		now:      time.Now,
	}
}

// GetValidAccessToken returns a currently valid access token for the
// user, refreshing through the provider only when the cached token is
// missing or inside the expiry margin. Every failure maps to a *Error;
// nothing panics out of this method.
func (e *Engine) GetValidAccessToken(
	ctx context.Context,
	userID string,
	scopes []string,
) (*Payload, error) {

	rec, err := e.store.Get(ctx, userID)
	if err != nil {
		return nil, e.mapStoreError(err)
	}

	if payload, ok, err := e.cachedPayload(rec); err != nil {
		return nil, err
	} else if ok {
		return payload, nil
	}

	// Expired or access token absent: refresh. Concurrent callers for
	// the same user wait on one flight and share its result instead of
	// racing a possibly single-use refresh token.
	result, err, _ := e.refreshGroup.Do(userID, func() (any, error) {
		return e.refresh(ctx, userID, scopes)
	})
	if err != nil {
		return nil, err
	}

	return result.(*Payload), nil
}

// cachedPayload returns the decrypted access token when it is safely
// inside its validity window. No network call happens on this path.
func (e *Engine) cachedPayload(rec *tokenstore.Record) (*Payload, bool, error) {
	if len(rec.EncryptedAccessToken) == 0 {
		return nil, false, nil
	}
	if !rec.ExpiresAt.After(e.now().Add(ExpirySkew)) {
		return nil, false, nil
	}

	accessToken, err := e.cipher.Decrypt(rec.EncryptedAccessToken)
	if err != nil {
		return nil, false, e.mapDecryptError(rec.UserID, err)
	}

	account, err := auth.UnmarshalAccount(rec.Account)
	if err != nil {
		return nil, false, &Error{Kind: KindRefreshFailed, Retryable: false, Err: err}
	}

	return &Payload{
		AccessToken:   string(accessToken),
		SubjectID:     account.SubjectID,
		PrincipalName: account.PrincipalName,
	}, true, nil
}

func (e *Engine) refresh(ctx context.Context, userID string, scopes []string) (*Payload, error) {

	// Re-read inside the flight: a caller that queued behind an
	// in-progress refresh may find the row already renewed.
	rec, err := e.store.Get(ctx, userID)
	if err != nil {
		return nil, e.mapStoreError(err)
	}

	if payload, ok, err := e.cachedPayload(rec); err != nil {
		return nil, err
	} else if ok {
		return payload, nil
	}

	refreshToken, err := e.cipher.Decrypt(rec.EncryptedRefreshToken)
	if err != nil {
		return nil, e.mapDecryptError(userID, err)
	}

	set, err := e.provider.Refresh(ctx, string(refreshToken), scopes)
	if err != nil {
		return nil, e.mapProviderError(userID, err)
	}

	newRec, account, err := e.buildRecord(userID, rec, set)
	if err != nil {
		return nil, err
	}

	// Persist before reporting success. If we crash after the provider
	// call but before this write, the next call performs a redundant
	// refresh, which is always safe; returning an unpersisted token is
	// not, because a rotated refresh token would be lost with it.
	if err := e.store.Upsert(ctx, *newRec); err != nil {
		return nil, e.mapStoreError(err)
	}

	logger.Info("access token refreshed", map[string]any{
		"user_id":         userID,
		"rotated_refresh": set.RefreshToken != "",
		"expires_at":      set.ExpiresAt.UTC(),
	})

	return &Payload{
		AccessToken:   set.AccessToken,
		SubjectID:     account.SubjectID,
		PrincipalName: account.PrincipalName,
	}, nil
}

// buildRecord assembles the replacement record from the refresh result.
// A provider that does not rotate returns no refresh token; the stored
// ciphertext is carried forward unchanged. Same for the account blob
// when the response had no id_token.
func (e *Engine) buildRecord(
	userID string,
	old *tokenstore.Record,
	set *provider.TokenSet,
) (*tokenstore.Record, *auth.ProviderAccount, error) {

	encAccess, err := e.cipher.Encrypt([]byte(set.AccessToken))
	if err != nil {
		return nil, nil, &Error{Kind: KindRefreshFailed, Err: err}
	}

	encRefresh := old.EncryptedRefreshToken
	if set.RefreshToken != "" {
		encRefresh, err = e.cipher.Encrypt([]byte(set.RefreshToken))
		if err != nil {
			return nil, nil, &Error{Kind: KindRefreshFailed, Err: err}
		}
	}

	accountBlob := old.Account
	account := set.Account
	if account != nil {
		accountBlob, err = account.Marshal()
		if err != nil {
			return nil, nil, &Error{Kind: KindRefreshFailed, Err: err}
		}
	} else {
		restored, err := auth.UnmarshalAccount(old.Account)
		if err != nil {
			return nil, nil, &Error{Kind: KindRefreshFailed, Err: err}
		}
		account = &restored
	}

	return &tokenstore.Record{
		UserID:                userID,
		EncryptedAccessToken:  encAccess,
		EncryptedRefreshToken: encRefresh,
		Account:               accountBlob,
		ExpiresAt:             set.ExpiresAt,
		UpdatedAt:             e.now(),
	}, account, nil
}

func (e *Engine) mapStoreError(err error) error {
	if errors.Is(err, tokenstore.ErrNotFound) {
		return &Error{Kind: KindAuthRequired, Err: err}
	}
	// Outages and unexpected store failures are retryable; they must
	// never read as "user not authenticated".
	return &Error{Kind: KindRefreshFailed, Retryable: true, Err: err}
}

func (e *Engine) mapProviderError(userID string, err error) error {
	var grantErr *provider.GrantError
	if errors.As(err, &grantErr) {
		// The record stays untouched: deleting it is an explicit,
		// user-initiated operation, and its presence lets callers tell
		// "reconnect" apart from "connect".
		logger.Warn("refresh token rejected by provider", map[string]any{
			"user_id":       userID,
			"provider_code": grantErr.ProviderCode,
		})
		return &Error{Kind: KindInteractionRequired, Err: err}
	}

	return &Error{Kind: KindRefreshFailed, Retryable: true, Err: err}
}

func (e *Engine) mapDecryptError(userID string, err error) error {
	if errors.Is(err, cipher.ErrDecrypt) {
		logger.Error("stored token ciphertext failed to decrypt", map[string]any{
			"user_id": userID,
		})
		return &Error{Kind: KindDecryption, Err: err}
	}
	return &Error{Kind: KindRefreshFailed, Err: err}
}
