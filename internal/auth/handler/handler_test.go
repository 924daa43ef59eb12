package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-service/internal/auth"
	"token-service/internal/auth/cipher"
	"token-service/internal/auth/flow"
	"token-service/internal/auth/provider"
	"token-service/internal/auth/token"
	"token-service/internal/middleware"
	"token-service/internal/session"
	"token-service/internal/tokenstore"
)

const testServiceKey = "test-service-key"

type fakeProvider struct {
	exchangeFunc func(ctx context.Context, code string) (*provider.TokenSet, error)
	refreshFunc  func(ctx context.Context, refreshToken string, scopes []string) (*provider.TokenSet, error)
}

func (f *fakeProvider) AuthCodeURL(state string, scopes []string) string {
	return "https://login.example.com/authorize?state=" + state
}

func (f *fakeProvider) Exchange(ctx context.Context, code string) (*provider.TokenSet, error) {
	if f.exchangeFunc == nil {
		return nil, errors.New("exchange not stubbed")
	}
	return f.exchangeFunc(ctx, code)
}

func (f *fakeProvider) Refresh(ctx context.Context, refreshToken string, scopes []string) (*provider.TokenSet, error) {
	if f.refreshFunc == nil {
		return nil, errors.New("refresh not stubbed")
	}
	return f.refreshFunc(ctx, refreshToken, scopes)
}

type fixture struct {
	router   *gin.Engine
	store    *tokenstore.MemoryStore
	cipher   cipher.Cipher
	provider *fakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = 0x5a
	}
	c, err := cipher.NewSecretBox(hex.EncodeToString(raw))
	require.NoError(t, err)

	f := &fixture{
		store:    tokenstore.NewMemoryStore(),
		cipher:   c,
		provider: &fakeProvider{},
	}

	scopes := []string{"openid", "offline_access", "User.Read"}
	controller := flow.NewController(f.provider, session.NewMemoryStore(), f.store, c, scopes)
	engine := token.NewEngine(f.store, c, f.provider)
	h := NewHandler(controller, engine, f.store)

	serviceAuth := middleware.NewAuthMiddleware(testServiceKey)

	f.router = gin.New()
	h.RegisterRoutes(f.router, middleware.GinRequireAuth(serviceAuth))
	return f
}

func (f *fixture) request(t *testing.T, method, target string, withKey bool) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	if withKey {
		req.Header.Set(middleware.HeaderName, testServiceKey)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seed(t *testing.T, userID, accessToken, refreshToken string, expiresAt time.Time) {
	t.Helper()

	account, err := auth.ProviderAccount{
		SubjectID:     "aad-obj-1",
		PrincipalName: "user@contoso.com",
	}.Marshal()
	require.NoError(t, err)

	encAccess, err := f.cipher.Encrypt([]byte(accessToken))
	require.NoError(t, err)
	encRefresh, err := f.cipher.Encrypt([]byte(refreshToken))
	require.NoError(t, err)

	require.NoError(t, f.store.Upsert(context.Background(), tokenstore.Record{
		UserID:                userID,
		EncryptedAccessToken:  encAccess,
		EncryptedRefreshToken: encRefresh,
		Account:               account,
		ExpiresAt:             expiresAt,
	}))
}

func TestServiceKeyGuard(t *testing.T) {
	f := newFixture(t)

	t.Run("missing key is rejected", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/token?user_id=u1", false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("authorize and callback stay public", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/oauth/callback?code=c&state=bogus", false)
		assert.NotEqual(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetToken(t *testing.T) {
	t.Run("unknown user must connect", func(t *testing.T) {
		f := newFixture(t)

		rec := f.request(t, http.MethodGet, "/api/token?user_id=u1", true)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "auth_required", body["error"])
		assert.Contains(t, body["message"], "connect")
	})

	t.Run("cached token is returned", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "u2", "cached-access", "refresh-1", time.Now().Add(time.Hour))

		rec := f.request(t, http.MethodGet, "/api/token?user_id=u2", true)

		require.Equal(t, http.StatusOK, rec.Code)
		var payload token.Payload
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, "cached-access", payload.AccessToken)
		assert.Equal(t, "aad-obj-1", payload.SubjectID)
	})

	t.Run("rejected refresh asks for reconnect", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "u3", "stale-access", "revoked", time.Now().Add(-time.Minute))
		f.provider.refreshFunc = func(ctx context.Context, refreshToken string, scopes []string) (*provider.TokenSet, error) {
			return nil, &provider.GrantError{ProviderCode: "invalid_grant"}
		}

		rec := f.request(t, http.MethodGet, "/api/token?user_id=u3", true)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "interaction_required", body["error"])
		assert.Contains(t, body["message"], "reconnect")
	})

	t.Run("transient failure is a retryable 503", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "u4", "stale-access", "refresh-1", time.Now().Add(-time.Minute))
		f.provider.refreshFunc = func(ctx context.Context, refreshToken string, scopes []string) (*provider.TokenSet, error) {
			return nil, &provider.TransientError{Err: context.DeadlineExceeded}
		}

		rec := f.request(t, http.MethodGet, "/api/token?user_id=u4", true)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, true, body["retryable"])
	})

	t.Run("missing user_id", func(t *testing.T) {
		f := newFixture(t)
		rec := f.request(t, http.MethodGet, "/api/token", true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestStatusAndDisconnect(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u5", "cached-access", "refresh-1", time.Now().Add(time.Hour))

	rec := f.request(t, http.MethodGet, "/api/status?user_id=u5", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, true, status["connected"])

	rec = f.request(t, http.MethodDelete, "/api/token?user_id=u5", true)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/status?user_id=u5", true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, false, status["connected"])
}

func TestCallbackEndpoint(t *testing.T) {
	t.Run("provider error parameter", func(t *testing.T) {
		f := newFixture(t)
		rec := f.request(t, http.MethodGet, "/oauth/callback?error=access_denied", false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid state", func(t *testing.T) {
		f := newFixture(t)
		rec := f.request(t, http.MethodGet, "/oauth/callback?code=c&state=bogus", false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing code", func(t *testing.T) {
		f := newFixture(t)
		rec := f.request(t, http.MethodGet, "/oauth/callback?state=st", false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("authorize requires user_id", func(t *testing.T) {
		f := newFixture(t)
		rec := f.request(t, http.MethodGet, "/oauth/authorize", false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("authorize redirects to the provider", func(t *testing.T) {
		f := newFixture(t)
		rec := f.request(t, http.MethodGet, "/oauth/authorize?user_id=u6", false)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Contains(t, rec.Header().Get("Location"), "login.example.com")
	})
}
