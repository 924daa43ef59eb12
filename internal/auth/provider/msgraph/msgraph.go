package msgraph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"token-service/internal/auth"
	"token-service/internal/auth/provider"
	"token-service/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// DefaultHTTPTimeout bounds every call to the token endpoint. A timed
// out refresh is reported as transient, never as interaction required.
const DefaultHTTPTimeout = 30 * time.Second

// Provider implements delegated OAuth2 against the Microsoft identity
// platform (v2.0 endpoints) for Microsoft Graph scopes.
type Provider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	httpClient  *http.Client
}

// New initializes the provider using OIDC discovery on the authority,
// e.g. https://login.microsoftonline.com/<tenant>/v2.0
func New(
	ctx context.Context,
	authority string,
	clientID string,
	clientSecret string,
	redirectURL string,
	scopes []string,
) (*Provider, error) {

	if authority == "" || clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("msgraph oauth config missing required fields")
	}
	if len(scopes) == 0 {
		return nil, errors.New("msgraph oauth config missing scopes")
	}

	oidcProvider, err := oidc.NewProvider(ctx, authority)
	if err != nil {
		return nil, fmt.Errorf("failed to init msgraph oidc provider: %w", err)
	}

	verifier := oidcProvider.Verifier(&oidc.Config{
		ClientID: clientID,
	})

	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     oidcProvider.Endpoint(),
		Scopes:       scopes,
	}

	return &Provider{
		oauthConfig: oauthCfg,
		verifier:    verifier,
		httpClient:  &http.Client{Timeout: DefaultHTTPTimeout},
	}, nil
}

// AuthCodeURL builds the provider authorization URL. offline_access must
// be in scopes or the provider will not issue a refresh token.
func (p *Provider) AuthCodeURL(state string, scopes []string) string {
	cfg := p.configWithScopes(scopes)
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (p *Provider) Exchange(ctx context.Context, code string) (*provider.TokenSet, error) {
	ctx = p.clientContext(ctx)

	token, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, provider.ClassifyTokenError(err)
	}

	return p.tokenSet(ctx, token)
}

func (p *Provider) Refresh(
	ctx context.Context,
	refreshToken string,
	scopes []string,
) (*provider.TokenSet, error) {

	ctx = p.clientContext(ctx)
	cfg := p.configWithScopes(scopes)

	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	token, err := src.Token()
	if err != nil {
		return nil, provider.ClassifyTokenError(err)
	}

	return p.tokenSet(ctx, token)
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *Provider) configWithScopes(scopes []string) *oauth2.Config {
	if len(scopes) == 0 {
		return p.oauthConfig
	}
	cfg := *p.oauthConfig
	cfg.Scopes = scopes
	return &cfg
}

// tokenSet normalizes an oauth2 token. When the response carries an
// id_token the account is rebuilt from its claims; refresh responses
// without one leave Account nil and the caller keeps the stored blob.
func (p *Provider) tokenSet(ctx context.Context, token *oauth2.Token) (*provider.TokenSet, error) {
	set := &provider.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return set, nil
	}

	account, err := p.accountFromIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}

	set.Account = account
	return set, nil
}

func (p *Provider) accountFromIDToken(ctx context.Context, rawIDToken string) (*auth.ProviderAccount, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("msgraph id_token verification failed: %w", err)
	}

	var claims struct {
		Subject           string `json:"sub"`
		ObjectID          string `json:"oid"`
		TenantID          string `json:"tid"`
		PreferredUsername string `json:"preferred_username"`
		UPN               string `json:"upn"`
	}

	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("msgraph id_token claims parse failed: %w", err)
	}

	// oid is the stable AAD object id; sub is only pairwise-stable per
	// client. Prefer oid when present.
	subjectID := claims.ObjectID
	if subjectID == "" {
		subjectID = claims.Subject
	}
	if subjectID == "" {
		return nil, errors.New("msgraph id_token missing subject claims")
	}

	principal := claims.PreferredUsername
	if principal == "" {
		principal = claims.UPN
	}

	homeAccountID := subjectID
	if claims.TenantID != "" {
		homeAccountID = subjectID + "." + claims.TenantID
	}

	logger.Info("msgraph id_token verified", map[string]any{
		"issuer":            idToken.Issuer,
		"subject_present":   subjectID != "",
		"principal_present": principal != "",
		"tenant_present":    claims.TenantID != "",
		"expiry_unix":       idToken.Expiry.Unix(),
	})

	return &auth.ProviderAccount{
		SubjectID:     subjectID,
		PrincipalName: principal,
		TenantID:      claims.TenantID,
		HomeAccountID: homeAccountID,
	}, nil
}
