package connectors

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

// stateTTL bounds how long an issued OAuth state nonce stays valid.
const stateTTL = 10 * time.Minute

// OAuthApp drives an OAuth authorization-code flow for one provider.
// It tracks issued state nonces so the callback can be verified.
type OAuthApp struct {
	config *oauth2.Config

	mu     sync.Mutex
	states map[string]stateEntry
}

type stateEntry struct {
	redirectURI string
	issuedAt    time.Time
	extra       []oauth2.AuthCodeOption
}

// NewOAuthApp creates an OAuth helper from client settings.
func NewOAuthApp(clientID, clientSecret, authURL, tokenURL string, scopes []string) *OAuthApp {
	return &OAuthApp{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
			Scopes:       scopes,
		},
		states: make(map[string]stateEntry),
	}
}

// Configured reports whether client credentials are present.
func (a *OAuthApp) Configured() bool {
	return a.config.ClientID != "" && a.config.ClientSecret != ""
}

// BeginAuth issues a state nonce and builds the authorization URL.
// Provider-specific extras (access_type=offline and the like) are
// replayed on the token exchange where providers require it.
func (a *OAuthApp) BeginAuth(redirectURI string, extra ...oauth2.AuthCodeOption) (authURL, state string, err error) {
	if !a.Configured() {
		return "", "", fmt.Errorf("%w: oauth client credentials missing", domain.ErrInvalidConfiguration)
	}
	state, err = newStateNonce()
	if err != nil {
		return "", "", fmt.Errorf("generating state: %w", err)
	}

	a.mu.Lock()
	a.pruneLocked()
	a.states[state] = stateEntry{redirectURI: redirectURI, issuedAt: time.Now(), extra: extra}
	a.mu.Unlock()

	cfg := *a.config
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state, extra...), state, nil
}

// CompleteOAuth verifies the state nonce and exchanges the code for
// tokens. State mismatches map to authentication failure; a nonce is
// consumed on first use.
func (a *OAuthApp) CompleteOAuth(ctx context.Context, code, state string) (*domain.OAuthCredentials, error) {
	a.mu.Lock()
	entry, ok := a.states[state]
	if ok {
		delete(a.states, state)
	}
	a.mu.Unlock()

	if !ok || time.Since(entry.issuedAt) > stateTTL {
		return nil, fmt.Errorf("%w: unknown or expired oauth state", domain.ErrAuthenticationFailed)
	}

	cfg := *a.config
	cfg.RedirectURL = entry.redirectURI
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %v", domain.ErrAuthenticationFailed, err)
	}
	return tokenToCredentials(token), nil
}

// Refresh exchanges a refresh token for fresh credentials.
func (a *OAuthApp) Refresh(ctx context.Context, refreshToken string) (*domain.OAuthCredentials, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", domain.ErrInvalidCredentials)
	}
	src := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: token refresh: %v", domain.ErrAuthenticationFailed, err)
	}
	creds := tokenToCredentials(token)
	if creds.RefreshToken == "" {
		// Providers that rotate refresh tokens return a new one; the
		// rest keep the original valid.
		creds.RefreshToken = refreshToken
	}
	return creds, nil
}

// pruneLocked drops expired nonces. Callers hold a.mu.
func (a *OAuthApp) pruneLocked() {
	for state, entry := range a.states {
		if time.Since(entry.issuedAt) > stateTTL {
			delete(a.states, state)
		}
	}
}

func tokenToCredentials(token *oauth2.Token) *domain.OAuthCredentials {
	creds := &domain.OAuthCredentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		creds.Scope = scope
	}
	return creds
}

func newStateNonce() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
