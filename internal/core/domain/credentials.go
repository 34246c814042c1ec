package domain

import "time"

// Credentials stores a connected account's authentication tokens.
//
// OAuth and PAT are mutually exclusive; no-auth providers (localfile,
// weburl) leave both nil. Serialized as JSON on the account row.
type Credentials struct {
	// OAuth holds OAuth tokens (for OAuth authentication).
	// Nil for PAT authentication.
	OAuth *OAuthCredentials `json:"oauth,omitempty"`

	// PAT holds the Personal Access Token (for token authentication).
	// Nil for OAuth authentication.
	PAT *PATCredentials `json:"pat,omitempty"`
}

// OAuthCredentials stores OAuth tokens for a specific user account.
type OAuthCredentials struct {
	// AccessToken is the bearer token for API access.
	AccessToken string `json:"access_token"`
	// RefreshToken is used to obtain new access tokens.
	RefreshToken string `json:"refresh_token,omitempty"`
	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`
	// Scope is the granted scope string, when the provider reports one.
	Scope string `json:"scope,omitempty"`
	// Expiry is when the access token expires.
	Expiry time.Time `json:"expiry,omitempty"`
}

// PATCredentials stores a Personal Access Token.
type PATCredentials struct {
	// Token is the actual personal access token.
	Token string `json:"token"`
}

// IsExpired returns true if the OAuth access token has expired.
func (c *OAuthCredentials) IsExpired() bool {
	if c.Expiry.IsZero() {
		return false
	}
	return time.Now().After(c.Expiry)
}

// IsAuthenticated returns true if the credentials contain valid tokens.
func (c *Credentials) IsAuthenticated() bool {
	if c.OAuth != nil && c.OAuth.AccessToken != "" {
		return true
	}
	if c.PAT != nil && c.PAT.Token != "" {
		return true
	}
	return false
}

// NeedsRefresh returns true if OAuth tokens need refreshing.
func (c *Credentials) NeedsRefresh() bool {
	if c.OAuth == nil {
		return false
	}
	return c.OAuth.IsExpired() && c.OAuth.RefreshToken != ""
}

// AccessToken returns the access token (either OAuth or PAT).
func (c *Credentials) AccessToken() string {
	if c.OAuth != nil && c.OAuth.AccessToken != "" {
		return c.OAuth.AccessToken
	}
	if c.PAT != nil && c.PAT.Token != "" {
		return c.PAT.Token
	}
	return ""
}

// HasRefreshToken returns true if a refresh token is available.
func (c *Credentials) HasRefreshToken() bool {
	return c.OAuth != nil && c.OAuth.RefreshToken != ""
}
