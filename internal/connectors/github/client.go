package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
)

const (
	classicPATPrefix     = "ghp_"
	fineGrainedPATPrefix = "github_pat_"

	clientTimeout = 30 * time.Second
)

// authHeader builds the Authorization value for a token. Classic PATs
// keep the legacy "token" scheme; fine-grained PATs and OAuth access
// tokens use "Bearer". Sending a classic PAT as Bearer is rejected by
// some GitHub Enterprise versions.
func authHeader(token string) string {
	if strings.HasPrefix(token, classicPATPrefix) {
		return "token " + token
	}
	return "Bearer " + token
}

// authTransport injects the Authorization header and drives the rate
// limiter around every request.
type authTransport struct {
	token   string
	limiter *connectors.RateLimiter
	base    http.RoundTripper
}

var _ http.RoundTripper = (*authTransport)(nil)

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	if t.token != "" {
		clone.Header.Set("Authorization", authHeader(t.token))
	}
	resp, err := t.base.RoundTrip(clone)
	if err == nil {
		t.limiter.Observe(resp)
	}
	return resp, err
}

// newClient builds a go-github client authenticated as the account.
// baseURL overrides the API endpoint for GitHub Enterprise and tests.
func (c *Connector) newClient(account *domain.ConnectedAccount) (*gh.Client, error) {
	token := account.Credentials.AccessToken()
	if token == "" {
		return nil, fmt.Errorf("%w: account has no access token", domain.ErrInvalidCredentials)
	}
	httpClient := &http.Client{
		Timeout: clientTimeout,
		Transport: &authTransport{
			token:   token,
			limiter: c.limiter,
			base:    http.DefaultTransport,
		},
	}
	client := gh.NewClient(httpClient)
	if c.baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(c.baseURL, c.baseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: bad api base url: %v", domain.ErrInvalidConfiguration, err)
		}
	}
	return client, nil
}

// mapError converts go-github errors into the error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return domain.MapHTTPStatus(respErr.Response.StatusCode, respErr.Message)
	}
	return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
}
