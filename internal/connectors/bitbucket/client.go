package bitbucket

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
)

// do issues an authenticated GET. OAuth tokens travel as Bearer; app
// passwords, stored as "username:app_password", as Basic auth.
func (c *Connector) do(ctx context.Context, account *domain.ConnectedAccount, endpoint string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, err
	}
	if err := setAuth(req, &account.Credentials); err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	c.limiter.Observe(resp)
	return resp, nil
}

// getJSON issues a GET and decodes the JSON body into v.
func (c *Connector) getJSON(ctx context.Context, account *domain.ConnectedAccount, endpoint string, v any) error {
	resp, err := c.do(ctx, account, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return connectors.DecodeBody(resp, v)
}

func setAuth(req *http.Request, creds *domain.Credentials) error {
	switch {
	case creds.OAuth != nil && creds.OAuth.AccessToken != "":
		req.Header.Set("Authorization", "Bearer "+creds.OAuth.AccessToken)
	case creds.PAT != nil && creds.PAT.Token != "":
		user, pass, ok := strings.Cut(creds.PAT.Token, ":")
		if !ok || user == "" || pass == "" {
			return fmt.Errorf("%w: bitbucket app password must be username:app_password", domain.ErrInvalidCredentials)
		}
		req.SetBasicAuth(user, pass)
	default:
		return fmt.Errorf("%w: account has no access token", domain.ErrInvalidCredentials)
	}
	return nil
}

func readAll(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", domain.ErrNetwork, err)
	}
	return data, nil
}
