package gitlab

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
)

// do issues an authenticated GET against the API. OAuth tokens travel
// as Bearer, PATs in GitLab's PRIVATE-TOKEN header.
func (c *Connector) do(ctx context.Context, account *domain.ConnectedAccount, endpoint string, query url.Values) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	full := c.baseURL + endpoint
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
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
func (c *Connector) getJSON(ctx context.Context, account *domain.ConnectedAccount, endpoint string, query url.Values, v any) error {
	resp, err := c.do(ctx, account, endpoint, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return connectors.DecodeBody(resp, v)
}

// getJSONPaged is getJSON plus GitLab's X-Next-Page paging header.
// Returns 0 when the listing is exhausted.
func (c *Connector) getJSONPaged(ctx context.Context, account *domain.ConnectedAccount, endpoint string, query url.Values, v any) (int, error) {
	resp, err := c.do(ctx, account, endpoint, query)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := connectors.DecodeBody(resp, v); err != nil {
		return 0, err
	}
	next, _ := strconv.Atoi(resp.Header.Get("X-Next-Page"))
	return next, nil
}

func setAuth(req *http.Request, creds *domain.Credentials) error {
	switch {
	case creds.OAuth != nil && creds.OAuth.AccessToken != "":
		req.Header.Set("Authorization", "Bearer "+creds.OAuth.AccessToken)
	case creds.PAT != nil && creds.PAT.Token != "":
		req.Header.Set("PRIVATE-TOKEN", creds.PAT.Token)
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
