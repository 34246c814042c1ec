// Package weburl indexes individual web pages. It needs no
// authentication; the account config lists the URLs to fetch.
package weburl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
)

const (
	clientTimeout = 30 * time.Second

	// maxFetchSize caps a page body even when the server sends no
	// Content-Length.
	maxFetchSize = 10 << 20

	userAgent = "openindex/1.0"
)

// Connector fetches and indexes web pages.
type Connector struct {
	limiter *connectors.RateLimiter
	client  *http.Client
}

var (
	_ driven.Connector         = (*Connector)(nil)
	_ connectors.ContentSource = (*Connector)(nil)
)

// NewConnector creates a web-page connector.
func NewConnector() *Connector {
	return &Connector{
		limiter: connectors.NewRateLimiter(0),
		client:  &http.Client{Timeout: clientTimeout},
	}
}

// Name returns the human-readable connector name.
func (c *Connector) Name() string { return "Web Pages" }

// Kind returns the provider kind.
func (c *Connector) Kind() domain.ProviderKind { return domain.ProviderWebURL }

// ValidateConfig requires a non-empty "urls" list of absolute http(s)
// URLs.
func (c *Connector) ValidateConfig(config map[string]string) error {
	urls := splitList(config["urls"])
	if len(urls) == 0 {
		return fmt.Errorf("%w: weburl needs a urls config", domain.ErrInvalidConfiguration)
	}
	for _, raw := range urls {
		parsed, err := url.Parse(raw)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("%w: %q is not an absolute http(s) url", domain.ErrInvalidURL, raw)
		}
	}
	return nil
}

// BeginAuth always fails: web pages need no authentication.
func (c *Connector) BeginAuth(_ string) (string, string, error) {
	return "", "", fmt.Errorf("%w: weburl needs no authentication", domain.ErrUnsupportedOperation)
}

// CompleteOAuth mirrors BeginAuth.
func (c *Connector) CompleteOAuth(_ context.Context, _, _ string) (*domain.OAuthCredentials, error) {
	return nil, fmt.Errorf("%w: weburl needs no authentication", domain.ErrUnsupportedOperation)
}

// CheckConnection issues a HEAD request against the first configured
// URL.
func (c *Connector) CheckConnection(ctx context.Context, account *domain.ConnectedAccount) error {
	urls := splitList(account.Config["urls"])
	if len(urls) == 0 {
		return fmt.Errorf("%w: weburl needs a urls config", domain.ErrInvalidConfiguration)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, urls[0], nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	return connectors.CheckResponse(resp)
}

// ListDocuments returns one row per configured URL. Sizes and
// timestamps are unknown until fetch.
func (c *Connector) ListDocuments(_ context.Context, account *domain.ConnectedAccount, filters *domain.ListFilters) ([]domain.SourceDocument, error) {
	var docs []domain.SourceDocument //nolint:prealloc
	for _, raw := range splitList(account.Config["urls"]) {
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", domain.ErrInvalidURL, raw, err)
		}
		doc := domain.SourceDocument{
			SourceID:      account.ID,
			ConnectorType: domain.ProviderWebURL,
			ExternalID:    raw,
			Name:          pageName(parsed),
			Path:          parsed.Host + parsed.Path,
			ContentType:   domain.ContentTypeHTML,
			URL:           raw,
		}
		if !connectors.MatchesFilters(&doc, filters) {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// GetDocumentContent fetches one page. The external ID is the URL.
func (c *Connector) GetDocumentContent(ctx context.Context, account *domain.ConnectedAccount, externalID string) (*domain.DocumentContent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, externalID, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	c.limiter.Observe(resp)
	if err := connectors.CheckResponse(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading page body: %v", domain.ErrNetwork, err)
	}

	contentType := domain.ContentTypeFromMIME(resp.Header.Get("Content-Type"))
	if contentType == domain.ContentTypeBinary {
		contentType = domain.ContentTypeHTML
	}
	return &domain.DocumentContent{Data: data, ContentType: contentType}, nil
}

// Sync runs the shared list-fetch-chunk pipeline.
func (c *Connector) Sync(ctx context.Context, account *domain.ConnectedAccount, req domain.SyncRequest) (*domain.SyncResult, []domain.DocumentForEmbedding, error) {
	return connectors.RunSync(ctx, c, account, req)
}

// IncrementalSync relists every URL: pages carry no reliable change
// signal, so each incremental pass refetches.
func (c *Connector) IncrementalSync(ctx context.Context, account *domain.ConnectedAccount, _ time.Time) ([]domain.SourceDocument, error) {
	return c.ListDocuments(ctx, account, nil)
}

// RefreshCredentials always fails: there are no credentials.
func (c *Connector) RefreshCredentials(_ context.Context, _ *domain.ConnectedAccount) (*domain.Credentials, error) {
	return nil, fmt.Errorf("%w: weburl has no credentials", domain.ErrUnsupportedOperation)
}

// Disconnect is a no-op.
func (c *Connector) Disconnect(_ context.Context, _ *domain.ConnectedAccount) error { return nil }

// pageName derives a display name from the URL path, falling back to
// the host.
func pageName(u *url.URL) string {
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return u.Host
	}
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
