// Package bitbucket connects to Bitbucket Cloud repositories through
// the 2.0 REST API. OAuth access tokens authenticate with Bearer; app
// passwords (stored as "username:app_password") use Basic auth.
package bitbucket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
	"github.com/openindex-dev/openindex/internal/logger"
)

const (
	defaultBaseURL = "https://api.bitbucket.org"

	authorizeURL = "https://bitbucket.org/site/oauth2/authorize"
	tokenURL     = "https://bitbucket.org/site/oauth2/access_token"

	// maxListPages bounds the paged src walk per repository.
	maxListPages = 100

	clientTimeout = 30 * time.Second
)

var defaultScopes = []string{"repository", "account"}

// Connector syncs files from Bitbucket repositories.
type Connector struct {
	oauth   *connectors.OAuthApp
	limiter *connectors.RateLimiter
	client  *http.Client
	baseURL string
}

var (
	_ driven.Connector         = (*Connector)(nil)
	_ connectors.ContentSource = (*Connector)(nil)
)

// Option configures the connector.
type Option func(*Connector)

// WithOAuthClient sets the OAuth consumer credentials. Bitbucket's
// token endpoint authenticates the consumer with HTTP Basic auth,
// which the exchange applies automatically.
func WithOAuthClient(clientID, clientSecret string) Option {
	return func(c *Connector) {
		c.oauth = connectors.NewOAuthApp(clientID, clientSecret, authorizeURL, tokenURL, defaultScopes)
	}
}

// WithBaseURL points the connector at a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Connector) { c.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// NewConnector creates a Bitbucket connector.
func NewConnector(opts ...Option) *Connector {
	c := &Connector{
		oauth:   connectors.NewOAuthApp("", "", authorizeURL, tokenURL, defaultScopes),
		limiter: connectors.NewRateLimiter(0),
		client:  &http.Client{Timeout: clientTimeout},
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the human-readable connector name.
func (c *Connector) Name() string { return "Bitbucket" }

// Kind returns the provider kind.
func (c *Connector) Kind() domain.ProviderKind { return domain.ProviderBitbucket }

// ValidateConfig requires a non-empty "repos" list of workspace/repo
// pairs.
func (c *Connector) ValidateConfig(config map[string]string) error {
	repos := splitList(config["repos"])
	if len(repos) == 0 {
		return fmt.Errorf("%w: bitbucket needs a repos config (workspace/repo)", domain.ErrInvalidConfiguration)
	}
	for _, full := range repos {
		ws, repo, ok := strings.Cut(full, "/")
		if !ok || ws == "" || repo == "" || strings.Contains(repo, "/") {
			return fmt.Errorf("%w: repository %q is not workspace/repo", domain.ErrInvalidConfiguration, full)
		}
	}
	return nil
}

// BeginAuth starts the OAuth authorization-code flow.
func (c *Connector) BeginAuth(redirectURI string) (string, string, error) {
	return c.oauth.BeginAuth(redirectURI)
}

// CompleteOAuth exchanges the authorization code for tokens.
func (c *Connector) CompleteOAuth(ctx context.Context, code, state string) (*domain.OAuthCredentials, error) {
	return c.oauth.CompleteOAuth(ctx, code, state)
}

// CheckConnection verifies the credentials against the current-user
// endpoint.
func (c *Connector) CheckConnection(ctx context.Context, account *domain.ConnectedAccount) error {
	var user struct {
		Username string `json:"username"`
	}
	return c.getJSON(ctx, account, "/2.0/user", &user)
}

// ListDocuments walks each configured repository's source listing at
// its main branch.
func (c *Connector) ListDocuments(ctx context.Context, account *domain.ConnectedAccount, filters *domain.ListFilters) ([]domain.SourceDocument, error) {
	var docs []domain.SourceDocument //nolint:prealloc
	for _, full := range splitList(account.Config["repos"]) {
		entries, err := c.listRepoFiles(ctx, account, full, filters)
		if err != nil {
			return nil, err
		}
		docs = append(docs, entries...)
	}
	return docs, nil
}

// GetDocumentContent fetches one file's raw bytes. The external ID
// carries "workspace/repo@ref:path".
func (c *Connector) GetDocumentContent(ctx context.Context, account *domain.ConnectedAccount, externalID string) (*domain.DocumentContent, error) {
	full, ref, path, err := splitExternalID(externalID)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, account, fmt.Sprintf("/2.0/repositories/%s/src/%s/%s", full, ref, escapePath(path)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := connectors.CheckResponse(resp); err != nil {
		return nil, err
	}
	data, err := readAll(resp)
	if err != nil {
		return nil, err
	}

	contentType, language := domain.ContentTypeFromName(path)
	return &domain.DocumentContent{Data: data, ContentType: contentType, Language: language}, nil
}

// Sync runs the shared list-fetch-chunk pipeline.
func (c *Connector) Sync(ctx context.Context, account *domain.ConnectedAccount, req domain.SyncRequest) (*domain.SyncResult, []domain.DocumentForEmbedding, error) {
	return connectors.RunSync(ctx, c, account, req)
}

// IncrementalSync relists repositories updated after since.
func (c *Connector) IncrementalSync(ctx context.Context, account *domain.ConnectedAccount, since time.Time) ([]domain.SourceDocument, error) {
	var docs []domain.SourceDocument //nolint:prealloc
	for _, full := range splitList(account.Config["repos"]) {
		var meta struct {
			UpdatedOn time.Time `json:"updated_on"`
		}
		if err := c.getJSON(ctx, account, "/2.0/repositories/"+full, &meta); err != nil {
			return nil, err
		}
		if meta.UpdatedOn.Before(since) {
			continue
		}
		entries, err := c.listRepoFiles(ctx, account, full, nil)
		if err != nil {
			return nil, err
		}
		docs = append(docs, entries...)
	}
	return docs, nil
}

// RefreshCredentials refreshes OAuth tokens. Bitbucket access tokens
// expire after two hours, so refreshing is routine.
func (c *Connector) RefreshCredentials(ctx context.Context, account *domain.ConnectedAccount) (*domain.Credentials, error) {
	if account.Credentials.OAuth == nil {
		return nil, fmt.Errorf("%w: app passwords cannot be refreshed", domain.ErrUnsupportedOperation)
	}
	creds, err := c.oauth.Refresh(ctx, account.Credentials.OAuth.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &domain.Credentials{OAuth: creds}, nil
}

// Disconnect is best effort; deleting the account severs the
// connection.
func (c *Connector) Disconnect(_ context.Context, account *domain.ConnectedAccount) error {
	logger.Debug("bitbucket disconnect for account %s, token %s", account.ID, logger.RedactToken(account.Credentials.AccessToken()))
	return nil
}

// listRepoFiles pages through one repository's recursive src listing.
func (c *Connector) listRepoFiles(ctx context.Context, account *domain.ConnectedAccount, full string, filters *domain.ListFilters) ([]domain.SourceDocument, error) {
	ref := account.Config["branch"]
	if ref == "" {
		var meta struct {
			MainBranch struct {
				Name string `json:"name"`
			} `json:"mainbranch"`
		}
		if err := c.getJSON(ctx, account, "/2.0/repositories/"+full, &meta); err != nil {
			return nil, err
		}
		ref = meta.MainBranch.Name
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: repository %s has no main branch", domain.ErrRepositoryNotFound, full)
	}

	endpoint := fmt.Sprintf("/2.0/repositories/%s/src/%s/?max_depth=64&pagelen=100", full, ref)

	var docs []domain.SourceDocument //nolint:prealloc
	for page := 0; endpoint != "" && page < maxListPages; page++ {
		var listing struct {
			Values []struct {
				Path string `json:"path"`
				Type string `json:"type"`
				Size int64  `json:"size"`
			} `json:"values"`
			Next string `json:"next"`
		}
		if err := c.getJSON(ctx, account, endpoint, &listing); err != nil {
			return nil, err
		}

		for _, entry := range listing.Values {
			if entry.Type != "commit_file" {
				continue
			}
			contentType, _ := domain.ContentTypeFromName(entry.Path)
			doc := domain.SourceDocument{
				SourceID:      account.ID,
				ConnectorType: domain.ProviderBitbucket,
				ExternalID:    full + "@" + ref + ":" + entry.Path,
				Name:          baseName(entry.Path),
				Path:          full + "/" + entry.Path,
				ContentType:   contentType,
				Size:          entry.Size,
				URL:           "https://bitbucket.org/" + full + "/src/" + ref + "/" + entry.Path,
			}
			if !connectors.MatchesFilters(&doc, filters) {
				continue
			}
			docs = append(docs, doc)
		}

		endpoint = strings.TrimPrefix(listing.Next, c.baseURL)
		if endpoint == listing.Next && listing.Next != "" {
			// Absolute next URL on a different host; follow as-is is
			// unsafe, stop instead.
			logger.Warn("bitbucket paging returned foreign next url for %s, stopping", full)
			endpoint = ""
		}
	}
	return docs, nil
}

// splitExternalID parses "workspace/repo@ref:path".
func splitExternalID(externalID string) (full, ref, path string, err error) {
	head, path, ok := strings.Cut(externalID, ":")
	if !ok || path == "" {
		return "", "", "", fmt.Errorf("%w: malformed external id %q", domain.ErrDocumentNotFound, externalID)
	}
	full, ref, ok = strings.Cut(head, "@")
	if !ok || full == "" || ref == "" {
		return "", "", "", fmt.Errorf("%w: malformed external id %q", domain.ErrDocumentNotFound, externalID)
	}
	return full, ref, path, nil
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
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

func baseName(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
