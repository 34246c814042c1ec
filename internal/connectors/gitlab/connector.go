// Package gitlab connects to GitLab projects through the v4 REST API.
// OAuth access tokens authenticate with a Bearer header; personal
// access tokens use GitLab's PRIVATE-TOKEN header.
package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
	"github.com/openindex-dev/openindex/internal/logger"
)

const (
	defaultBaseURL = "https://gitlab.com"

	authorizePath = "/oauth/authorize"
	tokenPath     = "/oauth/token"

	listPerPage   = 100
	maxTreePages  = 50
	clientTimeout = 30 * time.Second
)

var defaultScopes = []string{"read_api", "read_repository"}

// Connector syncs files from GitLab projects.
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

// WithOAuthClient sets the OAuth application credentials.
func WithOAuthClient(clientID, clientSecret string) Option {
	return func(c *Connector) {
		c.oauth = connectors.NewOAuthApp(clientID, clientSecret, c.baseURL+authorizePath, c.baseURL+tokenPath, defaultScopes)
	}
}

// WithBaseURL points the connector at a self-hosted instance or test
// server.
func WithBaseURL(baseURL string) Option {
	return func(c *Connector) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
		c.oauth = connectors.NewOAuthApp("", "", c.baseURL+authorizePath, c.baseURL+tokenPath, defaultScopes)
	}
}

// NewConnector creates a GitLab connector.
func NewConnector(opts ...Option) *Connector {
	c := &Connector{
		limiter: connectors.NewRateLimiter(0),
		client:  &http.Client{Timeout: clientTimeout},
		baseURL: defaultBaseURL,
	}
	c.oauth = connectors.NewOAuthApp("", "", c.baseURL+authorizePath, c.baseURL+tokenPath, defaultScopes)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the human-readable connector name.
func (c *Connector) Name() string { return "GitLab" }

// Kind returns the provider kind.
func (c *Connector) Kind() domain.ProviderKind { return domain.ProviderGitLab }

// ValidateConfig requires a non-empty "projects" list of project paths
// or numeric IDs.
func (c *Connector) ValidateConfig(config map[string]string) error {
	projects := splitList(config["projects"])
	if len(projects) == 0 {
		return fmt.Errorf("%w: gitlab needs a projects config (paths or ids)", domain.ErrInvalidConfiguration)
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
	return c.getJSON(ctx, account, "/api/v4/user", nil, &user)
}

// ListDocuments walks each configured project's repository tree.
func (c *Connector) ListDocuments(ctx context.Context, account *domain.ConnectedAccount, filters *domain.ListFilters) ([]domain.SourceDocument, error) {
	var docs []domain.SourceDocument //nolint:prealloc
	for _, project := range splitList(account.Config["projects"]) {
		entries, err := c.listProjectTree(ctx, account, project, filters)
		if err != nil {
			return nil, err
		}
		docs = append(docs, entries...)
	}
	return docs, nil
}

// GetDocumentContent fetches one file's raw bytes. The external ID
// carries the project and path.
func (c *Connector) GetDocumentContent(ctx context.Context, account *domain.ConnectedAccount, externalID string) (*domain.DocumentContent, error) {
	project, path, ok := strings.Cut(externalID, ":")
	if !ok || path == "" {
		return nil, fmt.Errorf("%w: malformed external id %q", domain.ErrDocumentNotFound, externalID)
	}

	endpoint := fmt.Sprintf("/api/v4/projects/%s/repository/files/%s/raw",
		url.PathEscape(project), url.PathEscape(path))
	query := url.Values{}
	if ref := account.Config["branch"]; ref != "" {
		query.Set("ref", ref)
	}

	resp, err := c.do(ctx, account, endpoint, query)
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

// IncrementalSync relists projects whose last activity is after since.
func (c *Connector) IncrementalSync(ctx context.Context, account *domain.ConnectedAccount, since time.Time) ([]domain.SourceDocument, error) {
	var docs []domain.SourceDocument //nolint:prealloc
	for _, project := range splitList(account.Config["projects"]) {
		var meta struct {
			LastActivityAt time.Time `json:"last_activity_at"`
		}
		if err := c.getJSON(ctx, account, "/api/v4/projects/"+url.PathEscape(project), nil, &meta); err != nil {
			return nil, err
		}
		if meta.LastActivityAt.Before(since) {
			continue
		}
		entries, err := c.listProjectTree(ctx, account, project, nil)
		if err != nil {
			return nil, err
		}
		docs = append(docs, entries...)
	}
	return docs, nil
}

// RefreshCredentials refreshes OAuth tokens. GitLab rotates refresh
// tokens on every exchange, so the returned credentials replace both.
func (c *Connector) RefreshCredentials(ctx context.Context, account *domain.ConnectedAccount) (*domain.Credentials, error) {
	if account.Credentials.OAuth == nil {
		return nil, fmt.Errorf("%w: personal access tokens cannot be refreshed", domain.ErrUnsupportedOperation)
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
	logger.Debug("gitlab disconnect for account %s, token %s", account.ID, logger.RedactToken(account.Credentials.AccessToken()))
	return nil
}

// listProjectTree pages through one project's recursive tree listing.
func (c *Connector) listProjectTree(ctx context.Context, account *domain.ConnectedAccount, project string, filters *domain.ListFilters) ([]domain.SourceDocument, error) {
	endpoint := "/api/v4/projects/" + url.PathEscape(project) + "/repository/tree"

	var docs []domain.SourceDocument //nolint:prealloc
	for page := 1; page <= maxTreePages; page++ {
		query := url.Values{
			"recursive": {"true"},
			"per_page":  {strconv.Itoa(listPerPage)},
			"page":      {strconv.Itoa(page)},
		}
		if ref := account.Config["branch"]; ref != "" {
			query.Set("ref", ref)
		}

		var entries []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		}
		nextPage, err := c.getJSONPaged(ctx, account, endpoint, query, &entries)
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			if entry.Type != "blob" {
				continue
			}
			contentType, _ := domain.ContentTypeFromName(entry.Path)
			doc := domain.SourceDocument{
				SourceID:      account.ID,
				ConnectorType: domain.ProviderGitLab,
				ExternalID:    project + ":" + entry.Path,
				Name:          baseName(entry.Path),
				Path:          project + "/" + entry.Path,
				ContentType:   contentType,
				URL:           c.baseURL + "/" + project + "/-/blob/HEAD/" + entry.Path,
			}
			if !connectors.MatchesFilters(&doc, filters) {
				continue
			}
			docs = append(docs, doc)
		}

		if nextPage == 0 {
			break
		}
	}
	return docs, nil
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
