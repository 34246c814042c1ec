package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
	"github.com/openindex-dev/openindex/internal/logger"
)

const (
	authorizeURL = "https://github.com/login/oauth/authorize"
	tokenURL     = "https://github.com/login/oauth/access_token"

	// maxRepoPages bounds repository listing for accounts with no
	// explicit repos configured.
	maxRepoPages = 10

	listPerPage = 100
)

var defaultScopes = []string{"repo", "read:user"}

// Connector syncs files from GitHub repositories.
type Connector struct {
	oauth   *connectors.OAuthApp
	limiter *connectors.RateLimiter
	baseURL string
}

var (
	_ driven.Connector         = (*Connector)(nil)
	_ driven.WebhookConnector  = (*Connector)(nil)
	_ connectors.ContentSource = (*Connector)(nil)
)

// Option configures the connector.
type Option func(*Connector)

// WithOAuthClient sets the OAuth app client credentials.
func WithOAuthClient(clientID, clientSecret string) Option {
	return func(c *Connector) {
		c.oauth = connectors.NewOAuthApp(clientID, clientSecret, authorizeURL, tokenURL, defaultScopes)
	}
}

// WithBaseURL points the connector at a GitHub Enterprise or test
// endpoint instead of github.com.
func WithBaseURL(baseURL string) Option {
	return func(c *Connector) { c.baseURL = baseURL }
}

// NewConnector creates a GitHub connector.
func NewConnector(opts ...Option) *Connector {
	c := &Connector{
		oauth:   connectors.NewOAuthApp("", "", authorizeURL, tokenURL, defaultScopes),
		limiter: connectors.NewRateLimiter(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the human-readable connector name.
func (c *Connector) Name() string { return "GitHub" }

// Kind returns the provider kind.
func (c *Connector) Kind() domain.ProviderKind { return domain.ProviderGitHub }

// ValidateConfig checks the "repos" list is well formed. An empty
// config is valid and means "every repository the token can see".
func (c *Connector) ValidateConfig(config map[string]string) error {
	for _, full := range splitRepos(config["repos"]) {
		if _, _, err := splitFullName(full); err != nil {
			return err
		}
	}
	return nil
}

// BeginAuth starts the OAuth authorization-code flow.
func (c *Connector) BeginAuth(redirectURI string) (string, string, error) {
	return c.oauth.BeginAuth(redirectURI)
}

// CompleteOAuth exchanges the authorization code for tokens. GitHub
// reports bad codes as HTTP 200 with a JSON error field, which the
// exchange maps to an authentication failure.
func (c *Connector) CompleteOAuth(ctx context.Context, code, state string) (*domain.OAuthCredentials, error) {
	return c.oauth.CompleteOAuth(ctx, code, state)
}

// CheckConnection verifies the credentials with a lookup of the
// authenticated user.
func (c *Connector) CheckConnection(ctx context.Context, account *domain.ConnectedAccount) error {
	client, err := c.newClient(account)
	if err != nil {
		return err
	}
	if _, _, err := client.Users.Get(ctx, ""); err != nil {
		return mapError(err)
	}
	return nil
}

// ListDocuments walks each configured repository's tree at its default
// branch. With no repositories configured it lists everything the
// token can reach.
func (c *Connector) ListDocuments(ctx context.Context, account *domain.ConnectedAccount, filters *domain.ListFilters) ([]domain.SourceDocument, error) {
	client, err := c.newClient(account)
	if err != nil {
		return nil, err
	}
	repos, err := c.resolveRepos(ctx, client, account)
	if err != nil {
		return nil, err
	}

	var docs []domain.SourceDocument //nolint:prealloc
	for _, repo := range repos {
		entries, err := c.listRepoTree(ctx, client, account, repo, filters)
		if err != nil {
			return nil, err
		}
		docs = append(docs, entries...)
	}
	return docs, nil
}

// GetDocumentContent fetches one file's bytes. The external ID carries
// the repository and path.
func (c *Connector) GetDocumentContent(ctx context.Context, account *domain.ConnectedAccount, externalID string) (*domain.DocumentContent, error) {
	owner, repo, path, err := splitExternalID(externalID)
	if err != nil {
		return nil, err
	}
	client, err := c.newClient(account)
	if err != nil {
		return nil, err
	}

	file, _, _, err := client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, mapError(err)
	}
	if file == nil {
		return nil, fmt.Errorf("%w: %s is not a file", domain.ErrDocumentNotFound, externalID)
	}
	raw, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding content of %s: %w", externalID, err)
	}

	contentType, language := domain.ContentTypeFromName(path)
	return &domain.DocumentContent{
		Data:        []byte(raw),
		ContentType: contentType,
		Language:    language,
	}, nil
}

// Sync runs the shared list-fetch-chunk pipeline.
func (c *Connector) Sync(ctx context.Context, account *domain.ConnectedAccount, req domain.SyncRequest) (*domain.SyncResult, []domain.DocumentForEmbedding, error) {
	return connectors.RunSync(ctx, c, account, req)
}

// IncrementalSync relists repositories pushed after since. The tree API
// carries no per-file timestamps, so every file in a pushed repository
// is re-observed; the document store dedupes unchanged rows.
func (c *Connector) IncrementalSync(ctx context.Context, account *domain.ConnectedAccount, since time.Time) ([]domain.SourceDocument, error) {
	client, err := c.newClient(account)
	if err != nil {
		return nil, err
	}
	repos, err := c.resolveRepos(ctx, client, account)
	if err != nil {
		return nil, err
	}

	var docs []domain.SourceDocument //nolint:prealloc
	for _, repo := range repos {
		if repo.GetPushedAt().Time.Before(since) {
			continue
		}
		entries, err := c.listRepoTree(ctx, client, account, repo, nil)
		if err != nil {
			return nil, err
		}
		docs = append(docs, entries...)
	}
	return docs, nil
}

// RefreshCredentials refreshes OAuth tokens. Personal access tokens
// cannot be refreshed.
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

// Disconnect is a no-op: token revocation needs the OAuth app's basic
// auth, which sync deployments rarely carry. The account row's deletion
// is what severs the connection.
func (c *Connector) Disconnect(_ context.Context, account *domain.ConnectedAccount) error {
	logger.Debug("github disconnect for account %s, token %s", account.ID, logger.RedactToken(account.Credentials.AccessToken()))
	return nil
}

// RegisterWebhook subscribes the first configured repository to push
// events.
func (c *Connector) RegisterWebhook(ctx context.Context, account *domain.ConnectedAccount, callbackURL string) (string, error) {
	repos := splitRepos(account.Config["repos"])
	if len(repos) == 0 {
		return "", fmt.Errorf("%w: webhook registration needs an explicit repos config", domain.ErrInvalidConfiguration)
	}
	owner, repo, err := splitFullName(repos[0])
	if err != nil {
		return "", err
	}
	client, err := c.newClient(account)
	if err != nil {
		return "", err
	}

	hook, _, err := client.Repositories.CreateHook(ctx, owner, repo, &gh.Hook{
		Active: gh.Ptr(true),
		Events: []string{"push"},
		Config: &gh.HookConfig{
			URL:         gh.Ptr(callbackURL),
			ContentType: gh.Ptr("json"),
		},
	})
	if err != nil {
		return "", mapError(err)
	}
	return fmt.Sprintf("%s/%s:%d", owner, repo, hook.GetID()), nil
}

// HandleWebhook parses a push event into the files it touched. Removed
// files are flagged in metadata so the caller can drop them.
func (c *Connector) HandleWebhook(_ context.Context, payload []byte, headers map[string]string) ([]domain.SourceDocument, error) {
	if event := headers["X-GitHub-Event"]; event != "" && event != "push" {
		return nil, nil
	}

	var push struct {
		Repository struct {
			FullName string `json:"full_name"`
			HTMLURL  string `json:"html_url"`
		} `json:"repository"`
		Commits []struct {
			Timestamp time.Time `json:"timestamp"`
			Added     []string  `json:"added"`
			Modified  []string  `json:"modified"`
			Removed   []string  `json:"removed"`
		} `json:"commits"`
	}
	if err := json.Unmarshal(payload, &push); err != nil {
		return nil, fmt.Errorf("parsing push payload: %w", err)
	}

	seen := make(map[string]bool)
	var docs []domain.SourceDocument //nolint:prealloc
	add := func(path string, modifiedAt time.Time, deleted bool) {
		if seen[path] {
			return
		}
		seen[path] = true
		contentType, _ := domain.ContentTypeFromName(path)
		doc := domain.SourceDocument{
			ConnectorType: domain.ProviderGitHub,
			ExternalID:    push.Repository.FullName + ":" + path,
			Name:          baseName(path),
			Path:          push.Repository.FullName + "/" + path,
			ContentType:   contentType,
			URL:           push.Repository.HTMLURL + "/blob/HEAD/" + path,
			ModifiedAt:    modifiedAt,
		}
		if deleted {
			doc.Metadata = map[string]any{"deleted": true}
		}
		docs = append(docs, doc)
	}

	// Later commits win, so walk in order and let dedupe keep the first
	// mention; pushes list commits oldest first, so walk backwards.
	for i := len(push.Commits) - 1; i >= 0; i-- {
		commit := push.Commits[i]
		for _, p := range commit.Removed {
			add(p, commit.Timestamp, true)
		}
		for _, p := range commit.Modified {
			add(p, commit.Timestamp, false)
		}
		for _, p := range commit.Added {
			add(p, commit.Timestamp, false)
		}
	}
	return docs, nil
}

// UnregisterWebhook deletes a push subscription created by
// RegisterWebhook.
func (c *Connector) UnregisterWebhook(ctx context.Context, account *domain.ConnectedAccount, subscriptionID string) error {
	fullName, idStr, ok := strings.Cut(subscriptionID, ":")
	if !ok {
		return fmt.Errorf("%w: malformed subscription id %q", domain.ErrInvalidConfiguration, subscriptionID)
	}
	owner, repo, err := splitFullName(fullName)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed subscription id %q", domain.ErrInvalidConfiguration, subscriptionID)
	}
	client, err := c.newClient(account)
	if err != nil {
		return err
	}
	if _, err := client.Repositories.DeleteHook(ctx, owner, repo, id); err != nil {
		return mapError(err)
	}
	return nil
}

// resolveRepos returns the repositories to sync: the configured list,
// or everything visible to the token.
func (c *Connector) resolveRepos(ctx context.Context, client *gh.Client, account *domain.ConnectedAccount) ([]*gh.Repository, error) {
	configured := splitRepos(account.Config["repos"])
	if len(configured) > 0 {
		repos := make([]*gh.Repository, 0, len(configured))
		for _, full := range configured {
			owner, name, err := splitFullName(full)
			if err != nil {
				return nil, err
			}
			repo, _, err := client.Repositories.Get(ctx, owner, name)
			if err != nil {
				return nil, mapError(err)
			}
			repos = append(repos, repo)
		}
		return repos, nil
	}

	var repos []*gh.Repository //nolint:prealloc
	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		ListOptions: gh.ListOptions{PerPage: listPerPage},
	}
	for page := 0; page < maxRepoPages; page++ {
		batch, resp, err := client.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, mapError(err)
		}
		repos = append(repos, batch...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}

// listRepoTree lists one repository's files at its default branch.
func (c *Connector) listRepoTree(ctx context.Context, client *gh.Client, account *domain.ConnectedAccount, repo *gh.Repository, filters *domain.ListFilters) ([]domain.SourceDocument, error) {
	owner := repo.GetOwner().GetLogin()
	name := repo.GetName()
	branch := account.Config["branch"]
	if branch == "" {
		branch = repo.GetDefaultBranch()
	}

	tree, _, err := client.Git.GetTree(ctx, owner, name, branch, true)
	if err != nil {
		return nil, mapError(err)
	}
	if tree.GetTruncated() {
		logger.Warn("github tree for %s/%s truncated by the API, listing is partial", owner, name)
	}

	modifiedAt := repo.GetPushedAt().Time
	fullName := owner + "/" + name

	var docs []domain.SourceDocument //nolint:prealloc
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		path := entry.GetPath()
		contentType, _ := domain.ContentTypeFromName(path)
		doc := domain.SourceDocument{
			SourceID:      account.ID,
			ConnectorType: domain.ProviderGitHub,
			ExternalID:    fullName + ":" + path,
			Name:          baseName(path),
			Path:          fullName + "/" + path,
			ContentType:   contentType,
			Size:          int64(entry.GetSize()),
			URL:           repo.GetHTMLURL() + "/blob/" + branch + "/" + path,
			ModifiedAt:    modifiedAt,
		}
		if !connectors.MatchesFilters(&doc, filters) {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// splitRepos parses the comma-separated "repos" config value.
func splitRepos(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	repos := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			repos = append(repos, p)
		}
	}
	return repos
}

// splitFullName parses "owner/repo".
func splitFullName(full string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(full, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("%w: repository %q is not owner/repo", domain.ErrInvalidConfiguration, full)
	}
	return owner, repo, nil
}

// splitExternalID parses "owner/repo:path".
func splitExternalID(externalID string) (owner, repo, path string, err error) {
	fullName, path, ok := strings.Cut(externalID, ":")
	if !ok || path == "" {
		return "", "", "", fmt.Errorf("%w: malformed external id %q", domain.ErrDocumentNotFound, externalID)
	}
	owner, repo, err = splitFullName(fullName)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: malformed external id %q", domain.ErrDocumentNotFound, externalID)
	}
	return owner, repo, path, nil
}

func baseName(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
