// Package dropbox connects to Dropbox through the official v2 API SDK.
// Webhook deliveries are verified but carry no document detail; a
// notification only says which accounts changed, so the caller follows
// up with an incremental sync.
package dropbox

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/users"
	"golang.org/x/oauth2"

	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
	"github.com/openindex-dev/openindex/internal/logger"
)

const (
	authorizeURL = "https://www.dropbox.com/oauth2/authorize"
	tokenURL     = "https://api.dropboxapi.com/oauth2/token"

	// maxListPages bounds list_folder/continue round trips.
	maxListPages = 100
)

// Connector syncs files from Dropbox.
type Connector struct {
	oauth        *connectors.OAuthApp
	limiter      *connectors.RateLimiter
	appSecret    string
	urlGenerator func(hostType, namespace, route string) string
}

var (
	_ driven.Connector         = (*Connector)(nil)
	_ driven.WebhookConnector  = (*Connector)(nil)
	_ connectors.ContentSource = (*Connector)(nil)
)

// Option configures the connector.
type Option func(*Connector)

// WithOAuthClient sets the Dropbox app credentials. The secret also
// signs webhook deliveries.
func WithOAuthClient(appKey, appSecret string) Option {
	return func(c *Connector) {
		c.oauth = connectors.NewOAuthApp(appKey, appSecret, authorizeURL, tokenURL, nil)
		c.appSecret = appSecret
	}
}

// WithURLGenerator reroutes API calls to a test server.
func WithURLGenerator(gen func(hostType, namespace, route string) string) Option {
	return func(c *Connector) { c.urlGenerator = gen }
}

// NewConnector creates a Dropbox connector.
func NewConnector(opts ...Option) *Connector {
	c := &Connector{
		oauth:   connectors.NewOAuthApp("", "", authorizeURL, tokenURL, nil),
		limiter: connectors.NewRateLimiter(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the human-readable connector name.
func (c *Connector) Name() string { return "Dropbox" }

// Kind returns the provider kind.
func (c *Connector) Kind() domain.ProviderKind { return domain.ProviderDropbox }

// ValidateConfig accepts an optional "folder" root path, which must be
// absolute when present.
func (c *Connector) ValidateConfig(config map[string]string) error {
	if folder := config["folder"]; folder != "" && !strings.HasPrefix(folder, "/") {
		return fmt.Errorf("%w: dropbox folder must start with /", domain.ErrInvalidConfiguration)
	}
	return nil
}

// BeginAuth starts the OAuth flow. Offline access is requested so the
// exchange returns a refresh token.
func (c *Connector) BeginAuth(redirectURI string) (string, string, error) {
	return c.oauth.BeginAuth(redirectURI, oauth2.SetAuthURLParam("token_access_type", "offline"))
}

// CompleteOAuth exchanges the authorization code for tokens.
func (c *Connector) CompleteOAuth(ctx context.Context, code, state string) (*domain.OAuthCredentials, error) {
	return c.oauth.CompleteOAuth(ctx, code, state)
}

// CheckConnection verifies the credentials with a current-account
// lookup.
func (c *Connector) CheckConnection(ctx context.Context, account *domain.ConnectedAccount) error {
	cfg, err := c.sdkConfig(account)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := users.New(cfg).GetCurrentAccount(); err != nil {
		return mapError(err)
	}
	return nil
}

// ListDocuments walks the configured folder recursively.
func (c *Connector) ListDocuments(ctx context.Context, account *domain.ConnectedAccount, filters *domain.ListFilters) ([]domain.SourceDocument, error) {
	cfg, err := c.sdkConfig(account)
	if err != nil {
		return nil, err
	}
	client := files.New(cfg)

	arg := files.NewListFolderArg(account.Config["folder"])
	arg.Recursive = true

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := client.ListFolder(arg)
	if err != nil {
		return nil, mapError(err)
	}

	var docs []domain.SourceDocument //nolint:prealloc
	collect := func(entries []files.IsMetadata) {
		for _, entry := range entries {
			doc, ok := toSourceDocument(account, entry)
			if !ok || !connectors.MatchesFilters(&doc, filters) {
				continue
			}
			docs = append(docs, doc)
		}
	}
	collect(res.Entries)

	for page := 0; res.HasMore && page < maxListPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		res, err = client.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
		if err != nil {
			return nil, mapError(err)
		}
		collect(res.Entries)
	}
	return docs, nil
}

// GetDocumentContent downloads one file by its lowercased path.
func (c *Connector) GetDocumentContent(ctx context.Context, account *domain.ConnectedAccount, externalID string) (*domain.DocumentContent, error) {
	cfg, err := c.sdkConfig(account)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	_, body, err := files.New(cfg).Download(files.NewDownloadArg(externalID))
	if err != nil {
		return nil, mapError(err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading dropbox content: %v", domain.ErrNetwork, err)
	}

	contentType, language := domain.ContentTypeFromName(externalID)
	return &domain.DocumentContent{Data: data, ContentType: contentType, Language: language}, nil
}

// Sync runs the shared list-fetch-chunk pipeline.
func (c *Connector) Sync(ctx context.Context, account *domain.ConnectedAccount, req domain.SyncRequest) (*domain.SyncResult, []domain.DocumentForEmbedding, error) {
	return connectors.RunSync(ctx, c, account, req)
}

// IncrementalSync relists and keeps entries modified after since.
// Dropbox cursors would be cheaper but are per-session; the recursive
// listing keeps the connector stateless.
func (c *Connector) IncrementalSync(ctx context.Context, account *domain.ConnectedAccount, since time.Time) ([]domain.SourceDocument, error) {
	docs, err := c.ListDocuments(ctx, account, nil)
	if err != nil {
		return nil, err
	}
	changed := docs[:0]
	for _, doc := range docs {
		if doc.ModifiedAt.After(since) {
			changed = append(changed, doc)
		}
	}
	return changed, nil
}

// RefreshCredentials refreshes the OAuth tokens.
func (c *Connector) RefreshCredentials(ctx context.Context, account *domain.ConnectedAccount) (*domain.Credentials, error) {
	if account.Credentials.OAuth == nil {
		return nil, fmt.Errorf("%w: dropbox only supports oauth", domain.ErrUnsupportedOperation)
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
	logger.Debug("dropbox disconnect for account %s, token %s", account.ID, logger.RedactToken(account.Credentials.AccessToken()))
	return nil
}

// RegisterWebhook always fails: Dropbox webhooks are configured in the
// app console, not per account over the API.
func (c *Connector) RegisterWebhook(_ context.Context, _ *domain.ConnectedAccount, _ string) (string, error) {
	return "", fmt.Errorf("%w: dropbox webhooks are configured in the app console", domain.ErrUnsupportedOperation)
}

// HandleWebhook verifies the delivery signature. Dropbox notifications
// name changed accounts only, so no document rows come back; the
// caller runs an incremental sync for the affected accounts.
func (c *Connector) HandleWebhook(_ context.Context, payload []byte, headers map[string]string) ([]domain.SourceDocument, error) {
	if c.appSecret == "" {
		return nil, fmt.Errorf("%w: webhook verification needs the app secret", domain.ErrInvalidConfiguration)
	}
	mac := hmac.New(sha256.New, []byte(c.appSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(headers["X-Dropbox-Signature"])) {
		return nil, fmt.Errorf("%w: webhook signature mismatch", domain.ErrAuthenticationFailed)
	}
	return nil, nil
}

// UnregisterWebhook mirrors RegisterWebhook.
func (c *Connector) UnregisterWebhook(_ context.Context, _ *domain.ConnectedAccount, _ string) error {
	return fmt.Errorf("%w: dropbox webhooks are configured in the app console", domain.ErrUnsupportedOperation)
}

func toSourceDocument(account *domain.ConnectedAccount, entry files.IsMetadata) (domain.SourceDocument, bool) {
	switch md := entry.(type) {
	case *files.FileMetadata:
		contentType, _ := domain.ContentTypeFromName(md.Name)
		return domain.SourceDocument{
			SourceID:      account.ID,
			ConnectorType: domain.ProviderDropbox,
			ExternalID:    md.PathLower,
			Name:          md.Name,
			Path:          strings.TrimPrefix(md.PathDisplay, "/"),
			ContentType:   contentType,
			Size:          int64(md.Size),
			ModifiedAt:    md.ServerModified,
		}, true
	case *files.FolderMetadata:
		return domain.SourceDocument{
			SourceID:      account.ID,
			ConnectorType: domain.ProviderDropbox,
			ExternalID:    md.PathLower,
			Name:          md.Name,
			Path:          strings.TrimPrefix(md.PathDisplay, "/"),
			IsFolder:      true,
		}, true
	default:
		return domain.SourceDocument{}, false
	}
}

// sdkConfig builds the SDK configuration for one account.
func (c *Connector) sdkConfig(account *domain.ConnectedAccount) (dropbox.Config, error) {
	token := account.Credentials.AccessToken()
	if token == "" {
		return dropbox.Config{}, fmt.Errorf("%w: account has no access token", domain.ErrInvalidCredentials)
	}
	cfg := dropbox.Config{Token: token}
	if c.urlGenerator != nil {
		cfg.URLGenerator = c.urlGenerator
	}
	return cfg, nil
}

// mapError converts SDK errors into the error taxonomy. The SDK wraps
// HTTP failures in typed APIErrors whose summaries carry the tag.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "invalid_access_token"), strings.Contains(msg, "expired_access_token"):
		return fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	case strings.Contains(msg, "too_many_requests"):
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	case strings.Contains(msg, "not_found"):
		return fmt.Errorf("%w: %v", domain.ErrDocumentNotFound, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
}
