// Package googledrive connects to Google Drive. Workspace-native
// documents (Docs, Sheets, Slides) are exported to text MIME types;
// everything else is downloaded as stored.
package googledrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
	"github.com/openindex-dev/openindex/internal/logger"
)

const (
	authorizeURL = "https://accounts.google.com/o/oauth2/auth"
	tokenURL     = "https://oauth2.googleapis.com/token"

	folderMIME = "application/vnd.google-apps.folder"

	listPageSize = 1000
	maxListPages = 50

	listFields = "nextPageToken, files(id, name, mimeType, size, modifiedTime, webViewLink, parents)"
)

var defaultScopes = []string{drive.DriveReadonlyScope}

// exportMIMEs maps Workspace-native formats to their text export type.
var exportMIMEs = map[string]string{
	"application/vnd.google-apps.document":     "text/plain",
	"application/vnd.google-apps.spreadsheet":  "text/csv",
	"application/vnd.google-apps.presentation": "text/plain",
}

// Connector syncs files from Google Drive.
type Connector struct {
	oauth    *connectors.OAuthApp
	limiter  *connectors.RateLimiter
	endpoint string
}

var (
	_ driven.Connector         = (*Connector)(nil)
	_ connectors.ContentSource = (*Connector)(nil)
)

// Option configures the connector.
type Option func(*Connector)

// WithOAuthClient sets the OAuth client credentials.
func WithOAuthClient(clientID, clientSecret string) Option {
	return func(c *Connector) {
		c.oauth = connectors.NewOAuthApp(clientID, clientSecret, authorizeURL, tokenURL, defaultScopes)
	}
}

// WithEndpoint points the Drive API at a test server.
func WithEndpoint(endpoint string) Option {
	return func(c *Connector) { c.endpoint = endpoint }
}

// NewConnector creates a Google Drive connector.
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
func (c *Connector) Name() string { return "Google Drive" }

// Kind returns the provider kind.
func (c *Connector) Kind() domain.ProviderKind { return domain.ProviderGoogleDrive }

// ValidateConfig accepts an optional "folder" root ID.
func (c *Connector) ValidateConfig(_ map[string]string) error { return nil }

// BeginAuth starts the OAuth flow. Offline access with forced consent
// is required or Google omits the refresh token on re-authorization.
func (c *Connector) BeginAuth(redirectURI string) (string, string, error) {
	return c.oauth.BeginAuth(redirectURI, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// CompleteOAuth exchanges the authorization code for tokens.
func (c *Connector) CompleteOAuth(ctx context.Context, code, state string) (*domain.OAuthCredentials, error) {
	return c.oauth.CompleteOAuth(ctx, code, state)
}

// CheckConnection verifies the credentials with an about lookup.
func (c *Connector) CheckConnection(ctx context.Context, account *domain.ConnectedAccount) error {
	svc, err := c.service(ctx, account)
	if err != nil {
		return err
	}
	if _, err := svc.About.Get().Fields("user").Context(ctx).Do(); err != nil {
		return mapError(err)
	}
	return nil
}

// ListDocuments lists non-trashed files, optionally scoped to a
// configured root folder. Drive listings are flat; folder rows are
// carried through for completeness but never fetched.
func (c *Connector) ListDocuments(ctx context.Context, account *domain.ConnectedAccount, filters *domain.ListFilters) ([]domain.SourceDocument, error) {
	return c.list(ctx, account, filters, "trashed = false")
}

// GetDocumentContent downloads or exports one file.
func (c *Connector) GetDocumentContent(ctx context.Context, account *domain.ConnectedAccount, externalID string) (*domain.DocumentContent, error) {
	svc, err := c.service(ctx, account)
	if err != nil {
		return nil, err
	}

	meta, err := svc.Files.Get(externalID).Fields("id, name, mimeType").Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}

	var resp *http.Response
	contentMIME := meta.MimeType
	if exportMIME, ok := exportMIMEs[meta.MimeType]; ok {
		resp, err = svc.Files.Export(externalID, exportMIME).Context(ctx).Download()
		contentMIME = exportMIME
	} else {
		resp, err = svc.Files.Get(externalID).Context(ctx).Download()
	}
	if err != nil {
		return nil, mapError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading drive content: %v", domain.ErrNetwork, err)
	}

	contentType := domain.ContentTypeFromMIME(contentMIME)
	language := ""
	if byName, lang := domain.ContentTypeFromName(meta.Name); byName == domain.ContentTypeCode {
		contentType, language = byName, lang
	}
	return &domain.DocumentContent{Data: data, ContentType: contentType, Language: language}, nil
}

// Sync runs the shared list-fetch-chunk pipeline.
func (c *Connector) Sync(ctx context.Context, account *domain.ConnectedAccount, req domain.SyncRequest) (*domain.SyncResult, []domain.DocumentForEmbedding, error) {
	return connectors.RunSync(ctx, c, account, req)
}

// IncrementalSync lists files modified after since.
func (c *Connector) IncrementalSync(ctx context.Context, account *domain.ConnectedAccount, since time.Time) ([]domain.SourceDocument, error) {
	query := fmt.Sprintf("trashed = false and modifiedTime > '%s'", since.UTC().Format(time.RFC3339))
	return c.list(ctx, account, nil, query)
}

// RefreshCredentials refreshes the OAuth tokens.
func (c *Connector) RefreshCredentials(ctx context.Context, account *domain.ConnectedAccount) (*domain.Credentials, error) {
	if account.Credentials.OAuth == nil {
		return nil, fmt.Errorf("%w: google drive only supports oauth", domain.ErrUnsupportedOperation)
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
	logger.Debug("google drive disconnect for account %s, token %s", account.ID, logger.RedactToken(account.Credentials.AccessToken()))
	return nil
}

func (c *Connector) list(ctx context.Context, account *domain.ConnectedAccount, filters *domain.ListFilters, query string) ([]domain.SourceDocument, error) {
	svc, err := c.service(ctx, account)
	if err != nil {
		return nil, err
	}
	if folder := account.Config["folder"]; folder != "" {
		query += fmt.Sprintf(" and '%s' in parents", folder)
	}

	var docs []domain.SourceDocument //nolint:prealloc
	pageToken := ""
	for page := 0; page < maxListPages; page++ {
		call := svc.Files.List().
			Q(query).
			PageSize(listPageSize).
			Fields(listFields).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		listing, err := call.Do()
		if err != nil {
			return nil, mapError(err)
		}

		for _, file := range listing.Files {
			doc := toSourceDocument(account, file)
			if !connectors.MatchesFilters(&doc, filters) {
				continue
			}
			docs = append(docs, doc)
		}

		pageToken = listing.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return docs, nil
}

func toSourceDocument(account *domain.ConnectedAccount, file *drive.File) domain.SourceDocument {
	modifiedAt, _ := time.Parse(time.RFC3339, file.ModifiedTime)

	contentType := domain.ContentTypeFromMIME(file.MimeType)
	if _, exportable := exportMIMEs[file.MimeType]; exportable {
		contentType = domain.ContentTypeText
	}
	if byName, _ := domain.ContentTypeFromName(file.Name); byName == domain.ContentTypeCode {
		contentType = byName
	}

	return domain.SourceDocument{
		SourceID:      account.ID,
		ConnectorType: domain.ProviderGoogleDrive,
		ExternalID:    file.Id,
		Name:          file.Name,
		Path:          file.Name,
		ContentType:   contentType,
		MIMEType:      file.MimeType,
		Size:          file.Size,
		URL:           file.WebViewLink,
		IsFolder:      file.MimeType == folderMIME,
		ModifiedAt:    modifiedAt,
	}
}

// service builds a Drive client authenticated as the account.
func (c *Connector) service(ctx context.Context, account *domain.ConnectedAccount) (*drive.Service, error) {
	token := account.Credentials.AccessToken()
	if token == "" {
		return nil, fmt.Errorf("%w: account has no access token", domain.ErrInvalidCredentials)
	}
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})),
	}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return svc, nil
}

// mapError converts googleapi errors into the error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*googleapi.Error); ok {
		return domain.MapHTTPStatus(apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
}
