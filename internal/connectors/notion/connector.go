// Package notion connects to Notion workspaces. Pages are discovered
// through the search API and rendered to plain text by flattening
// their block trees.
package notion

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"golang.org/x/oauth2"

	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
	"github.com/openindex-dev/openindex/internal/logger"
)

const (
	authorizeURL = "https://api.notion.com/v1/oauth/authorize"
	tokenURL     = "https://api.notion.com/v1/oauth/token"

	searchPageSize = 100
	maxSearchPages = 50

	// maxBlockDepth caps recursion into nested block children.
	maxBlockDepth = 4
)

// Connector syncs pages from a Notion workspace.
type Connector struct {
	oauth      *connectors.OAuthApp
	limiter    *connectors.RateLimiter
	httpClient *http.Client
}

var (
	_ driven.Connector         = (*Connector)(nil)
	_ connectors.ContentSource = (*Connector)(nil)
)

// Option configures the connector.
type Option func(*Connector)

// WithOAuthClient sets the Notion integration credentials.
func WithOAuthClient(clientID, clientSecret string) Option {
	return func(c *Connector) {
		c.oauth = connectors.NewOAuthApp(clientID, clientSecret, authorizeURL, tokenURL, nil)
	}
}

// WithHTTPClient overrides the transport, used by tests to reroute API
// calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) { c.httpClient = client }
}

// NewConnector creates a Notion connector.
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
func (c *Connector) Name() string { return "Notion" }

// Kind returns the provider kind.
func (c *Connector) Kind() domain.ProviderKind { return domain.ProviderNotion }

// ValidateConfig accepts an empty config; the integration's share
// settings scope what search can see.
func (c *Connector) ValidateConfig(_ map[string]string) error { return nil }

// BeginAuth starts the OAuth flow as a user-owned integration.
func (c *Connector) BeginAuth(redirectURI string) (string, string, error) {
	return c.oauth.BeginAuth(redirectURI, oauth2.SetAuthURLParam("owner", "user"))
}

// CompleteOAuth exchanges the authorization code for tokens.
func (c *Connector) CompleteOAuth(ctx context.Context, code, state string) (*domain.OAuthCredentials, error) {
	return c.oauth.CompleteOAuth(ctx, code, state)
}

// CheckConnection verifies the credentials with a bot-user lookup.
func (c *Connector) CheckConnection(ctx context.Context, account *domain.ConnectedAccount) error {
	client, err := c.client(account)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := client.User.Me(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// ListDocuments searches for every page the integration can see.
func (c *Connector) ListDocuments(ctx context.Context, account *domain.ConnectedAccount, filters *domain.ListFilters) ([]domain.SourceDocument, error) {
	client, err := c.client(account)
	if err != nil {
		return nil, err
	}

	var docs []domain.SourceDocument //nolint:prealloc
	cursor := notionapi.Cursor("")
	for page := 0; page < maxSearchPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := client.Search.Do(ctx, &notionapi.SearchRequest{
			Filter:      notionapi.SearchFilter{Property: "object", Value: "page"},
			StartCursor: cursor,
			PageSize:    searchPageSize,
		})
		if err != nil {
			return nil, mapError(err)
		}

		for _, obj := range resp.Results {
			p, ok := obj.(*notionapi.Page)
			if !ok {
				continue
			}
			doc := toSourceDocument(account, p)
			if !connectors.MatchesFilters(&doc, filters) {
				continue
			}
			docs = append(docs, doc)
		}

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return docs, nil
}

// GetDocumentContent renders one page's block tree to plain text.
func (c *Connector) GetDocumentContent(ctx context.Context, account *domain.ConnectedAccount, externalID string) (*domain.DocumentContent, error) {
	client, err := c.client(account)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	if err := c.renderChildren(ctx, client, notionapi.BlockID(externalID), &sb, 0); err != nil {
		return nil, err
	}
	return &domain.DocumentContent{
		Data:        []byte(sb.String()),
		ContentType: domain.ContentTypeText,
	}, nil
}

// Sync runs the shared list-fetch-chunk pipeline.
func (c *Connector) Sync(ctx context.Context, account *domain.ConnectedAccount, req domain.SyncRequest) (*domain.SyncResult, []domain.DocumentForEmbedding, error) {
	return connectors.RunSync(ctx, c, account, req)
}

// IncrementalSync lists pages edited after since. The search API has
// no time filter, so the cut is applied client-side.
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

// RefreshCredentials always fails: Notion access tokens do not expire
// and the API issues no refresh tokens.
func (c *Connector) RefreshCredentials(_ context.Context, _ *domain.ConnectedAccount) (*domain.Credentials, error) {
	return nil, fmt.Errorf("%w: notion tokens do not expire", domain.ErrUnsupportedOperation)
}

// Disconnect is best effort; deleting the account severs the
// connection.
func (c *Connector) Disconnect(_ context.Context, account *domain.ConnectedAccount) error {
	logger.Debug("notion disconnect for account %s, token %s", account.ID, logger.RedactToken(account.Credentials.AccessToken()))
	return nil
}

// renderChildren fetches a block's children and renders them as text
// lines, recursing into nested blocks up to maxBlockDepth.
func (c *Connector) renderChildren(ctx context.Context, client *notionapi.Client, id notionapi.BlockID, sb *strings.Builder, depth int) error {
	if depth > maxBlockDepth {
		return nil
	}

	cursor := notionapi.Cursor("")
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		pagination := &notionapi.Pagination{PageSize: searchPageSize}
		if cursor != "" {
			pagination.StartCursor = cursor
		}
		resp, err := client.Block.GetChildren(ctx, id, pagination)
		if err != nil {
			return mapError(err)
		}

		for _, block := range resp.Results {
			line := blockText(block)
			if line != "" {
				sb.WriteString(line)
				sb.WriteString("\n")
			}
			if block.GetHasChildren() && block.GetType() != notionapi.BlockTypeChildPage {
				if err := c.renderChildren(ctx, client, block.GetID(), sb, depth+1); err != nil {
					return err
				}
			}
		}

		if !resp.HasMore {
			return nil
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}
}

// blockText flattens one block to a text line. Unsupported block types
// render as nothing rather than failing the page.
func blockText(block notionapi.Block) string {
	switch b := block.(type) {
	case *notionapi.ParagraphBlock:
		return richText(b.Paragraph.RichText)
	case *notionapi.Heading1Block:
		return richText(b.Heading1.RichText)
	case *notionapi.Heading2Block:
		return richText(b.Heading2.RichText)
	case *notionapi.Heading3Block:
		return richText(b.Heading3.RichText)
	case *notionapi.BulletedListItemBlock:
		return "- " + richText(b.BulletedListItem.RichText)
	case *notionapi.NumberedListItemBlock:
		return "- " + richText(b.NumberedListItem.RichText)
	case *notionapi.ToDoBlock:
		return "- " + richText(b.ToDo.RichText)
	case *notionapi.QuoteBlock:
		return "> " + richText(b.Quote.RichText)
	case *notionapi.CalloutBlock:
		return richText(b.Callout.RichText)
	case *notionapi.CodeBlock:
		return richText(b.Code.RichText)
	default:
		return ""
	}
}

func richText(parts []notionapi.RichText) string {
	var sb strings.Builder
	for _, part := range parts {
		sb.WriteString(part.PlainText)
	}
	return strings.TrimSpace(sb.String())
}

func toSourceDocument(account *domain.ConnectedAccount, page *notionapi.Page) domain.SourceDocument {
	return domain.SourceDocument{
		SourceID:      account.ID,
		ConnectorType: domain.ProviderNotion,
		ExternalID:    string(page.ID),
		Name:          pageTitle(page),
		Path:          pageTitle(page),
		ContentType:   domain.ContentTypeText,
		URL:           page.URL,
		ModifiedAt:    page.LastEditedTime,
	}
}

// pageTitle scans the page properties for its title.
func pageTitle(page *notionapi.Page) string {
	for _, prop := range page.Properties {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			if title := richText(tp.Title); title != "" {
				return title
			}
		}
	}
	return "Untitled"
}

// client builds a Notion API client authenticated as the account.
func (c *Connector) client(account *domain.ConnectedAccount) (*notionapi.Client, error) {
	token := account.Credentials.AccessToken()
	if token == "" {
		return nil, fmt.Errorf("%w: account has no access token", domain.ErrInvalidCredentials)
	}
	opts := []notionapi.ClientOption{}
	if c.httpClient != nil {
		opts = append(opts, notionapi.WithHTTPClient(c.httpClient))
	}
	return notionapi.NewClient(notionapi.Token(token), opts...), nil
}

// mapError converts Notion API errors into the error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*notionapi.Error); ok {
		return domain.MapHTTPStatus(apiErr.Status, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
}
