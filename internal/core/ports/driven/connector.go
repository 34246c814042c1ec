package driven

import (
	"context"
	"time"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

// Connector fetches documents from a provider. Connectors are stateless;
// all per-account state (credentials, cursors, status) travels in the
// ConnectedAccount argument.
type Connector interface {
	// Name returns the human-readable connector name.
	Name() string

	// Kind returns the provider kind identifier.
	Kind() domain.ProviderKind

	// ValidateConfig checks provider-specific configuration before an
	// account is created. Returns ErrInvalidConfiguration on failure.
	ValidateConfig(config map[string]string) error

	// BeginAuth starts an OAuth authorization-code flow. Returns the
	// authorization URL (carrying a state nonce) and the state value the
	// caller must verify on callback. Token-based and no-auth providers
	// return ErrUnsupportedOperation.
	BeginAuth(redirectURI string) (authURL, state string, err error)

	// CompleteOAuth exchanges an authorization code for tokens.
	// Provider errors, including HTTP 200 responses carrying a JSON
	// error field, map to ErrAuthenticationFailed.
	CompleteOAuth(ctx context.Context, code, state string) (*domain.OAuthCredentials, error)

	// CheckConnection makes a lightweight provider call to verify the
	// account's credentials still work.
	CheckConnection(ctx context.Context, account *domain.ConnectedAccount) error

	// ListDocuments returns document metadata rows. The connector
	// recurses into folders and follows provider paging itself.
	ListDocuments(ctx context.Context, account *domain.ConnectedAccount, filters *domain.ListFilters) ([]domain.SourceDocument, error)

	// GetDocumentContent fetches one document's bytes. Workspace-format
	// documents are exported to a text MIME type first.
	GetDocumentContent(ctx context.Context, account *domain.ConnectedAccount, externalID string) (*domain.DocumentContent, error)

	// Sync lists, fetches, and chunks every text-bearing non-folder
	// document under the size cap. Per-document failures land in the
	// result's error list without aborting the run.
	Sync(ctx context.Context, account *domain.ConnectedAccount, req domain.SyncRequest) (*domain.SyncResult, []domain.DocumentForEmbedding, error)

	// IncrementalSync returns metadata for documents modified after
	// since.
	IncrementalSync(ctx context.Context, account *domain.ConnectedAccount, since time.Time) ([]domain.SourceDocument, error)

	// RefreshCredentials exchanges a refresh token for new credentials.
	// Providers without refreshable tokens return ErrUnsupportedOperation.
	RefreshCredentials(ctx context.Context, account *domain.ConnectedAccount) (*domain.Credentials, error)

	// Disconnect revokes provider-side state for the account where the
	// provider supports it. Best effort.
	Disconnect(ctx context.Context, account *domain.ConnectedAccount) error
}

// WebhookConnector is implemented by connectors whose provider can push
// change notifications. Subscription identifiers are opaque provider
// strings.
type WebhookConnector interface {
	Connector

	// RegisterWebhook subscribes callbackURL to provider change events
	// and returns the provider's subscription identifier.
	RegisterWebhook(ctx context.Context, account *domain.ConnectedAccount, callbackURL string) (string, error)

	// HandleWebhook parses a provider notification into the affected
	// document rows.
	HandleWebhook(ctx context.Context, payload []byte, headers map[string]string) ([]domain.SourceDocument, error)

	// UnregisterWebhook removes a subscription.
	UnregisterWebhook(ctx context.Context, account *domain.ConnectedAccount, subscriptionID string) error
}
