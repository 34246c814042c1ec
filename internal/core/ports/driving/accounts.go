package driving

import (
	"context"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

// AccountService manages connected accounts for external actors.
type AccountService interface {
	// Connect creates an account with token credentials after validating
	// them against the provider.
	Connect(ctx context.Context, userID string, kind domain.ProviderKind, name string, config map[string]string, creds domain.Credentials) (*domain.ConnectedAccount, error)

	// BeginOAuth starts an OAuth flow for a provider and returns the
	// authorization URL and state nonce.
	BeginOAuth(kind domain.ProviderKind, redirectURI string) (authURL, state string, err error)

	// CompleteOAuth finishes an OAuth flow and creates the account.
	CompleteOAuth(ctx context.Context, userID string, kind domain.ProviderKind, name, code, state string) (*domain.ConnectedAccount, error)

	// List returns a user's accounts.
	List(ctx context.Context, userID string) ([]domain.ConnectedAccount, error)

	// Refresh renews the account's credentials via its refresh token.
	Refresh(ctx context.Context, accountID string) error

	// Disconnect revokes and removes an account.
	Disconnect(ctx context.Context, accountID string) error
}
