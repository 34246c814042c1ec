package domain

import "time"

// AccountState is the lifecycle state of a connected account.
type AccountState string

const (
	// AccountConnected means the account is healthy and syncable.
	AccountConnected AccountState = "connected"
	// AccountError means the last sync hit a terminal failure.
	AccountError AccountState = "error"
	// AccountDisconnected means the user revoked the connection.
	AccountDisconnected AccountState = "disconnected"
)

// AccountStatus captures an account's state with an optional reason.
// Stored as JSON on the account row.
type AccountStatus struct {
	State  AccountState `json:"state"`
	Reason string       `json:"reason,omitempty"`
}

// ConnectedAccount is one user's connection to a provider. Per-account
// state (credentials, sync cursor, status) lives here; connectors
// themselves are stateless.
type ConnectedAccount struct {
	// ID is the unique identifier (UUID).
	ID string

	// UserID is the owning user.
	UserID string

	// ConnectorType is the provider kind.
	ConnectorType ProviderKind

	// AccountName is the human-readable name for this connection.
	AccountName string

	// AccountIdentifier is the user's login or email at the provider.
	// Unique per (UserID, ConnectorType, AccountIdentifier).
	AccountIdentifier string

	// Credentials holds the account's tokens. Never logged directly.
	Credentials Credentials

	// Status is the account lifecycle state.
	Status AccountStatus

	// Config contains provider-specific settings (root folders,
	// repository filters, watch paths).
	Config map[string]string

	// LastSyncAt is when the last successful sync completed, nil if never.
	LastSyncAt *time.Time

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]any

	// CreatedAt is when the account was connected.
	CreatedAt time.Time

	// UpdatedAt is when the account was last updated.
	UpdatedAt time.Time
}

// IsSyncable reports whether the account can be driven through a sync.
// No-auth providers need no credentials.
func (a *ConnectedAccount) IsSyncable() bool {
	if a.Status.State != AccountConnected {
		return false
	}
	if a.ConnectorType == ProviderLocalFile || a.ConnectorType == ProviderWebURL {
		return true
	}
	return a.Credentials.IsAuthenticated()
}
