package driving

import (
	"context"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

// SyncOrchestrator coordinates document synchronisation for accounts.
type SyncOrchestrator interface {
	// Sync runs one sync for an account and returns its outcome.
	Sync(ctx context.Context, accountID string, req domain.SyncRequest) (*domain.SyncResult, error)

	// SyncAll syncs every syncable account for a user, keyed by account id.
	SyncAll(ctx context.Context, userID string) (map[string]*domain.SyncResult, error)

	// Status reports whether a sync is currently running for an account.
	Status(accountID string) SyncStatus
}

// SyncStatus represents the current state of an account's sync.
type SyncStatus struct {
	// AccountID identifies the account.
	AccountID string

	// Running indicates if sync is currently in progress.
	Running bool

	// LastResult is the most recent completed outcome, nil if never run.
	LastResult *domain.SyncResult
}
