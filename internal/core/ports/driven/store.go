package driven

import (
	"context"
	"time"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

// AccountStore persists connected accounts.
type AccountStore interface {
	// SaveAccount inserts an account. Returns ErrAlreadyExists when the
	// (user, provider, identifier) triple is taken.
	SaveAccount(ctx context.Context, account *domain.ConnectedAccount) error

	// GetAccount returns an account by id, or ErrAccountNotFound.
	GetAccount(ctx context.Context, id string) (*domain.ConnectedAccount, error)

	// ListAccounts returns a user's accounts, newest first.
	ListAccounts(ctx context.Context, userID string) ([]domain.ConnectedAccount, error)

	// UpdateStatus replaces the account's lifecycle status.
	UpdateStatus(ctx context.Context, id string, status domain.AccountStatus) error

	// UpdateCredentials replaces the account's credentials. Called only
	// by the refresh flow, under the account's mutex.
	UpdateCredentials(ctx context.Context, id string, creds domain.Credentials) error

	// TouchLastSync records a successful sync completion time.
	TouchLastSync(ctx context.Context, id string, at time.Time) error

	// DeleteAccount removes an account and cascades to its documents.
	DeleteAccount(ctx context.Context, id string) error
}

// DocumentStore persists document metadata rows.
type DocumentStore interface {
	// UpsertDocument inserts or updates by (source, external id).
	// Reports whether a new row was created.
	UpsertDocument(ctx context.Context, doc *domain.SourceDocument) (created bool, err error)

	// GetDocument returns a row, or ErrDocumentNotFound.
	GetDocument(ctx context.Context, sourceID, externalID string) (*domain.SourceDocument, error)

	// ListDocuments returns all rows for a source.
	ListDocuments(ctx context.Context, sourceID string) ([]domain.SourceDocument, error)

	// DeleteVanished removes rows for a source whose external id is not
	// in keep, returning how many were deleted.
	DeleteVanished(ctx context.Context, sourceID string, keep []string) (int, error)

	// MarkIndexed stamps a row's indexed time.
	MarkIndexed(ctx context.Context, id string, at time.Time) error
}

// EmbeddingStatus is the lifecycle of a queued document.
type EmbeddingStatus string

const (
	EmbeddingPending    EmbeddingStatus = "pending"
	EmbeddingProcessing EmbeddingStatus = "processing"
	EmbeddingDone       EmbeddingStatus = "done"
	EmbeddingFailed     EmbeddingStatus = "failed"
)

// EmbeddingQueue tracks which documents still need embedding.
type EmbeddingQueue interface {
	// Enqueue marks a document pending. Re-enqueueing resets a done or
	// failed entry to pending.
	Enqueue(ctx context.Context, documentID string) error

	// ClaimPending atomically moves up to limit pending entries to
	// processing and returns their document ids.
	ClaimPending(ctx context.Context, limit int) ([]string, error)

	// SetStatus records the outcome for a claimed document.
	SetStatus(ctx context.Context, documentID string, status EmbeddingStatus) error

	// Counts returns the number of entries per status.
	Counts(ctx context.Context) (map[EmbeddingStatus]int, error)
}

// OrdinalStore durably persists incremental-driver positions.
type OrdinalStore interface {
	// LoadOrdinal returns the stored ordinal for a source key, or ""
	// when none exists.
	LoadOrdinal(ctx context.Context, sourceKey string) (string, error)

	// SaveOrdinal writes the ordinal before the batch is acknowledged.
	SaveOrdinal(ctx context.Context, sourceKey, ordinal string) error
}
