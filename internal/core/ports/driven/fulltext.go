package driven

import (
	"context"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

// FullTextHit is one scored match from the full-text backend.
type FullTextHit struct {
	// ID is the matched document.
	ID string

	// Score is the backend's relevance score (e.g. BM25).
	Score float64
}

// FullTextIndex is the external full-text backend behind the real-time
// search index. The core owns the schema and commit policy; the backend
// owns storage and ranking.
type FullTextIndex interface {
	// AddDocument adds or replaces a document.
	AddDocument(ctx context.Context, doc domain.SearchDocument) error

	// DeleteDocument removes a document by id.
	DeleteDocument(ctx context.Context, id string) error

	// Search returns up to limit scored matches for query.
	Search(ctx context.Context, query string, limit int) ([]FullTextHit, error)

	// Commit makes pending writes durable.
	Commit() error

	// Reload refreshes the reader after a commit.
	Reload() error

	// Close releases resources.
	Close() error
}
