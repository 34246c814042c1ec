package driving

import (
	"context"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

// SearchService provides search capabilities to external actors.
type SearchService interface {
	// Search runs the three-phase query (prefix, full-text, filter)
	// and returns ranked results.
	Search(ctx context.Context, query string, limit int, filters *domain.SearchFilters) ([]domain.SearchResult, error)

	// Autocomplete suggests completions for a prefix.
	Autocomplete(prefix string, limit int) []string

	// SearchByTags ranks documents by matching tag count.
	SearchByTags(tags []string, limit int) []domain.SearchResult
}
