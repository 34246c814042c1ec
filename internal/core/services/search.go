package services

import (
	"context"
	"time"

	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driving"
	"github.com/openindex-dev/openindex/internal/index/realtime"
	"github.com/openindex-dev/openindex/internal/monitor"
)

// SearchService answers queries from the realtime index and records
// query timings when a monitor is attached.
type SearchService struct {
	index   *realtime.Index
	metrics *monitor.Monitor
}

var _ driving.SearchService = (*SearchService)(nil)

// NewSearchService creates the service. metrics may be nil.
func NewSearchService(index *realtime.Index, metrics *monitor.Monitor) *SearchService {
	return &SearchService{index: index, metrics: metrics}
}

// Search runs the ranked query against the realtime index.
func (s *SearchService) Search(ctx context.Context, query string, limit int, filters *domain.SearchFilters) ([]domain.SearchResult, error) {
	start := time.Now()
	results, err := s.index.Search(ctx, query, limit, filters)
	if s.metrics != nil {
		s.metrics.RecordSearchQuery(float64(time.Since(start).Milliseconds()))
	}
	return results, err
}

// Autocomplete suggests completions for a prefix.
func (s *SearchService) Autocomplete(prefix string, limit int) []string {
	return s.index.Autocomplete(prefix, limit)
}

// SearchByTags ranks documents by matching tag count.
func (s *SearchService) SearchByTags(tags []string, limit int) []domain.SearchResult {
	return s.index.SearchByTags(tags, limit)
}
