package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/index/realtime"
	"github.com/openindex-dev/openindex/internal/monitor"
)

func seededSearchService(t *testing.T, metrics *monitor.Monitor) *SearchService {
	t.Helper()
	index := realtime.New(newMemFullText())
	docs := []domain.SearchDocument{
		{ID: "d1", Title: "Release checklist", Content: "cut the branch and tag", Tags: []string{"ops"}, Timestamp: time.Now(), Score: 1},
		{ID: "d2", Title: "Redis tuning", Content: "eviction policy notes", Tags: []string{"infra", "redis"}, Timestamp: time.Now(), Score: 1},
		{ID: "d3", Title: "Rewrite proposal", Content: "search pipeline draft", Tags: []string{"search"}, Timestamp: time.Now(), Score: 1},
	}
	for _, doc := range docs {
		require.NoError(t, index.Index(context.Background(), doc))
	}
	return NewSearchService(index, metrics)
}

func TestSearchReturnsRankedHits(t *testing.T) {
	svc := seededSearchService(t, nil)

	results, err := svc.Search(context.Background(), "eviction", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "d2", results[0].Document.ID)
}

func TestSearchAppliesFilters(t *testing.T) {
	svc := seededSearchService(t, nil)

	results, err := svc.Search(context.Background(), "re", 10, &domain.SearchFilters{Tags: []string{"redis"}})
	require.NoError(t, err)
	for _, r := range results {
		assert.Contains(t, r.Document.Tags, "redis")
	}
}

func TestAutocomplete(t *testing.T) {
	svc := seededSearchService(t, nil)

	suggestions := svc.Autocomplete("re", 10)
	assert.NotEmpty(t, suggestions)
}

func TestSearchByTags(t *testing.T) {
	svc := seededSearchService(t, nil)

	results := svc.SearchByTags([]string{"infra"}, 10)
	require.Len(t, results, 1)
	assert.Equal(t, "d2", results[0].Document.ID)
}

func TestSearchRecordsTiming(t *testing.T) {
	metrics := monitor.New()
	svc := seededSearchService(t, metrics)

	_, err := svc.Search(context.Background(), "tag", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.SearchQueryTimes().Count())
}
