package domain

import "time"

// SearchDocument is the search index's view of a document. Fields match
// the full-text backend schema.
type SearchDocument struct {
	// ID is the document identifier.
	ID string

	// Title is the indexed title.
	Title string

	// Content is the indexed body text.
	Content string

	// Tags are the document's labels.
	Tags []string

	// Timestamp is when the document was indexed.
	Timestamp time.Time

	// Score is the stored ranking score.
	Score float64
}

// SearchFilters narrows search results after ranking.
type SearchFilters struct {
	// Tags keeps only documents carrying at least one of these tags.
	Tags []string

	// After keeps only documents indexed at or after this time.
	After time.Time
}

// SearchResult is a single ranked hit.
type SearchResult struct {
	// Document is the matched document.
	Document SearchDocument

	// Score is the relevance score for this query.
	Score float64
}

// IndexStats is a point-in-time summary of the search index.
type IndexStats struct {
	TotalDocuments   int
	TotalTags        int
	SecondsSinceLast float64
	BloomCardinality uint64
}
