package domain

import "time"

// SourceDocument is a document's metadata row as listed by a connector.
// Content is fetched separately; folders carry no content at all.
type SourceDocument struct {
	// ID is the unique identifier for the row (UUID).
	ID string

	// SourceID links to the ConnectedAccount that produced this document.
	SourceID string

	// ConnectorType is the provider kind that listed the document.
	ConnectorType ProviderKind

	// ExternalID is the provider's identifier for the document.
	// Unique per (SourceID, ExternalID).
	ExternalID string

	// Name is the document's display name.
	Name string

	// Path is the provider-side path or hierarchy position.
	Path string

	// ContentType classifies the content for extraction and chunking.
	ContentType ContentType

	// MIMEType is the provider-reported media type.
	MIMEType string

	// Size is the document size in bytes, when known.
	Size int64

	// URL is a web-openable link to the document.
	URL string

	// IsFolder marks container rows that are listed but never fetched.
	IsFolder bool

	// Metadata contains provider-specific key-value pairs.
	Metadata map[string]any

	// ModifiedAt is the provider-side last modification time.
	ModifiedAt time.Time

	// CreatedAt is when the row was first stored.
	CreatedAt time.Time

	// UpdatedAt is when the row was last updated.
	UpdatedAt time.Time

	// IndexedAt is when the document was last indexed, nil if never.
	IndexedAt *time.Time
}

// DocumentContent is the fetched body of a document.
type DocumentContent struct {
	// Data is the raw bytes as returned by the provider or export.
	Data []byte

	// ContentType classifies Data for extraction.
	ContentType ContentType

	// Language is the source language tag for code, empty otherwise.
	Language string
}

// Document is normalised content ready for chunking and indexing.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// SourceID links to the ConnectedAccount that produced this document.
	SourceID string

	// ExternalID is the provider's identifier for the document.
	ExternalID string

	// Title is the human-readable title.
	Title string

	// Content is the full extracted text before chunking.
	Content string

	// ContentType classifies the original content.
	ContentType ContentType

	// URL is a web-openable link to the document.
	URL string

	// Tags are labels used by the search index's tag lookup.
	Tags []string

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]any

	// ModifiedAt is the provider-side last modification time.
	ModifiedAt time.Time
}

// EmbeddingChunk is one chunk of a document queued for embedding.
type EmbeddingChunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// Content is the chunk text.
	Content string

	// Position is the ordinal position within the document.
	Position int

	// Importance weights the chunk for ranking.
	Importance float64
}

// DocumentForEmbedding pairs a document with its chunks for the
// embedding queue.
type DocumentForEmbedding struct {
	// Document is the normalised source document.
	Document Document

	// Chunks are the pieces handed to the embedder, in document order.
	Chunks []EmbeddingChunk
}
