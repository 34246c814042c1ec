package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/openindex-dev/openindex/internal/chunking"
	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/extract"
	"github.com/openindex-dev/openindex/internal/logger"
)

// ContentSource is the subset of a connector the shared sync pipeline
// needs: list metadata, fetch one document's bytes.
type ContentSource interface {
	ListDocuments(ctx context.Context, account *domain.ConnectedAccount, filters *domain.ListFilters) ([]domain.SourceDocument, error)
	GetDocumentContent(ctx context.Context, account *domain.ConnectedAccount, externalID string) (*domain.DocumentContent, error)
}

// RunSync is the provider-independent sync pipeline: list, fetch each
// text-bearing non-folder document under the size cap, extract its text
// and chunk it for embedding. Per-document failures are recorded in the
// result and never abort the run. New/updated/deleted counts are filled
// by the orchestrator against the document store.
func RunSync(ctx context.Context, src ContentSource, account *domain.ConnectedAccount, req domain.SyncRequest) (*domain.SyncResult, []domain.DocumentForEmbedding, error) {
	start := time.Now()
	maxSize := req.MaxDocumentSize
	if maxSize <= 0 {
		maxSize = domain.DefaultMaxDocumentSize
	}

	docs, err := src.ListDocuments(ctx, account, req.Filters)
	if err != nil {
		return nil, nil, err
	}

	result := &domain.SyncResult{Total: len(docs), Listed: docs}
	engine := chunking.New()
	var forEmbedding []domain.DocumentForEmbedding

	for i := range docs {
		doc := &docs[i]
		if doc.IsFolder || !doc.ContentType.IsTextBearing() {
			continue
		}
		if doc.Size > maxSize {
			logger.Debug("skipping %s: %d bytes over cap", doc.Path, doc.Size)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		content, err := src.GetDocumentContent(ctx, account, doc.ExternalID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", doc.Path, err))
			continue
		}
		forEmbedding = append(forEmbedding, BuildForEmbedding(doc, content, engine))
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result, forEmbedding, nil
}

// BuildForEmbedding extracts text from fetched content and chunks it.
func BuildForEmbedding(meta *domain.SourceDocument, content *domain.DocumentContent, engine *chunking.Engine) domain.DocumentForEmbedding {
	text := extract.Text(content.Data, content.ContentType)
	title := extract.Title(content.Data, content.ContentType, meta.Name)

	doc := domain.Document{
		ID:          meta.ID,
		SourceID:    meta.SourceID,
		ExternalID:  meta.ExternalID,
		Title:       title,
		Content:     text,
		ContentType: content.ContentType,
		URL:         meta.URL,
		Tags:        []string{string(meta.ConnectorType), string(content.ContentType)},
		Metadata:    meta.Metadata,
		ModifiedAt:  meta.ModifiedAt,
	}

	chunks := engine.Chunk(text, content.Language)
	embedding := make([]domain.EmbeddingChunk, len(chunks))
	for i, ch := range chunks {
		embedding[i] = domain.EmbeddingChunk{
			ID:         ch.ID,
			Content:    ch.Content,
			Position:   ch.Position,
			Importance: ch.Importance,
		}
	}
	return domain.DocumentForEmbedding{Document: doc, Chunks: embedding}
}
