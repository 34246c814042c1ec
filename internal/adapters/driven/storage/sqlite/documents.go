package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
)

// documentStore implements driven.DocumentStore backed by SQLite.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, source_id, connector_type, external_id, name, path,
	content_type, mime_type, size, url, is_folder, metadata,
	modified_at, created_at, updated_at, indexed_at`

// UpsertDocument inserts or updates by (source, external id).
func (d *documentStore) UpsertDocument(ctx context.Context, doc *domain.SourceDocument) (bool, error) {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshalling metadata: %w", err)
	}

	var existingID string
	row := d.store.db.QueryRowContext(ctx, `
		SELECT id FROM source_documents WHERE source_id = ? AND external_id = ?
	`, doc.SourceID, doc.ExternalID)
	err = row.Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = d.store.db.ExecContext(ctx, `
			INSERT INTO source_documents
				(id, source_id, connector_type, external_id, name, path,
				 content_type, mime_type, size, url, is_folder, metadata,
				 modified_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			doc.ID, doc.SourceID, string(doc.ConnectorType), doc.ExternalID,
			doc.Name, doc.Path, string(doc.ContentType), doc.MIMEType,
			doc.Size, doc.URL, doc.IsFolder, string(metadata),
			doc.ModifiedAt, doc.CreatedAt, doc.UpdatedAt,
		)
		if err != nil {
			return false, fmt.Errorf("inserting document: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("checking existing document: %w", err)
	default:
		// Keep the stored row id so embedding queue references survive.
		doc.ID = existingID
		_, err = d.store.db.ExecContext(ctx, `
			UPDATE source_documents SET
				name = ?, path = ?, content_type = ?, mime_type = ?,
				size = ?, url = ?, is_folder = ?, metadata = ?,
				modified_at = ?, updated_at = ?
			WHERE id = ?
		`,
			doc.Name, doc.Path, string(doc.ContentType), doc.MIMEType,
			doc.Size, doc.URL, doc.IsFolder, string(metadata),
			doc.ModifiedAt, time.Now().UTC(), existingID,
		)
		if err != nil {
			return false, fmt.Errorf("updating document: %w", err)
		}
		return false, nil
	}
}

// GetDocument returns a row by (source, external id).
func (d *documentStore) GetDocument(ctx context.Context, sourceID, externalID string) (*domain.SourceDocument, error) {
	row := d.store.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM source_documents WHERE source_id = ? AND external_id = ?
	`, sourceID, externalID)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s/%s: %w", sourceID, externalID, domain.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns all rows for a source.
func (d *documentStore) ListDocuments(ctx context.Context, sourceID string) ([]domain.SourceDocument, error) {
	rows, err := d.store.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM source_documents WHERE source_id = ?
		ORDER BY path, name
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.SourceDocument //nolint:prealloc
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DeleteVanished removes rows whose external id is not in keep.
func (d *documentStore) DeleteVanished(ctx context.Context, sourceID string, keep []string) (int, error) {
	query := `DELETE FROM source_documents WHERE source_id = ?`
	args := []any{sourceID}
	if len(keep) > 0 {
		placeholders := strings.Repeat("?,", len(keep))
		query += ` AND external_id NOT IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}

	res, err := d.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting vanished documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

// MarkIndexed stamps a row's indexed time.
func (d *documentStore) MarkIndexed(ctx context.Context, id string, at time.Time) error {
	res, err := d.store.db.ExecContext(ctx, `
		UPDATE source_documents SET indexed_at = ?, updated_at = ? WHERE id = ?
	`, at, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("marking indexed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrDocumentNotFound)
	}
	return nil
}

func scanDocument(s scanner) (*domain.SourceDocument, error) {
	var (
		doc           domain.SourceDocument
		connectorType string
		contentType   string
		metadata      string
		modifiedAt    sql.NullTime
		indexedAt     sql.NullTime
	)
	err := s.Scan(
		&doc.ID, &doc.SourceID, &connectorType, &doc.ExternalID,
		&doc.Name, &doc.Path, &contentType, &doc.MIMEType,
		&doc.Size, &doc.URL, &doc.IsFolder, &metadata,
		&modifiedAt, &doc.CreatedAt, &doc.UpdatedAt, &indexedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.ConnectorType = domain.ProviderKind(connectorType)
	doc.ContentType = domain.ContentType(contentType)
	if err := unmarshalJSON(metadata, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshalling metadata: %w", err)
	}
	if modifiedAt.Valid {
		doc.ModifiedAt = modifiedAt.Time
	}
	if indexedAt.Valid {
		t := indexedAt.Time
		doc.IndexedAt = &t
	}
	return &doc, nil
}

// embeddingQueue implements driven.EmbeddingQueue backed by SQLite.
type embeddingQueue struct {
	store *Store
}

var _ driven.EmbeddingQueue = (*embeddingQueue)(nil)

// Enqueue marks a document pending, resetting done or failed entries.
func (q *embeddingQueue) Enqueue(ctx context.Context, documentID string) error {
	_, err := q.store.db.ExecContext(ctx, `
		INSERT INTO embedding_queue (document_id, status, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET status = excluded.status,
			updated_at = excluded.updated_at
	`, documentID, string(driven.EmbeddingPending), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("enqueueing document: %w", err)
	}
	return nil
}

// ClaimPending atomically moves up to limit pending entries to processing.
func (q *embeddingQueue) ClaimPending(ctx context.Context, limit int) ([]string, error) {
	tx, err := q.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `
		SELECT document_id FROM embedding_queue
		WHERE status = ? ORDER BY updated_at LIMIT ?
	`, string(driven.EmbeddingPending), limit)
	if err != nil {
		return nil, fmt.Errorf("selecting pending entries: %w", err)
	}

	var ids []string //nolint:prealloc
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning pending entry: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE embedding_queue SET status = ?, updated_at = ? WHERE document_id = ?
		`, string(driven.EmbeddingProcessing), now, id); err != nil {
			return nil, fmt.Errorf("claiming entry %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return ids, nil
}

// SetStatus records the outcome for a claimed document.
func (q *embeddingQueue) SetStatus(ctx context.Context, documentID string, status driven.EmbeddingStatus) error {
	res, err := q.store.db.ExecContext(ctx, `
		UPDATE embedding_queue SET status = ?, updated_at = ? WHERE document_id = ?
	`, string(status), time.Now().UTC(), documentID)
	if err != nil {
		return fmt.Errorf("setting embedding status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("queue entry %s: %w", documentID, domain.ErrDocumentNotFound)
	}
	return nil
}

// Counts returns the number of entries per status.
func (q *embeddingQueue) Counts(ctx context.Context) (map[driven.EmbeddingStatus]int, error) {
	rows, err := q.store.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM embedding_queue GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("counting queue entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[driven.EmbeddingStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[driven.EmbeddingStatus(status)] = count
	}
	return counts, rows.Err()
}

// ordinalStore implements driven.OrdinalStore backed by SQLite.
type ordinalStore struct {
	store *Store
}

var _ driven.OrdinalStore = (*ordinalStore)(nil)

// LoadOrdinal returns the stored ordinal for a source key.
func (o *ordinalStore) LoadOrdinal(ctx context.Context, sourceKey string) (string, error) {
	var ordinal string
	row := o.store.db.QueryRowContext(ctx, `
		SELECT ordinal FROM ordinal_state WHERE source_key = ?
	`, sourceKey)
	err := row.Scan(&ordinal)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading ordinal: %w", err)
	}
	return ordinal, nil
}

// SaveOrdinal durably writes the ordinal for a source key.
func (o *ordinalStore) SaveOrdinal(ctx context.Context, sourceKey, ordinal string) error {
	_, err := o.store.db.ExecContext(ctx, `
		INSERT INTO ordinal_state (source_key, ordinal, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(source_key) DO UPDATE SET ordinal = excluded.ordinal,
			updated_at = excluded.updated_at
	`, sourceKey, ordinal, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving ordinal: %w", err)
	}
	return nil
}
