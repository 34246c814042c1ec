package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
)

// fullTextIndex implements driven.FullTextIndex over an FTS5 virtual table.
type fullTextIndex struct {
	store *Store
}

var _ driven.FullTextIndex = (*fullTextIndex)(nil)

// AddDocument adds or replaces a document in the FTS table.
func (f *fullTextIndex) AddDocument(ctx context.Context, doc domain.SearchDocument) error {
	// FTS5 has no unique constraint; delete-then-insert keeps one row per id.
	if _, err := f.store.db.ExecContext(ctx, `
		DELETE FROM search_fts WHERE doc_id = ?
	`, doc.ID); err != nil {
		return fmt.Errorf("replacing indexed document: %w", err)
	}

	_, err := f.store.db.ExecContext(ctx, `
		INSERT INTO search_fts (doc_id, title, content, tags, ts, score)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		doc.ID, doc.Title, doc.Content, strings.Join(doc.Tags, " "),
		doc.Timestamp.UTC().Format(time.RFC3339Nano), doc.Score,
	)
	if err != nil {
		return fmt.Errorf("indexing document: %w", err)
	}
	return nil
}

// DeleteDocument removes a document by id.
func (f *fullTextIndex) DeleteDocument(ctx context.Context, id string) error {
	if _, err := f.store.db.ExecContext(ctx, `
		DELETE FROM search_fts WHERE doc_id = ?
	`, id); err != nil {
		return fmt.Errorf("deleting indexed document: %w", err)
	}
	return nil
}

// Search returns up to limit scored matches for query, best first.
// FTS5 bm25 ranks lower-is-better; the returned score is negated so
// callers see higher-is-better.
func (f *fullTextIndex) Search(ctx context.Context, query string, limit int) ([]driven.FullTextHit, error) {
	rows, err := f.store.db.QueryContext(ctx, `
		SELECT doc_id, bm25(search_fts)
		FROM search_fts
		WHERE search_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, ftsQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	defer rows.Close()

	var hits []driven.FullTextHit //nolint:prealloc
	for rows.Next() {
		var (
			id   string
			rank float64
		)
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hits = append(hits, driven.FullTextHit{ID: id, Score: -rank})
	}
	return hits, rows.Err()
}

// Commit is a no-op: SQLite writes are durable per statement.
func (f *fullTextIndex) Commit() error { return nil }

// Reload is a no-op: reads always see committed writes.
func (f *fullTextIndex) Reload() error { return nil }

// Close is a no-op: the owning Store closes the connection.
func (f *fullTextIndex) Close() error { return nil }

// ftsQuery quotes each term so user input cannot inject FTS5 syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return `""`
	}
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}
