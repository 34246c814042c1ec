// Package localfile indexes directories on the local filesystem. It
// needs no authentication; the account config names the root path. A
// filesystem watcher surfaces live changes between syncs.
package localfile

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
)

// Connector syncs files from a local directory tree.
type Connector struct{}

var (
	_ driven.Connector         = (*Connector)(nil)
	_ connectors.ContentSource = (*Connector)(nil)
)

// NewConnector creates a local-file connector.
func NewConnector() *Connector { return &Connector{} }

// Name returns the human-readable connector name.
func (c *Connector) Name() string { return "Local Files" }

// Kind returns the provider kind.
func (c *Connector) Kind() domain.ProviderKind { return domain.ProviderLocalFile }

// ValidateConfig requires an absolute "path" naming an existing
// directory.
func (c *Connector) ValidateConfig(config map[string]string) error {
	root := config["path"]
	if root == "" {
		return fmt.Errorf("%w: localfile needs a path config", domain.ErrInvalidConfiguration)
	}
	if !filepath.IsAbs(root) {
		return fmt.Errorf("%w: path %q must be absolute", domain.ErrInvalidConfiguration, root)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: path %q: %v", domain.ErrInvalidConfiguration, root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: path %q is not a directory", domain.ErrInvalidConfiguration, root)
	}
	return nil
}

// BeginAuth always fails: local files need no authentication.
func (c *Connector) BeginAuth(_ string) (string, string, error) {
	return "", "", fmt.Errorf("%w: localfile needs no authentication", domain.ErrUnsupportedOperation)
}

// CompleteOAuth mirrors BeginAuth.
func (c *Connector) CompleteOAuth(_ context.Context, _, _ string) (*domain.OAuthCredentials, error) {
	return nil, fmt.Errorf("%w: localfile needs no authentication", domain.ErrUnsupportedOperation)
}

// CheckConnection verifies the configured root still exists.
func (c *Connector) CheckConnection(_ context.Context, account *domain.ConnectedAccount) error {
	return c.ValidateConfig(account.Config)
}

// ListDocuments walks the root directory. Hidden files and directories
// are skipped.
func (c *Connector) ListDocuments(ctx context.Context, account *domain.ConnectedAccount, filters *domain.ListFilters) ([]domain.SourceDocument, error) {
	root := account.Config["path"]
	if root == "" {
		return nil, fmt.Errorf("%w: localfile needs a path config", domain.ErrInvalidConfiguration)
	}

	var docs []domain.SourceDocument //nolint:prealloc
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		doc := toSourceDocument(account, root, path, info)
		if !connectors.MatchesFilters(&doc, filters) {
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrRepositoryNotFound, err)
		}
		return nil, err
	}
	return docs, nil
}

// GetDocumentContent reads one file. The external ID is the absolute
// path.
func (c *Connector) GetDocumentContent(_ context.Context, account *domain.ConnectedAccount, externalID string) (*domain.DocumentContent, error) {
	root := account.Config["path"]
	resolved, err := filepath.Abs(externalID)
	if err != nil || root == "" || !strings.HasPrefix(resolved, filepath.Clean(root)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("%w: %q is outside the configured root", domain.ErrPermissionDenied, externalID)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, externalID)
		}
		return nil, err
	}

	contentType, language := domain.ContentTypeFromName(resolved)
	return &domain.DocumentContent{Data: data, ContentType: contentType, Language: language}, nil
}

// Sync runs the shared list-fetch-chunk pipeline.
func (c *Connector) Sync(ctx context.Context, account *domain.ConnectedAccount, req domain.SyncRequest) (*domain.SyncResult, []domain.DocumentForEmbedding, error) {
	return connectors.RunSync(ctx, c, account, req)
}

// IncrementalSync lists files modified after since.
func (c *Connector) IncrementalSync(ctx context.Context, account *domain.ConnectedAccount, since time.Time) ([]domain.SourceDocument, error) {
	docs, err := c.ListDocuments(ctx, account, nil)
	if err != nil {
		return nil, err
	}
	changed := docs[:0]
	for _, doc := range docs {
		if doc.ModifiedAt.After(since) {
			changed = append(changed, doc)
		}
	}
	return changed, nil
}

// RefreshCredentials always fails: there are no credentials.
func (c *Connector) RefreshCredentials(_ context.Context, _ *domain.ConnectedAccount) (*domain.Credentials, error) {
	return nil, fmt.Errorf("%w: localfile has no credentials", domain.ErrUnsupportedOperation)
}

// Disconnect is a no-op.
func (c *Connector) Disconnect(_ context.Context, _ *domain.ConnectedAccount) error { return nil }

func toSourceDocument(account *domain.ConnectedAccount, root, path string, info fs.FileInfo) domain.SourceDocument {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	contentType, _ := domain.ContentTypeFromName(path)
	return domain.SourceDocument{
		SourceID:      account.ID,
		ConnectorType: domain.ProviderLocalFile,
		ExternalID:    path,
		Name:          info.Name(),
		Path:          rel,
		ContentType:   contentType,
		Size:          info.Size(),
		URL:           "file://" + path,
		ModifiedAt:    info.ModTime(),
	}
}
