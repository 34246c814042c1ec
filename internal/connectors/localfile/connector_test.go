package localfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func dirAccount(root string) *domain.ConnectedAccount {
	return &domain.ConnectedAccount{
		ID:            "acct-local",
		ConnectorType: domain.ProviderLocalFile,
		Config:        map[string]string{"path": root},
		Status:        domain.AccountStatus{State: domain.AccountConnected},
	}
}

func TestValidateConfig(t *testing.T) {
	c := NewConnector()
	root := t.TempDir()

	assert.NoError(t, c.ValidateConfig(map[string]string{"path": root}))
	assert.ErrorIs(t, c.ValidateConfig(nil), domain.ErrInvalidConfiguration)
	assert.ErrorIs(t, c.ValidateConfig(map[string]string{"path": "relative/dir"}), domain.ErrInvalidConfiguration)
	assert.ErrorIs(t, c.ValidateConfig(map[string]string{"path": filepath.Join(root, "missing")}), domain.ErrInvalidConfiguration)

	file := writeFile(t, root, "f.txt", "x")
	assert.ErrorIs(t, c.ValidateConfig(map[string]string{"path": file}), domain.ErrInvalidConfiguration)
}

func TestListDocumentsSkipsHidden(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "readme.md", "# hi")
	writeFile(t, root, "docs/guide.txt", "guide")
	writeFile(t, root, ".git/config", "hidden")
	writeFile(t, root, ".env", "secret")

	c := NewConnector()
	docs, err := c.ListDocuments(context.Background(), dirAccount(root), nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	paths := []string{docs[0].Path, docs[1].Path}
	assert.Contains(t, paths, "readme.md")
	assert.Contains(t, paths, "docs/guide.txt")
}

func TestGetDocumentContentConfinedToRoot(t *testing.T) {
	root := t.TempDir()
	inside := writeFile(t, root, "notes.md", "# Notes")
	outside := filepath.Join(t.TempDir(), "other.txt")
	require.NoError(t, os.WriteFile(outside, []byte("outside"), 0o644))

	c := NewConnector()
	account := dirAccount(root)

	content, err := c.GetDocumentContent(context.Background(), account, inside)
	require.NoError(t, err)
	assert.Equal(t, "# Notes", string(content.Data))
	assert.Equal(t, domain.ContentTypeMarkdown, content.ContentType)

	_, err = c.GetDocumentContent(context.Background(), account, outside)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = c.GetDocumentContent(context.Background(), account, filepath.Join(root, "gone.md"))
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestIncrementalSync(t *testing.T) {
	root := t.TempDir()
	old := writeFile(t, root, "old.txt", "old")
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	writeFile(t, root, "new.txt", "new")

	c := NewConnector()
	docs, err := c.IncrementalSync(context.Background(), dirAccount(root), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "new.txt", docs[0].Path)
}

func TestSyncPipeline(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "readme.md", "# Title\n\nBody text for the readme.")

	c := NewConnector()
	result, forEmbedding, err := c.Sync(context.Background(), dirAccount(root), domain.SyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	require.Len(t, forEmbedding, 1)
	assert.Equal(t, "Title", forEmbedding[0].Document.Title)
	assert.NotEmpty(t, forEmbedding[0].Chunks)
}

func TestWatchEmitsChanges(t *testing.T) {
	root := t.TempDir()
	c := NewConnector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := c.Watch(ctx, dirAccount(root))
	require.NoError(t, err)

	writeFile(t, root, "fresh.md", "# fresh")

	select {
	case doc := <-events:
		assert.Equal(t, "fresh.md", doc.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("no watch event for created file")
	}

	require.NoError(t, os.Remove(filepath.Join(root, "fresh.md")))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case doc := <-events:
			if doc.Metadata["deleted"] == true {
				return
			}
		case <-deadline:
			t.Fatal("no watch event for removed file")
		}
	}
}

func TestAuthOperationsUnsupported(t *testing.T) {
	c := NewConnector()
	_, _, err := c.BeginAuth("http://127.0.0.1/cb")
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
	_, err = c.RefreshCredentials(context.Background(), dirAccount(t.TempDir()))
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
}
