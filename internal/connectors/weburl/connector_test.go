package weburl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

func urlAccount(urls string) *domain.ConnectedAccount {
	return &domain.ConnectedAccount{
		ID:            "acct-web",
		ConnectorType: domain.ProviderWebURL,
		Config:        map[string]string{"urls": urls},
		Status:        domain.AccountStatus{State: domain.AccountConnected},
	}
}

func TestValidateConfig(t *testing.T) {
	c := NewConnector()
	assert.ErrorIs(t, c.ValidateConfig(nil), domain.ErrInvalidConfiguration)
	assert.ErrorIs(t, c.ValidateConfig(map[string]string{"urls": "not-a-url"}), domain.ErrInvalidURL)
	assert.ErrorIs(t, c.ValidateConfig(map[string]string{"urls": "ftp://example.com/x"}), domain.ErrInvalidURL)
	assert.NoError(t, c.ValidateConfig(map[string]string{"urls": "https://example.com/docs, http://example.org"}))
}

func TestListDocuments(t *testing.T) {
	c := NewConnector()
	docs, err := c.ListDocuments(context.Background(), urlAccount("https://example.com/docs/intro, https://example.org"), nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "intro", docs[0].Name)
	assert.Equal(t, "example.com/docs/intro", docs[0].Path)
	assert.Equal(t, domain.ContentTypeHTML, docs[0].ContentType)
	assert.Equal(t, "example.org", docs[1].Name)
}

func TestGetDocumentContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "openindex/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><head><title>Hello</title></head><body>World</body></html>")
	}))
	defer server.Close()

	c := NewConnector()
	content, err := c.GetDocumentContent(context.Background(), urlAccount(server.URL), server.URL)
	require.NoError(t, err)
	assert.Equal(t, domain.ContentTypeHTML, content.ContentType)
	assert.Contains(t, string(content.Data), "<title>Hello</title>")
}

func TestGetDocumentContentMapsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewConnector()
	_, err := c.GetDocumentContent(context.Background(), urlAccount(server.URL), server.URL+"/gone")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestSyncExtractsTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>Release Notes</title></head><body><p>Everything shipped.</p></body></html>")
	}))
	defer server.Close()

	c := NewConnector()
	result, forEmbedding, err := c.Sync(context.Background(), urlAccount(server.URL+"/notes"), domain.SyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	require.Len(t, forEmbedding, 1)
	assert.Equal(t, "Release Notes", forEmbedding[0].Document.Title)
	assert.Contains(t, forEmbedding[0].Document.Content, "Everything shipped.")
}

func TestAuthOperationsUnsupported(t *testing.T) {
	c := NewConnector()
	_, _, err := c.BeginAuth("http://127.0.0.1/cb")
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
	_, err = c.CompleteOAuth(context.Background(), "code", "state")
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
}
