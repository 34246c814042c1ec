package googledrive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

func oauthAccount() *domain.ConnectedAccount {
	return &domain.ConnectedAccount{
		ID:            "acct-gd",
		ConnectorType: domain.ProviderGoogleDrive,
		Credentials:   domain.Credentials{OAuth: &domain.OAuthCredentials{AccessToken: "ya29.token"}},
	}
}

func TestListDocumentsClassifiesWorkspaceFormats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/files"), "unexpected path %s", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("q"), "trashed = false")
		fmt.Fprint(w, `{
			"files": [
				{"id": "doc1", "name": "Design Notes", "mimeType": "application/vnd.google-apps.document", "modifiedTime": "2026-02-03T10:00:00Z", "webViewLink": "https://docs.example/doc1"},
				{"id": "sheet1", "name": "Budget", "mimeType": "application/vnd.google-apps.spreadsheet", "modifiedTime": "2026-02-03T11:00:00Z"},
				{"id": "folder1", "name": "Archive", "mimeType": "application/vnd.google-apps.folder"},
				{"id": "bin1", "name": "photo.jpg", "mimeType": "image/jpeg", "size": "12345"}
			]
		}`)
	}))
	defer server.Close()

	c := NewConnector(WithEndpoint(server.URL + "/"))
	docs, err := c.ListDocuments(context.Background(), oauthAccount(), nil)
	require.NoError(t, err)
	require.Len(t, docs, 4)

	assert.Equal(t, domain.ContentTypeText, docs[0].ContentType)
	assert.Equal(t, "application/vnd.google-apps.document", docs[0].MIMEType)
	assert.Equal(t, domain.ContentTypeText, docs[1].ContentType)
	assert.True(t, docs[2].IsFolder)
	assert.Equal(t, domain.ContentTypeImage, docs[3].ContentType)
	assert.Equal(t, int64(12345), docs[3].Size)
}

func TestGetDocumentContentExportsDocs(t *testing.T) {
	var exportMIME string
	mux := http.NewServeMux()
	mux.HandleFunc("/files/doc1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id": "doc1", "name": "Design Notes", "mimeType": "application/vnd.google-apps.document"}`)
	})
	mux.HandleFunc("/files/doc1/export", func(w http.ResponseWriter, r *http.Request) {
		exportMIME = r.URL.Query().Get("mimeType")
		fmt.Fprint(w, "Design Notes body")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewConnector(WithEndpoint(server.URL + "/"))
	content, err := c.GetDocumentContent(context.Background(), oauthAccount(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", exportMIME)
	assert.Equal(t, "Design Notes body", string(content.Data))
	assert.Equal(t, domain.ContentTypeText, content.ContentType)
}

func TestGetDocumentContentDownloadsRegularFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/file1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "media" {
			fmt.Fprint(w, "# Readme")
			return
		}
		fmt.Fprint(w, `{"id": "file1", "name": "readme.md", "mimeType": "text/markdown"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewConnector(WithEndpoint(server.URL + "/"))
	content, err := c.GetDocumentContent(context.Background(), oauthAccount(), "file1")
	require.NoError(t, err)
	assert.Equal(t, "# Readme", string(content.Data))
	assert.Equal(t, domain.ContentTypeMarkdown, content.ContentType)
}

func TestMissingCredentials(t *testing.T) {
	c := NewConnector()
	err := c.CheckConnection(context.Background(), &domain.ConnectedAccount{})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestRefreshRequiresOAuth(t *testing.T) {
	c := NewConnector()
	account := &domain.ConnectedAccount{
		Credentials: domain.Credentials{PAT: &domain.PATCredentials{Token: "x"}},
	}
	_, err := c.RefreshCredentials(context.Background(), account)
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
}
