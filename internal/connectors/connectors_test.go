package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
)

func TestMatchesFilters(t *testing.T) {
	doc := func(path string, size int64) *domain.SourceDocument {
		name := path
		if idx := strings.LastIndex(path, "/"); idx >= 0 {
			name = path[idx+1:]
		}
		return &domain.SourceDocument{Name: name, Path: path, Size: size}
	}

	t.Run("nil filters pass everything", func(t *testing.T) {
		assert.True(t, MatchesFilters(doc("a/b.md", 10), nil))
	})

	t.Run("folders always pass", func(t *testing.T) {
		folder := &domain.SourceDocument{Name: "src", Path: "src", IsFolder: true}
		filters := &domain.ListFilters{IncludePatterns: []string{"*.md"}}
		assert.True(t, MatchesFilters(folder, filters))
	})

	t.Run("max size", func(t *testing.T) {
		filters := &domain.ListFilters{MaxFileSize: 100}
		assert.True(t, MatchesFilters(doc("a.md", 100), filters))
		assert.False(t, MatchesFilters(doc("a.md", 101), filters))
	})

	t.Run("file types", func(t *testing.T) {
		filters := &domain.ListFilters{FileTypes: []string{"md", ".txt"}}
		assert.True(t, MatchesFilters(doc("docs/readme.MD", 1), filters))
		assert.True(t, MatchesFilters(doc("notes.txt", 1), filters))
		assert.False(t, MatchesFilters(doc("main.go", 1), filters))
		assert.False(t, MatchesFilters(doc("Makefile", 1), filters))
	})

	t.Run("include and exclude globs", func(t *testing.T) {
		filters := &domain.ListFilters{
			IncludePatterns: []string{"docs/*"},
			ExcludePatterns: []string{"*.tmp"},
		}
		assert.True(t, MatchesFilters(doc("docs/guide.md", 1), filters))
		assert.False(t, MatchesFilters(doc("src/main.go", 1), filters))
		assert.False(t, MatchesFilters(doc("docs/scratch.tmp", 1), filters))
	})

	t.Run("basename patterns match nested paths", func(t *testing.T) {
		filters := &domain.ListFilters{IncludePatterns: []string{"*.md"}}
		assert.True(t, MatchesFilters(doc("deep/nested/readme.md", 1), filters))
	})
}

func TestCheckResponseMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{401, domain.ErrAuthenticationFailed},
		{403, domain.ErrPermissionDenied},
		{404, domain.ErrDocumentNotFound},
		{429, domain.ErrRateLimited},
		{500, domain.ErrNetwork},
		{503, domain.ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.status,
				Body:       io.NopCloser(strings.NewReader("boom")),
			}
			assert.ErrorIs(t, CheckResponse(resp), tt.want)
		})
	}

	t.Run("other 4xx is HTTPError", func(t *testing.T) {
		resp := &http.Response{StatusCode: 422, Body: io.NopCloser(strings.NewReader("unprocessable"))}
		err := CheckResponse(resp)
		var httpErr *domain.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, 422, httpErr.StatusCode)
	})

	t.Run("2xx passes", func(t *testing.T) {
		resp := &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("{}"))}
		assert.NoError(t, CheckResponse(resp))
	})
}

func TestDecodeBodyEmbeddedError(t *testing.T) {
	t.Run("200 with error field fails", func(t *testing.T) {
		body := `{"error":"bad_verification_code","error_description":"The code is incorrect."}`
		resp := &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(body))}
		var out map[string]any
		err := DecodeBody(resp, &out)
		require.ErrorIs(t, err, domain.ErrAuthenticationFailed)
		assert.Contains(t, err.Error(), "bad_verification_code")
	})

	t.Run("clean 200 decodes", func(t *testing.T) {
		resp := &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(`{"login":"octocat"}`))}
		var out struct {
			Login string `json:"login"`
		}
		require.NoError(t, DecodeBody(resp, &out))
		assert.Equal(t, "octocat", out.Login)
	})
}

func TestOAuthAppFlow(t *testing.T) {
	exchange := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer exchange.Close()

	app := NewOAuthApp("client-id", "client-secret", "https://example.com/authorize", exchange.URL, []string{"repo"})

	authURL, state, err := app.BeginAuth("http://127.0.0.1:9999/callback")
	require.NoError(t, err)
	assert.Contains(t, authURL, "state="+state)
	assert.Contains(t, authURL, "client_id=client-id")

	creds, err := app.CompleteOAuth(context.Background(), "the-code", state)
	require.NoError(t, err)
	assert.Equal(t, "new-access", creds.AccessToken)
	assert.Equal(t, "new-refresh", creds.RefreshToken)
	assert.False(t, creds.Expiry.IsZero())

	// A nonce is single use.
	_, err = app.CompleteOAuth(context.Background(), "the-code", state)
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
}

func TestOAuthAppRejectsUnknownState(t *testing.T) {
	app := NewOAuthApp("id", "secret", "https://example.com/a", "https://example.com/t", nil)
	_, err := app.CompleteOAuth(context.Background(), "code", "forged-state")
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
}

func TestOAuthAppRequiresClientCredentials(t *testing.T) {
	app := NewOAuthApp("", "", "https://example.com/a", "https://example.com/t", nil)
	_, _, err := app.BeginAuth("http://127.0.0.1/callback")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestRateLimiterObserve(t *testing.T) {
	r := NewRateLimiter(100)
	resp := &http.Response{StatusCode: 200, Header: http.Header{}}
	resp.Header.Set(headerRateRemaining, "42")
	resp.Header.Set(headerRateLimit, "5000")
	r.Observe(resp)
	assert.Equal(t, 42, r.Remaining())

	// Retry-After on a 429 zeroes the quota until the reset.
	limited := &http.Response{StatusCode: 429, Header: http.Header{}}
	limited.Header.Set(headerRetryAfter, "30")
	r.Observe(limited)
	assert.Equal(t, 0, r.Remaining())
}

// fakeSource drives RunSync without a provider.
type fakeSource struct {
	docs    []domain.SourceDocument
	content map[string]*domain.DocumentContent
	fail    map[string]error
}

func (f *fakeSource) ListDocuments(_ context.Context, _ *domain.ConnectedAccount, _ *domain.ListFilters) ([]domain.SourceDocument, error) {
	return f.docs, nil
}

func (f *fakeSource) GetDocumentContent(_ context.Context, _ *domain.ConnectedAccount, externalID string) (*domain.DocumentContent, error) {
	if err, ok := f.fail[externalID]; ok {
		return nil, err
	}
	return f.content[externalID], nil
}

func TestRunSync(t *testing.T) {
	account := &domain.ConnectedAccount{ID: "acct-1", ConnectorType: domain.ProviderGitHub}
	src := &fakeSource{
		docs: []domain.SourceDocument{
			{ID: "d1", ExternalID: "e1", Name: "readme.md", Path: "readme.md", ConnectorType: domain.ProviderGitHub, ContentType: domain.ContentTypeMarkdown, Size: 40, ModifiedAt: time.Now()},
			{ID: "d2", ExternalID: "e2", Name: "logo.png", Path: "logo.png", ContentType: domain.ContentTypeImage, Size: 10},
			{ID: "d3", ExternalID: "e3", Name: "src", Path: "src", IsFolder: true},
			{ID: "d4", ExternalID: "e4", Name: "big.txt", Path: "big.txt", ContentType: domain.ContentTypeText, Size: 99 << 20},
			{ID: "d5", ExternalID: "e5", Name: "broken.txt", Path: "broken.txt", ContentType: domain.ContentTypeText, Size: 5},
		},
		content: map[string]*domain.DocumentContent{
			"e1": {Data: []byte("# Title\n\nSome markdown body."), ContentType: domain.ContentTypeMarkdown},
		},
		fail: map[string]error{
			"e5": domain.ErrNetwork,
		},
	}

	result, forEmbedding, err := RunSync(context.Background(), src, account, domain.SyncRequest{})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "broken.txt")

	// Only the fetchable text-bearing file is chunked: the image and
	// folder are skipped, the oversized file capped out.
	require.Len(t, forEmbedding, 1)
	doc := forEmbedding[0]
	assert.Equal(t, "d1", doc.Document.ID)
	assert.Equal(t, "Title", doc.Document.Title)
	assert.NotEmpty(t, doc.Chunks)
	assert.Contains(t, doc.Document.Tags, "github")
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(domain.ProviderGitHub, fakeFactory{oauth: true, webhooks: true})
	reg.Register(domain.ProviderLocalFile, fakeFactory{})

	c, err := reg.Create(domain.ProviderGitHub)
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = reg.Create(domain.ProviderNotion)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	assert.True(t, reg.SupportsOAuth(domain.ProviderGitHub))
	assert.True(t, reg.SupportsWebhooks(domain.ProviderGitHub))
	assert.False(t, reg.SupportsOAuth(domain.ProviderLocalFile))
	assert.False(t, reg.SupportsOAuth(domain.ProviderNotion))

	assert.Equal(t, []domain.ProviderKind{domain.ProviderGitHub, domain.ProviderLocalFile}, reg.Kinds())
}

type fakeFactory struct {
	oauth    bool
	webhooks bool
}

// stubConnector is a non-nil placeholder satisfying driven.Connector;
// its methods are never called.
type stubConnector struct{ driven.Connector }

func (f fakeFactory) Create() (driven.Connector, error) { return stubConnector{}, nil }
func (f fakeFactory) SupportsOAuth() bool               { return f.oauth }
func (f fakeFactory) SupportsWebhooks() bool            { return f.webhooks }
