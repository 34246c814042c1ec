package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
)

func newAccountService(conn *stubConnector, oauth bool, accounts ...*domain.ConnectedAccount) (*AccountService, *fakeAccountStore) {
	store := newFakeAccountStore(accounts...)
	registry := connectors.NewRegistry()
	registry.Register(conn.kind, &stubFactory{conn: conn, oauth: oauth})
	return NewAccountService(store, registry), store
}

func TestConnectCreatesAccount(t *testing.T) {
	conn := &stubConnector{kind: domain.ProviderGitHub}
	svc, store := newAccountService(conn, true)

	creds := domain.Credentials{PAT: &domain.PATCredentials{Token: "ghp_secret"}}
	account, err := svc.Connect(context.Background(), "user-1", domain.ProviderGitHub, "work", map[string]string{"repos": "o/r"}, creds)
	require.NoError(t, err)

	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "user-1", account.UserID)
	assert.Equal(t, domain.AccountConnected, account.Status.State)

	stored, err := store.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, "work", stored.AccountName)
}

func TestConnectRejectsInvalidConfig(t *testing.T) {
	conn := &stubConnector{kind: domain.ProviderGitHub, validateErr: domain.ErrInvalidConfiguration}
	svc, _ := newAccountService(conn, true)

	_, err := svc.Connect(context.Background(), "user-1", domain.ProviderGitHub, "work", nil,
		domain.Credentials{PAT: &domain.PATCredentials{Token: "ghp_secret"}})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestConnectRequiresCredentials(t *testing.T) {
	conn := &stubConnector{kind: domain.ProviderGitHub}
	svc, _ := newAccountService(conn, true)

	_, err := svc.Connect(context.Background(), "user-1", domain.ProviderGitHub, "work", nil, domain.Credentials{})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestConnectVerifiesAgainstProvider(t *testing.T) {
	conn := &stubConnector{kind: domain.ProviderGitHub, checkErr: domain.ErrAuthenticationFailed}
	svc, store := newAccountService(conn, true)

	_, err := svc.Connect(context.Background(), "user-1", domain.ProviderGitHub, "work", nil,
		domain.Credentials{PAT: &domain.PATCredentials{Token: "ghp_revoked"}})
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)

	accounts, err := store.ListAccounts(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestConnectNoAuthProviderNeedsNoCredentials(t *testing.T) {
	conn := &stubConnector{kind: domain.ProviderLocalFile}
	svc, _ := newAccountService(conn, false)

	account, err := svc.Connect(context.Background(), "user-1", domain.ProviderLocalFile, "notes",
		map[string]string{"path": "/tmp/notes"}, domain.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, domain.AccountConnected, account.Status.State)
}

func TestBeginOAuth(t *testing.T) {
	conn := &stubConnector{kind: domain.ProviderGitHub}
	svc, _ := newAccountService(conn, true)

	authURL, state, err := svc.BeginOAuth(domain.ProviderGitHub, "http://127.0.0.1/cb")
	require.NoError(t, err)
	assert.Contains(t, authURL, "authorize")
	assert.NotEmpty(t, state)
}

func TestBeginOAuthRejectsNonOAuthProvider(t *testing.T) {
	conn := &stubConnector{kind: domain.ProviderLocalFile}
	svc, _ := newAccountService(conn, false)

	_, _, err := svc.BeginOAuth(domain.ProviderLocalFile, "http://127.0.0.1/cb")
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
}

func TestCompleteOAuthCreatesAccount(t *testing.T) {
	conn := &stubConnector{kind: domain.ProviderGitHub}
	svc, store := newAccountService(conn, true)

	account, err := svc.CompleteOAuth(context.Background(), "user-1", domain.ProviderGitHub, "work", "code", "state")
	require.NoError(t, err)

	require.NotNil(t, account.Credentials.OAuth)
	assert.Equal(t, "exchanged", account.Credentials.OAuth.AccessToken)

	stored, err := store.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, stored.Credentials.IsAuthenticated())
}

func TestRefreshUpdatesStoredCredentials(t *testing.T) {
	account := testAccount("acct-1")
	account.Credentials = domain.Credentials{OAuth: &domain.OAuthCredentials{
		AccessToken:  "old",
		RefreshToken: "refresh",
	}}
	conn := &stubConnector{
		kind: domain.ProviderGitHub,
		refreshed: &domain.Credentials{OAuth: &domain.OAuthCredentials{
			AccessToken:  "new",
			RefreshToken: "refresh",
		}},
	}
	svc, store := newAccountService(conn, true, account)

	require.NoError(t, svc.Refresh(context.Background(), "acct-1"))

	stored, err := store.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "new", stored.Credentials.OAuth.AccessToken)
}

func TestRefreshPropagatesProviderError(t *testing.T) {
	conn := &stubConnector{kind: domain.ProviderGitHub, refreshErr: domain.ErrUnsupportedOperation}
	svc, _ := newAccountService(conn, true, testAccount("acct-1"))

	err := svc.Refresh(context.Background(), "acct-1")
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
}

func TestDisconnectRemovesAccount(t *testing.T) {
	conn := &stubConnector{kind: domain.ProviderGitHub}
	svc, store := newAccountService(conn, true, testAccount("acct-1"))

	require.NoError(t, svc.Disconnect(context.Background(), "acct-1"))

	_, err := store.GetAccount(context.Background(), "acct-1")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestDisconnectUnknownAccount(t *testing.T) {
	conn := &stubConnector{kind: domain.ProviderGitHub}
	svc, _ := newAccountService(conn, true)

	err := svc.Disconnect(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestListReturnsUserAccounts(t *testing.T) {
	a := testAccount("acct-1")
	b := testAccount("acct-2")
	b.UserID = "user-2"
	conn := &stubConnector{kind: domain.ProviderGitHub}
	svc, _ := newAccountService(conn, true, a, b)

	accounts, err := svc.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acct-1", accounts[0].ID)
}
