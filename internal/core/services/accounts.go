package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
	"github.com/openindex-dev/openindex/internal/core/ports/driving"
	"github.com/openindex-dev/openindex/internal/logger"
)

// AccountService manages connected-account lifecycle: creation with
// credential validation, OAuth flows, token refresh, and disconnect.
type AccountService struct {
	store    driven.AccountStore
	registry *connectors.Registry

	// refreshMu serializes credential refreshes per account so two
	// callers never race a one-time refresh token.
	mu        sync.Mutex
	refreshMu map[string]*sync.Mutex
}

var _ driving.AccountService = (*AccountService)(nil)

// NewAccountService creates the service over an account store and a
// connector registry.
func NewAccountService(store driven.AccountStore, registry *connectors.Registry) *AccountService {
	return &AccountService{
		store:     store,
		registry:  registry,
		refreshMu: make(map[string]*sync.Mutex),
	}
}

// Connect creates an account with token credentials after validating
// both the provider config and the credentials against the provider.
func (s *AccountService) Connect(ctx context.Context, userID string, kind domain.ProviderKind, name string, config map[string]string, creds domain.Credentials) (*domain.ConnectedAccount, error) {
	conn, err := s.registry.Create(kind)
	if err != nil {
		return nil, err
	}
	if err := conn.ValidateConfig(config); err != nil {
		return nil, err
	}

	account := &domain.ConnectedAccount{
		ID:            uuid.NewString(),
		UserID:        userID,
		ConnectorType: kind,
		AccountName:   name,
		Credentials:   creds,
		Status:        domain.AccountStatus{State: domain.AccountConnected},
		Config:        config,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if !account.IsSyncable() {
		return nil, fmt.Errorf("%w: provider %s requires credentials", domain.ErrInvalidCredentials, kind)
	}
	if err := conn.CheckConnection(ctx, account); err != nil {
		return nil, err
	}
	if err := s.store.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// BeginOAuth starts an OAuth flow for a provider.
func (s *AccountService) BeginOAuth(kind domain.ProviderKind, redirectURI string) (string, string, error) {
	if !s.registry.SupportsOAuth(kind) {
		return "", "", fmt.Errorf("%w: provider %s does not support oauth", domain.ErrUnsupportedOperation, kind)
	}
	conn, err := s.registry.Create(kind)
	if err != nil {
		return "", "", err
	}
	return conn.BeginAuth(redirectURI)
}

// CompleteOAuth finishes an OAuth flow and creates the account.
func (s *AccountService) CompleteOAuth(ctx context.Context, userID string, kind domain.ProviderKind, name, code, state string) (*domain.ConnectedAccount, error) {
	conn, err := s.registry.Create(kind)
	if err != nil {
		return nil, err
	}
	tokens, err := conn.CompleteOAuth(ctx, code, state)
	if err != nil {
		return nil, err
	}

	account := &domain.ConnectedAccount{
		ID:            uuid.NewString(),
		UserID:        userID,
		ConnectorType: kind,
		AccountName:   name,
		Credentials:   domain.Credentials{OAuth: tokens},
		Status:        domain.AccountStatus{State: domain.AccountConnected},
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := conn.CheckConnection(ctx, account); err != nil {
		return nil, err
	}
	if err := s.store.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// List returns a user's accounts.
func (s *AccountService) List(ctx context.Context, userID string) ([]domain.ConnectedAccount, error) {
	return s.store.ListAccounts(ctx, userID)
}

// Refresh renews the account's credentials via its refresh token.
// Concurrent refreshes for the same account run one at a time.
func (s *AccountService) Refresh(ctx context.Context, accountID string) error {
	lock := s.refreshLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	conn, err := s.registry.Create(account.ConnectorType)
	if err != nil {
		return err
	}
	creds, err := conn.RefreshCredentials(ctx, account)
	if err != nil {
		return err
	}
	return s.store.UpdateCredentials(ctx, accountID, *creds)
}

// Disconnect revokes provider-side state where supported and removes
// the account with its documents. Revocation failure does not keep the
// account around.
func (s *AccountService) Disconnect(ctx context.Context, accountID string) error {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	conn, err := s.registry.Create(account.ConnectorType)
	if err == nil {
		if err := conn.Disconnect(ctx, account); err != nil {
			logger.Warn("provider-side disconnect for account %s: %v", accountID, err)
		}
	}
	return s.store.DeleteAccount(ctx, accountID)
}

func (s *AccountService) refreshLock(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.refreshMu[accountID]
	if !ok {
		lock = &sync.Mutex{}
		s.refreshMu[accountID] = lock
	}
	return lock
}
