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

// accountStore implements driven.AccountStore backed by SQLite.
type accountStore struct {
	store *Store
}

var _ driven.AccountStore = (*accountStore)(nil)

// SaveAccount inserts a new connected account.
func (a *accountStore) SaveAccount(ctx context.Context, account *domain.ConnectedAccount) error {
	creds, err := json.Marshal(account.Credentials)
	if err != nil {
		return fmt.Errorf("marshalling credentials: %w", err)
	}
	status, err := json.Marshal(account.Status)
	if err != nil {
		return fmt.Errorf("marshalling status: %w", err)
	}
	config, err := json.Marshal(account.Config)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	metadata, err := json.Marshal(account.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	var lastSync sql.NullTime
	if account.LastSyncAt != nil {
		lastSync = sql.NullTime{Time: *account.LastSyncAt, Valid: true}
	}

	_, err = a.store.db.ExecContext(ctx, `
		INSERT INTO connected_accounts
			(id, user_id, connector_type, account_name, account_identifier,
			 credentials, status, config, last_sync_at, metadata,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		account.ID, account.UserID, string(account.ConnectorType),
		account.AccountName, account.AccountIdentifier,
		string(creds), string(status), string(config), lastSync,
		string(metadata), account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s/%s/%s: %w",
				account.UserID, account.ConnectorType, account.AccountIdentifier,
				domain.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// GetAccount returns an account by id.
func (a *accountStore) GetAccount(ctx context.Context, id string) (*domain.ConnectedAccount, error) {
	row := a.store.db.QueryRowContext(ctx, `
		SELECT id, user_id, connector_type, account_name, account_identifier,
		       credentials, status, config, last_sync_at, metadata,
		       created_at, updated_at
		FROM connected_accounts WHERE id = ?
	`, id)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return account, nil
}

// ListAccounts returns a user's accounts, newest first.
func (a *accountStore) ListAccounts(ctx context.Context, userID string) ([]domain.ConnectedAccount, error) {
	rows, err := a.store.db.QueryContext(ctx, `
		SELECT id, user_id, connector_type, account_name, account_identifier,
		       credentials, status, config, last_sync_at, metadata,
		       created_at, updated_at
		FROM connected_accounts WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.ConnectedAccount //nolint:prealloc
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// UpdateStatus replaces the account's lifecycle status.
func (a *accountStore) UpdateStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshalling status: %w", err)
	}
	return a.exec(ctx, id, `
		UPDATE connected_accounts SET status = ?, updated_at = ? WHERE id = ?
	`, string(data), time.Now().UTC(), id)
}

// UpdateCredentials replaces the account's credentials.
func (a *accountStore) UpdateCredentials(ctx context.Context, id string, creds domain.Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshalling credentials: %w", err)
	}
	return a.exec(ctx, id, `
		UPDATE connected_accounts SET credentials = ?, updated_at = ? WHERE id = ?
	`, string(data), time.Now().UTC(), id)
}

// TouchLastSync records a successful sync completion time.
func (a *accountStore) TouchLastSync(ctx context.Context, id string, at time.Time) error {
	return a.exec(ctx, id, `
		UPDATE connected_accounts SET last_sync_at = ?, updated_at = ? WHERE id = ?
	`, at, time.Now().UTC(), id)
}

// DeleteAccount removes an account. Documents cascade via foreign key.
func (a *accountStore) DeleteAccount(ctx context.Context, id string) error {
	return a.exec(ctx, id, `DELETE FROM connected_accounts WHERE id = ?`, id)
}

// exec runs a statement that should affect exactly one account row.
func (a *accountStore) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := a.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, domain.ErrAccountNotFound)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*domain.ConnectedAccount, error) {
	var (
		account       domain.ConnectedAccount
		connectorType string
		creds         string
		status        string
		config        string
		metadata      string
		lastSync      sql.NullTime
	)
	err := s.Scan(
		&account.ID, &account.UserID, &connectorType,
		&account.AccountName, &account.AccountIdentifier,
		&creds, &status, &config, &lastSync, &metadata,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.ConnectorType = domain.ProviderKind(connectorType)
	if err := unmarshalJSON(creds, &account.Credentials); err != nil {
		return nil, fmt.Errorf("unmarshalling credentials: %w", err)
	}
	if err := unmarshalJSON(status, &account.Status); err != nil {
		return nil, fmt.Errorf("unmarshalling status: %w", err)
	}
	if err := unmarshalJSON(config, &account.Config); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := unmarshalJSON(metadata, &account.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshalling metadata: %w", err)
	}
	if lastSync.Valid {
		t := lastSync.Time
		account.LastSyncAt = &t
	}
	return &account, nil
}

// unmarshalJSON decodes a JSON column, treating "" and "null" as empty.
func unmarshalJSON(data string, v any) error {
	if data == "" || data == jsonNull {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
