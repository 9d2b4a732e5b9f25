package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/spendsight/spendsight/internal/domain/cloudaccount"
)

// --- Cloud account CRUD ---

const accountColumns = `id, tenant_id, name, provider, status, encrypted_credentials, last_sync_at, created_at, updated_at`

func scanAccount(row scannable) (cloudaccount.CloudAccount, error) {
	var a cloudaccount.CloudAccount
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Provider, &a.Status,
		&a.EncryptedCredentials, &a.LastSyncAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return cloudaccount.CloudAccount{}, fmt.Errorf("scan cloud account: %w", err)
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]cloudaccount.CloudAccount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM cloud_accounts WHERE tenant_id = $1 ORDER BY created_at ASC`,
		tenantFromCtx(ctx))
	if err != nil {
		return nil, storeErr(err, "list cloud accounts")
	}
	defer rows.Close()

	var accounts []cloudaccount.CloudAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) ListActiveAccounts(ctx context.Context) ([]cloudaccount.CloudAccount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM cloud_accounts
		 WHERE tenant_id = $1 AND status = $2 ORDER BY created_at ASC`,
		tenantFromCtx(ctx), cloudaccount.StatusActive)
	if err != nil {
		return nil, storeErr(err, "list active cloud accounts")
	}
	defer rows.Close()

	var accounts []cloudaccount.CloudAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ListActiveAccountsAllTenants returns active accounts across every tenant.
// Only the scheduler loop may use it; callers stamp each account's tenant
// into the context before doing per-account work.
func (s *Store) ListActiveAccountsAllTenants(ctx context.Context) ([]cloudaccount.CloudAccount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM cloud_accounts WHERE status = $1 ORDER BY created_at ASC`,
		cloudaccount.StatusActive)
	if err != nil {
		return nil, storeErr(err, "list active accounts all tenants")
	}
	defer rows.Close()

	var accounts []cloudaccount.CloudAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) GetAccount(ctx context.Context, id string) (*cloudaccount.CloudAccount, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM cloud_accounts WHERE id = $1 AND tenant_id = $2`,
		id, tenantFromCtx(ctx))

	a, err := scanAccount(row)
	if err != nil {
		return nil, storeErr(err, "get cloud account %s", id)
	}
	return &a, nil
}

// CreateAccount inserts a new account. Account names are unique per
// tenant, so a duplicate surfaces as domain.ErrAlreadyExists.
func (s *Store) CreateAccount(ctx context.Context, a *cloudaccount.CloudAccount) (*cloudaccount.CloudAccount, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO cloud_accounts (tenant_id, name, provider, status, encrypted_credentials)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+accountColumns,
		tenantFromCtx(ctx), a.Name, a.Provider, a.Status, a.EncryptedCredentials)

	created, err := scanAccount(row)
	if err != nil {
		return nil, storeErr(err, "create cloud account %s", a.Name)
	}
	return &created, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cloud_accounts WHERE id = $1 AND tenant_id = $2`,
		id, tenantFromCtx(ctx))
	return execExpectOne(tag, err, "delete cloud account %s", id)
}

// UpdateAccountSyncTime advances the last-sync watermark. Called only after
// a fully successful collection.
func (s *Store) UpdateAccountSyncTime(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cloud_accounts SET last_sync_at = $1, updated_at = now()
		 WHERE id = $2 AND tenant_id = $3`,
		at, id, tenantFromCtx(ctx))
	return execExpectOne(tag, err, "update sync time for account %s", id)
}
