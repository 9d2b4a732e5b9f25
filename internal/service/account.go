// Package service implements business logic on top of ports.
package service

import (
	"context"
	"fmt"

	"github.com/spendsight/spendsight/internal/domain"
	"github.com/spendsight/spendsight/internal/domain/cloudaccount"
	"github.com/spendsight/spendsight/internal/port/costprovider"
	"github.com/spendsight/spendsight/internal/port/database"
)

// AccountService manages cloud billing account lifecycle.
type AccountService struct {
	db  database.Store
	key []byte
}

// NewAccountService creates a new AccountService.
// The encryptionKey should be derived from the master secret using cloudaccount.DeriveKey.
func NewAccountService(s database.Store, encryptionKey []byte) *AccountService {
	return &AccountService{db: s, key: encryptionKey}
}

// Create validates, encrypts the credentials, and stores a new cloud account.
// The provider must have a registered adapter and the credential map must
// satisfy the adapter's required keys; no network call is made here.
func (s *AccountService) Create(ctx context.Context, req *cloudaccount.CreateRequest) (*cloudaccount.CloudAccount, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := costprovider.New(req.Provider, req.Credentials); err != nil {
		return nil, err
	}

	sealed, err := cloudaccount.SealCredentials(req.Credentials, s.key)
	if err != nil {
		return nil, fmt.Errorf("seal credentials: %w", err)
	}

	a := &cloudaccount.CloudAccount{
		Name:                 req.Name,
		Provider:             req.Provider,
		Status:               cloudaccount.StatusActive,
		EncryptedCredentials: sealed,
	}

	return s.db.CreateAccount(ctx, a)
}

// List returns all accounts for the current tenant (without credential blobs).
func (s *AccountService) List(ctx context.Context) ([]cloudaccount.CloudAccount, error) {
	accounts, err := s.db.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	// Clear encrypted blobs from the response; they are never sent to the client.
	for i := range accounts {
		accounts[i].EncryptedCredentials = nil
	}
	return accounts, nil
}

// Get returns an account by ID, without the credential blob.
func (s *AccountService) Get(ctx context.Context, id string) (*cloudaccount.CloudAccount, error) {
	a, err := s.db.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	a.EncryptedCredentials = nil
	return a, nil
}

// Delete removes an account by ID.
func (s *AccountService) Delete(ctx context.Context, id string) error {
	return s.db.DeleteAccount(ctx, id)
}

// Test decrypts the stored credentials and performs a live validation call
// against the provider's billing API.
func (s *AccountService) Test(ctx context.Context, id string) error {
	a, err := s.db.GetAccount(ctx, id)
	if err != nil {
		return err
	}

	creds, err := cloudaccount.OpenCredentials(a.EncryptedCredentials, s.key)
	if err != nil {
		return err
	}

	provider, err := costprovider.New(a.Provider, creds)
	if err != nil {
		return err
	}

	ok, err := provider.ValidateCredentials(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}
	return nil
}
