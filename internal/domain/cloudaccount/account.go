// Package cloudaccount defines the domain types for cloud billing accounts.
package cloudaccount

import (
	"fmt"
	"time"

	"github.com/spendsight/spendsight/internal/domain"
)

// Account statuses. Collection only runs against active accounts.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// CloudAccount represents a stored cloud provider billing credential.
type CloudAccount struct {
	ID                   string     `json:"id"`
	TenantID             string     `json:"tenant_id"`
	Name                 string     `json:"name"`
	Provider             string     `json:"provider"` // aws, azure, gcp
	Status               string     `json:"status"`
	EncryptedCredentials []byte     `json:"-"` // never expose in JSON
	LastSyncAt           *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Active reports whether the account is eligible for collection.
func (a *CloudAccount) Active() bool {
	return a.Status == StatusActive
}

// CreateRequest holds the fields to register a new cloud account.
type CreateRequest struct {
	Name        string            `json:"name"`
	Provider    string            `json:"provider"`
	Credentials map[string]string `json:"credentials"` // plaintext, encrypted before storage
}

// Validate checks the request before the credentials are sealed.
func (r *CreateRequest) Validate() error {
	switch {
	case r.Name == "":
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	case r.Provider == "":
		return fmt.Errorf("%w: provider is required", domain.ErrValidation)
	case len(r.Credentials) == 0:
		return fmt.Errorf("%w: credentials are required", domain.ErrValidation)
	}
	return nil
}
