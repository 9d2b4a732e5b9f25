// Package costprovider defines the cloud billing provider port (interface).
package costprovider

import (
	"context"
	"time"

	"github.com/spendsight/spendsight/internal/domain/costitem"
)

// RawCostRecord is one normalized daily cost entry as returned by a
// provider adapter, before tenant and account stamping.
type RawCostRecord struct {
	Date       time.Time         `json:"date"`
	Service    string            `json:"service"`
	Amount     float64           `json:"amount"`
	Currency   string            `json:"currency"`
	UsageType  string            `json:"usage_type"`
	Operation  string            `json:"operation,omitempty"`
	ResourceID string            `json:"resource_id,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Provider is the port interface for fetching cost data from a cloud
// billing API. Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the unique identifier for this provider (e.g. "aws", "azure").
	Name() string

	// ValidateCredentials performs a cheap authenticated call against the
	// provider. It returns false when the provider rejects the credentials;
	// transport failures are returned as errors.
	ValidateCredentials(ctx context.Context) (bool, error)

	// GetCosts fetches daily cost records for the inclusive date range.
	GetCosts(ctx context.Context, r costitem.DateRange) ([]RawCostRecord, error)
}
