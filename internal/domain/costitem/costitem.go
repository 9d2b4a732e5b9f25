// Package costitem defines the normalized cost ledger domain types.
package costitem

import (
	"fmt"
	"time"

	"github.com/spendsight/spendsight/internal/domain"
)

// CostLineItem is one normalized daily cost record in the ledger.
// The natural key is (tenant, account, usage date, provider, service,
// usage type, resource id); inserting a duplicate key is a silent no-op.
type CostLineItem struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenant_id"`
	AccountID  string            `json:"account_id"`
	UsageDate  time.Time         `json:"usage_date"` // day precision, UTC midnight
	Provider   string            `json:"provider"`   // aws, azure, gcp
	Service    string            `json:"service"`
	UsageType  string            `json:"usage_type"`
	Amount     float64           `json:"amount"`
	Currency   string            `json:"currency"`
	ResourceID string            `json:"resource_id,omitempty"` // empty = not attributable
	Tags       map[string]string `json:"tags,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Validate checks the invariants a line item must hold before persistence.
func (c *CostLineItem) Validate() error {
	switch {
	case c.TenantID == "":
		return fmt.Errorf("%w: tenant_id is required", domain.ErrValidation)
	case c.AccountID == "":
		return fmt.Errorf("%w: account_id is required", domain.ErrValidation)
	case c.Provider == "":
		return fmt.Errorf("%w: provider is required", domain.ErrValidation)
	case c.Service == "":
		return fmt.Errorf("%w: service is required", domain.ErrValidation)
	case c.UsageType == "":
		return fmt.Errorf("%w: usage_type is required", domain.ErrValidation)
	case c.UsageDate.IsZero():
		return fmt.Errorf("%w: usage_date is required", domain.ErrValidation)
	case c.Amount < 0:
		return fmt.Errorf("%w: amount must be >= 0", domain.ErrValidation)
	case c.Currency == "":
		return fmt.Errorf("%w: currency is required", domain.ErrValidation)
	}
	return nil
}

// Day truncates t to UTC midnight, the ledger's date precision.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateRange is an inclusive day range.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange normalizes both bounds to day precision.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// Validate checks that the range is well formed.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", domain.ErrValidation)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end before start", domain.ErrValidation)
	}
	return nil
}

// Days returns the number of days covered, inclusive of both bounds.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// ServiceCost is a per-service spend total for one day.
type ServiceCost struct {
	Service  string  `json:"service"`
	Provider string  `json:"provider"`
	Total    float64 `json:"total"`
}

// DailyCost is an aggregated spend total for a single day.
type DailyCost struct {
	Date  time.Time `json:"date"`
	Total float64   `json:"total"`
}

// DailyServiceCost is one row of a per-service daily totals window.
type DailyServiceCost struct {
	Date     time.Time `json:"date"`
	Service  string    `json:"service"`
	Provider string    `json:"provider"`
	Total    float64   `json:"total"`
}
