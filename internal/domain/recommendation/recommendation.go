// Package recommendation defines savings recommendation domain types.
package recommendation

import "time"

// Recommendation types, one per pattern detector.
const (
	TypeIdle             = "idle"
	TypeRightsize        = "rightsize"
	TypeUnused           = "unused"
	TypeStaleSnapshot    = "stale_snapshot"
	TypeReservedCapacity = "reserved_capacity"
)

// Priorities derived from estimated monthly savings.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Priority thresholds in dollars per month.
const (
	HighSavingsThreshold   = 500.0
	MediumSavingsThreshold = 100.0
)

// Recommendation lifecycle statuses. Applied and dismissed rows are frozen:
// reconciliation never reopens or duplicates them.
const (
	StatusOpen      = "open"
	StatusApplied   = "applied"
	StatusDismissed = "dismissed"
)

// Recommendation is one persisted savings opportunity. At most one open row
// exists per (tenant, resource id, type).
type Recommendation struct {
	ID                      string            `json:"id"`
	TenantID                string            `json:"tenant_id"`
	AccountID               string            `json:"account_id"`
	Type                    string            `json:"type"`
	Priority                string            `json:"priority"`
	Provider                string            `json:"provider"`
	Service                 string            `json:"service"`
	ResourceID              string            `json:"resource_id"`
	EstimatedMonthlySavings float64           `json:"estimated_monthly_savings"`
	SavingsPeriod           string            `json:"savings_period"` // always "monthly"
	Status                  string            `json:"status"`
	Description             string            `json:"description"`
	Metadata                map[string]string `json:"metadata,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// Candidate is an unpersisted detector finding; the reconciler decides
// whether it becomes a new recommendation, an in-place update, or a no-op.
type Candidate struct {
	AccountID               string            `json:"account_id"`
	Type                    string            `json:"type"`
	Provider                string            `json:"provider"`
	Service                 string            `json:"service"`
	ResourceID              string            `json:"resource_id"`
	EstimatedMonthlySavings float64           `json:"estimated_monthly_savings"`
	Priority                string            `json:"priority"`
	Description             string            `json:"description"`
	Metadata                map[string]string `json:"metadata,omitempty"`
}

// PriorityForSavings maps estimated monthly savings to a priority bucket.
func PriorityForSavings(monthly float64) string {
	switch {
	case monthly >= HighSavingsThreshold:
		return PriorityHigh
	case monthly >= MediumSavingsThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ValidStatus reports whether s is a known recommendation status.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusApplied, StatusDismissed:
		return true
	}
	return false
}

// ReconcileResult summarizes one reconciliation pass over a candidate set.
type ReconcileResult struct {
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Errors    []string `json:"errors,omitempty"`
}
