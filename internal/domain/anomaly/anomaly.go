// Package anomaly defines spend anomaly domain types and severity classification.
package anomaly

import (
	"math"
	"time"
)

// Severity buckets, ordered by deviation magnitude.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Anomaly lifecycle statuses. The analyzer only ever creates open anomalies;
// transitions come from operators through the API.
const (
	StatusOpen          = "open"
	StatusInvestigating = "investigating"
	StatusResolved      = "resolved"
	StatusDismissed     = "dismissed"
)

// Deviation thresholds in percent. Comparisons are strict, so a deviation
// sitting exactly on a boundary falls into the lower bucket.
const (
	DeviationGate     = 50.0
	MediumThreshold   = 100.0
	HighThreshold     = 200.0
	CriticalThreshold = 500.0
)

// Anomaly is one detected per-service spend deviation. At most one exists
// per (tenant, service, usage date, provider).
type Anomaly struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	AccountID    string    `json:"account_id"`
	Provider     string    `json:"provider"`
	Service      string    `json:"service"`
	UsageDate    time.Time `json:"usage_date"`
	ResourceID   string    `json:"resource_id,omitempty"`
	ExpectedCost float64   `json:"expected_cost"`
	ActualCost   float64   `json:"actual_cost"`
	DeviationPct float64   `json:"deviation_pct"`
	Severity     string    `json:"severity"`
	Status       string    `json:"status"`
	DetectedAt   time.Time `json:"detected_at"`
}

// Classify maps a deviation percentage to a severity bucket. The second
// return is false when the deviation does not clear the reporting gate.
func Classify(deviationPct float64) (string, bool) {
	dev := math.Abs(deviationPct)
	switch {
	case dev <= DeviationGate:
		return "", false
	case dev > CriticalThreshold:
		return SeverityCritical, true
	case dev > HighThreshold:
		return SeverityHigh, true
	case dev > MediumThreshold:
		return SeverityMedium, true
	default:
		return SeverityLow, true
	}
}

// ValidStatus reports whether s is a known anomaly status.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved, StatusDismissed:
		return true
	}
	return false
}

// Report is the result of one analysis run.
type Report struct {
	AccountID         string    `json:"account_id"`
	Date              time.Time `json:"date"`
	ServicesAnalyzed  int       `json:"services_analyzed"`
	AnomaliesDetected int       `json:"anomalies_detected"`
	Anomalies         []Anomaly `json:"anomalies"`
}
