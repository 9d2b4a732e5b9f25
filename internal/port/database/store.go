// Package database defines the persistence port (interface).
package database

import (
	"context"
	"time"

	"github.com/spendsight/spendsight/internal/domain/anomaly"
	"github.com/spendsight/spendsight/internal/domain/cloudaccount"
	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/domain/recommendation"
)

// AnomalyFilter narrows anomaly listings. Zero values mean "any".
type AnomalyFilter struct {
	Status   string
	Severity string
	From     time.Time
	To       time.Time
	Limit    int
}

// RecommendationFilter narrows recommendation listings. Zero values mean "any".
type RecommendationFilter struct {
	Status string
	Type   string
	Limit  int
}

// Store is the port interface for all persistence operations. Every method
// scopes reads and writes to the tenant carried by the context.
type Store interface {
	// Cloud accounts
	ListAccounts(ctx context.Context) ([]cloudaccount.CloudAccount, error)
	ListActiveAccounts(ctx context.Context) ([]cloudaccount.CloudAccount, error)
	GetAccount(ctx context.Context, id string) (*cloudaccount.CloudAccount, error)
	CreateAccount(ctx context.Context, a *cloudaccount.CloudAccount) (*cloudaccount.CloudAccount, error)
	DeleteAccount(ctx context.Context, id string) error
	UpdateAccountSyncTime(ctx context.Context, id string, at time.Time) error

	// Cost ledger. InsertCostItems writes the whole batch in one
	// transaction, silently skipping natural-key duplicates, and returns
	// the number of rows actually inserted.
	InsertCostItems(ctx context.Context, items []costitem.CostLineItem) (int, error)
	SumByService(ctx context.Context, accountID string, date time.Time) ([]costitem.ServiceCost, error)
	ServiceDailyTotals(ctx context.Context, accountID string, r costitem.DateRange) ([]costitem.DailyServiceCost, error)
	FindCostItems(ctx context.Context, accountID string, r costitem.DateRange) ([]costitem.CostLineItem, error)
	DailyTotals(ctx context.Context, accountID string, r costitem.DateRange) ([]costitem.DailyCost, error)

	// Anomalies
	CreateAnomaly(ctx context.Context, a *anomaly.Anomaly) (*anomaly.Anomaly, error)
	FindAnomaly(ctx context.Context, service string, date time.Time, provider string) (*anomaly.Anomaly, error)
	ListAnomalies(ctx context.Context, f AnomalyFilter) ([]anomaly.Anomaly, error)
	UpdateAnomalyStatus(ctx context.Context, id, status string) error

	// Recommendations
	CreateRecommendation(ctx context.Context, r *recommendation.Recommendation) (*recommendation.Recommendation, error)
	FindOpenRecommendation(ctx context.Context, resourceID, recType string) (*recommendation.Recommendation, error)
	UpdateRecommendationEstimate(ctx context.Context, id string, savings float64, priority, description string) error
	ListRecommendations(ctx context.Context, f RecommendationFilter) ([]recommendation.Recommendation, error)
	UpdateRecommendationStatus(ctx context.Context, id, status string) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
