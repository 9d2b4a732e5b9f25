package service

import (
	"context"
	"fmt"

	"github.com/spendsight/spendsight/internal/domain"
	"github.com/spendsight/spendsight/internal/domain/anomaly"
	"github.com/spendsight/spendsight/internal/domain/recommendation"
	"github.com/spendsight/spendsight/internal/port/database"
)

// AnomalyService provides anomaly queries and operator status transitions.
type AnomalyService struct {
	db database.Store
}

// NewAnomalyService creates a new AnomalyService.
func NewAnomalyService(db database.Store) *AnomalyService {
	return &AnomalyService{db: db}
}

// List returns anomalies matching the filter.
func (s *AnomalyService) List(ctx context.Context, f database.AnomalyFilter) ([]anomaly.Anomaly, error) {
	return s.db.ListAnomalies(ctx, f)
}

// UpdateStatus transitions an anomaly to a new lifecycle status.
func (s *AnomalyService) UpdateStatus(ctx context.Context, id, status string) error {
	if !anomaly.ValidStatus(status) {
		return fmt.Errorf("%w: invalid anomaly status %q", domain.ErrValidation, status)
	}
	return s.db.UpdateAnomalyStatus(ctx, id, status)
}

// RecommendationService provides recommendation queries and operator status
// transitions.
type RecommendationService struct {
	db database.Store
}

// NewRecommendationService creates a new RecommendationService.
func NewRecommendationService(db database.Store) *RecommendationService {
	return &RecommendationService{db: db}
}

// List returns recommendations matching the filter.
func (s *RecommendationService) List(ctx context.Context, f database.RecommendationFilter) ([]recommendation.Recommendation, error) {
	return s.db.ListRecommendations(ctx, f)
}

// UpdateStatus transitions a recommendation to a new lifecycle status.
// Applying or dismissing freezes the row: future reconciliation runs no
// longer see it.
func (s *RecommendationService) UpdateStatus(ctx context.Context, id, status string) error {
	if !recommendation.ValidStatus(status) {
		return fmt.Errorf("%w: invalid recommendation status %q", domain.ErrValidation, status)
	}
	return s.db.UpdateRecommendationStatus(ctx, id, status)
}
