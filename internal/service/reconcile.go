package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/spendsight/spendsight/internal/domain"
	"github.com/spendsight/spendsight/internal/domain/recommendation"
	"github.com/spendsight/spendsight/internal/port/database"
	"github.com/spendsight/spendsight/internal/port/messagequeue"
)

// savingsDriftThreshold is the relative estimate change below which an open
// recommendation is left untouched.
const savingsDriftThreshold = 0.10

// ReconcilerService merges detector candidates into the recommendation table.
type ReconcilerService struct {
	db    database.Store
	queue messagequeue.Queue
}

// NewReconcilerService creates a new ReconcilerService.
func NewReconcilerService(db database.Store, queue messagequeue.Queue) *ReconcilerService {
	return &ReconcilerService{db: db, queue: queue}
}

// Reconcile folds candidates into the store one at a time. A candidate with
// no open recommendation for its (resource, type) key creates one and emits
// `recommendation.generated`; an open one whose savings estimate drifted
// beyond the threshold is updated in place without an event; anything else
// is left untouched. Applied and dismissed rows are invisible to the open
// lookup, so they stay frozen. Candidate-level failures land in the result's
// error list and never abort the remaining candidates.
func (s *ReconcilerService) Reconcile(ctx context.Context, candidates []recommendation.Candidate) *recommendation.ReconcileResult {
	result := &recommendation.ReconcileResult{}

	for _, c := range candidates {
		existing, err := s.db.FindOpenRecommendation(ctx, c.ResourceID, c.Type)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			s.create(ctx, c, result)
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: find open: %v", c.ResourceID, c.Type, err))
		default:
			s.merge(ctx, c, existing, result)
		}
	}

	slog.Info("reconciliation completed",
		"candidates", len(candidates),
		"created", result.Created,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"errors", len(result.Errors))

	return result
}

func (s *ReconcilerService) create(ctx context.Context, c recommendation.Candidate, result *recommendation.ReconcileResult) {
	created, err := s.db.CreateRecommendation(ctx, &recommendation.Recommendation{
		ID:                      uuid.NewString(),
		AccountID:               c.AccountID,
		Type:                    c.Type,
		Priority:                c.Priority,
		Provider:                c.Provider,
		Service:                 c.Service,
		ResourceID:              c.ResourceID,
		EstimatedMonthlySavings: c.EstimatedMonthlySavings,
		SavingsPeriod:           "monthly",
		Status:                  recommendation.StatusOpen,
		Description:             c.Description,
		Metadata:                c.Metadata,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost a race with a concurrent reconciler run; the row exists.
			result.Unchanged++
			return
		}
		result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: create: %v", c.ResourceID, c.Type, err))
		return
	}

	result.Created++
	publishEvent(ctx, s.queue, messagequeue.SubjectRecommendationGenerated, messagequeue.RecommendationGeneratedPayload{
		TenantID:         created.TenantID,
		RecommendationID: created.ID,
		Type:             created.Type,
		Priority:         created.Priority,
		Provider:         created.Provider,
		Service:          created.Service,
		ResourceID:       created.ResourceID,
		EstimatedSavings: created.EstimatedMonthlySavings,
	})
}

func (s *ReconcilerService) merge(ctx context.Context, c recommendation.Candidate, existing *recommendation.Recommendation, result *recommendation.ReconcileResult) {
	if !savingsDrifted(existing.EstimatedMonthlySavings, c.EstimatedMonthlySavings) {
		result.Unchanged++
		return
	}

	err := s.db.UpdateRecommendationEstimate(ctx, existing.ID,
		c.EstimatedMonthlySavings,
		recommendation.PriorityForSavings(c.EstimatedMonthlySavings),
		c.Description)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: update: %v", c.ResourceID, c.Type, err))
		return
	}
	result.Updated++
}

// savingsDrifted reports whether the incoming estimate moved more than the
// drift threshold relative to the stored one. A zero stored estimate drifts
// on any nonzero incoming value.
func savingsDrifted(stored, incoming float64) bool {
	if stored == 0 {
		return incoming != 0
	}
	return math.Abs(incoming-stored)/math.Abs(stored) > savingsDriftThreshold
}
