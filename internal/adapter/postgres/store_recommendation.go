package postgres

import (
	"context"
	"fmt"

	"github.com/spendsight/spendsight/internal/domain/recommendation"
	"github.com/spendsight/spendsight/internal/port/database"
)

// --- Recommendations ---

const recommendationColumns = `id, tenant_id, account_id, rec_type, priority, provider, service, resource_id,
	estimated_monthly_savings::float8, savings_period, status, description, metadata, created_at, updated_at`

func scanRecommendation(row scannable) (recommendation.Recommendation, error) {
	var (
		rec      recommendation.Recommendation
		metadata []byte
	)
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.AccountID, &rec.Type, &rec.Priority,
		&rec.Provider, &rec.Service, &rec.ResourceID, &rec.EstimatedMonthlySavings,
		&rec.SavingsPeriod, &rec.Status, &rec.Description, &metadata,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return recommendation.Recommendation{}, fmt.Errorf("scan recommendation: %w", err)
	}
	if rec.Metadata, err = unmarshalMap(metadata); err != nil {
		return recommendation.Recommendation{}, err
	}
	return rec, nil
}

// CreateRecommendation inserts a new open recommendation. The partial unique
// index on (tenant, resource, type) for open rows turns a concurrent double
// create into domain.ErrAlreadyExists.
func (s *Store) CreateRecommendation(ctx context.Context, r *recommendation.Recommendation) (*recommendation.Recommendation, error) {
	metadata, err := marshalMap(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal recommendation metadata: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO recommendations
		   (tenant_id, account_id, rec_type, priority, provider, service, resource_id,
		    estimated_monthly_savings, savings_period, status, description, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+recommendationColumns,
		tenantFromCtx(ctx), r.AccountID, r.Type, r.Priority, r.Provider, r.Service, r.ResourceID,
		r.EstimatedMonthlySavings, r.SavingsPeriod, recommendation.StatusOpen, r.Description, metadata)

	created, err := scanRecommendation(row)
	if err != nil {
		return nil, storeErr(err, "create recommendation %s/%s", r.ResourceID, r.Type)
	}
	return &created, nil
}

// FindOpenRecommendation looks up the single open recommendation for
// (tenant, resource, type). Applied and dismissed rows are invisible here,
// which is what keeps them frozen across reconciliation runs.
func (s *Store) FindOpenRecommendation(ctx context.Context, resourceID, recType string) (*recommendation.Recommendation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations
		 WHERE tenant_id = $1 AND resource_id = $2 AND rec_type = $3 AND status = $4`,
		tenantFromCtx(ctx), resourceID, recType, recommendation.StatusOpen)

	rec, err := scanRecommendation(row)
	if err != nil {
		return nil, storeErr(err, "find open recommendation %s/%s", resourceID, recType)
	}
	return &rec, nil
}

// UpdateRecommendationEstimate refreshes savings, priority, and description
// in place. Used when a candidate's estimate drifts beyond the merge
// threshold; no event is emitted for updates.
func (s *Store) UpdateRecommendationEstimate(ctx context.Context, id string, savings float64, priority, description string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recommendations
		 SET estimated_monthly_savings = $1, priority = $2, description = $3, updated_at = now()
		 WHERE id = $4 AND tenant_id = $5`,
		savings, priority, description, id, tenantFromCtx(ctx))
	return execExpectOne(tag, err, "update recommendation %s estimate", id)
}

func (s *Store) ListRecommendations(ctx context.Context, f database.RecommendationFilter) ([]recommendation.Recommendation, error) {
	q := `SELECT ` + recommendationColumns + ` FROM recommendations WHERE tenant_id = $1`
	args := []any{tenantFromCtx(ctx)}

	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		q += fmt.Sprintf(" AND rec_type = $%d", len(args))
	}
	q += " ORDER BY estimated_monthly_savings DESC, created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, storeErr(err, "list recommendations")
	}
	defer rows.Close()

	var recs []recommendation.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Store) UpdateRecommendationStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recommendations SET status = $1, updated_at = now()
		 WHERE id = $2 AND tenant_id = $3`,
		status, id, tenantFromCtx(ctx))
	return execExpectOne(tag, err, "update recommendation %s status", id)
}
