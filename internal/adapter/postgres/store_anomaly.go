package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/spendsight/spendsight/internal/domain/anomaly"
	"github.com/spendsight/spendsight/internal/port/database"
)

// --- Anomalies ---

const anomalyColumns = `id, tenant_id, account_id, provider, service, usage_date, resource_id,
	expected_cost::float8, actual_cost::float8, deviation_pct, severity, status, detected_at`

func scanAnomaly(row scannable) (anomaly.Anomaly, error) {
	var a anomaly.Anomaly
	err := row.Scan(&a.ID, &a.TenantID, &a.AccountID, &a.Provider, &a.Service,
		&a.UsageDate, &a.ResourceID, &a.ExpectedCost, &a.ActualCost,
		&a.DeviationPct, &a.Severity, &a.Status, &a.DetectedAt)
	if err != nil {
		return anomaly.Anomaly{}, fmt.Errorf("scan anomaly: %w", err)
	}
	return a, nil
}

// CreateAnomaly inserts a new open anomaly. A concurrent insert for the same
// (tenant, service, date, provider) key surfaces as domain.ErrAlreadyExists,
// which the analyzer treats as an already-detected skip.
func (s *Store) CreateAnomaly(ctx context.Context, a *anomaly.Anomaly) (*anomaly.Anomaly, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO anomalies
		   (tenant_id, account_id, provider, service, usage_date, resource_id,
		    expected_cost, actual_cost, deviation_pct, severity, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+anomalyColumns,
		tenantFromCtx(ctx), a.AccountID, a.Provider, a.Service, a.UsageDate, a.ResourceID,
		a.ExpectedCost, a.ActualCost, a.DeviationPct, a.Severity, anomaly.StatusOpen)

	created, err := scanAnomaly(row)
	if err != nil {
		return nil, storeErr(err, "create anomaly %s/%s", a.Provider, a.Service)
	}
	return &created, nil
}

// FindAnomaly looks up the anomaly for one dedup key, regardless of status.
func (s *Store) FindAnomaly(ctx context.Context, service string, date time.Time, provider string) (*anomaly.Anomaly, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+anomalyColumns+` FROM anomalies
		 WHERE tenant_id = $1 AND service = $2 AND usage_date = $3 AND provider = $4`,
		tenantFromCtx(ctx), service, date, provider)

	a, err := scanAnomaly(row)
	if err != nil {
		return nil, storeErr(err, "find anomaly %s/%s", provider, service)
	}
	return &a, nil
}

func (s *Store) ListAnomalies(ctx context.Context, f database.AnomalyFilter) ([]anomaly.Anomaly, error) {
	q := `SELECT ` + anomalyColumns + ` FROM anomalies WHERE tenant_id = $1`
	args := []any{tenantFromCtx(ctx)}

	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Severity != "" {
		args = append(args, f.Severity)
		q += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		q += fmt.Sprintf(" AND usage_date >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		q += fmt.Sprintf(" AND usage_date <= $%d", len(args))
	}
	q += " ORDER BY usage_date DESC, detected_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, storeErr(err, "list anomalies")
	}
	defer rows.Close()

	var anomalies []anomaly.Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

func (s *Store) UpdateAnomalyStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE anomalies SET status = $1 WHERE id = $2 AND tenant_id = $3`,
		status, id, tenantFromCtx(ctx))
	return execExpectOne(tag, err, "update anomaly %s status", id)
}
