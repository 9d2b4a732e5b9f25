package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spendsight/spendsight/internal/domain"
	"github.com/spendsight/spendsight/internal/domain/costitem"
)

// --- Cost ledger ---

const costItemColumns = `id, tenant_id, account_id, usage_date, provider, service, usage_type,
	amount::float8, currency, resource_id, tags, metadata, created_at`

func scanCostItem(row scannable) (costitem.CostLineItem, error) {
	var (
		it       costitem.CostLineItem
		tags     []byte
		metadata []byte
	)
	err := row.Scan(&it.ID, &it.TenantID, &it.AccountID, &it.UsageDate, &it.Provider,
		&it.Service, &it.UsageType, &it.Amount, &it.Currency, &it.ResourceID,
		&tags, &metadata, &it.CreatedAt)
	if err != nil {
		return costitem.CostLineItem{}, fmt.Errorf("scan cost item: %w", err)
	}
	if it.Tags, err = unmarshalMap(tags); err != nil {
		return costitem.CostLineItem{}, err
	}
	if it.Metadata, err = unmarshalMap(metadata); err != nil {
		return costitem.CostLineItem{}, err
	}
	return it, nil
}

// InsertCostItems writes the whole batch in a single transaction. Rows whose
// natural key already exists are skipped by ON CONFLICT DO NOTHING; the
// returned count covers only rows actually inserted. Any failure rolls the
// entire batch back, leaving the ledger untouched.
func (s *Store) InsertCostItems(ctx context.Context, items []costitem.CostLineItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tid := tenantFromCtx(ctx)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin cost batch: %v", domain.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i := range items {
		it := &items[i]
		tags, err := marshalMap(it.Tags)
		if err != nil {
			return 0, fmt.Errorf("marshal tags: %w", err)
		}
		metadata, err := marshalMap(it.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal metadata: %w", err)
		}
		batch.Queue(
			`INSERT INTO cost_items
			   (tenant_id, account_id, usage_date, provider, service, usage_type, amount, currency, resource_id, tags, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (tenant_id, account_id, usage_date, provider, service, usage_type, resource_id) DO NOTHING`,
			tid, it.AccountID, it.UsageDate, it.Provider, it.Service, it.UsageType,
			it.Amount, it.Currency, it.ResourceID, tags, metadata)
	}

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for range items {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, storeErr(err, "insert cost item")
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close cost batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit cost batch: %w", err)
	}
	return inserted, nil
}

// SumByService returns per-service spend totals for one account on one day.
func (s *Store) SumByService(ctx context.Context, accountID string, date time.Time) ([]costitem.ServiceCost, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT service, provider, SUM(amount)::float8 AS total
		 FROM cost_items
		 WHERE tenant_id = $1 AND account_id = $2 AND usage_date = $3
		 GROUP BY service, provider
		 ORDER BY total DESC`,
		tenantFromCtx(ctx), accountID, costitem.Day(date))
	if err != nil {
		return nil, storeErr(err, "sum by service")
	}
	defer rows.Close()

	var sums []costitem.ServiceCost
	for rows.Next() {
		var sc costitem.ServiceCost
		if err := rows.Scan(&sc.Service, &sc.Provider, &sc.Total); err != nil {
			return nil, fmt.Errorf("scan service sum: %w", err)
		}
		sums = append(sums, sc)
	}
	return sums, rows.Err()
}

// ServiceDailyTotals returns per-service daily totals over an inclusive
// range, one row per (day, service, provider) with any spend.
func (s *Store) ServiceDailyTotals(ctx context.Context, accountID string, r costitem.DateRange) ([]costitem.DailyServiceCost, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT usage_date, service, provider, SUM(amount)::float8 AS total
		 FROM cost_items
		 WHERE tenant_id = $1 AND account_id = $2 AND usage_date BETWEEN $3 AND $4
		 GROUP BY usage_date, service, provider
		 ORDER BY usage_date ASC`,
		tenantFromCtx(ctx), accountID, r.Start, r.End)
	if err != nil {
		return nil, storeErr(err, "service daily totals")
	}
	defer rows.Close()

	var totals []costitem.DailyServiceCost
	for rows.Next() {
		var dc costitem.DailyServiceCost
		if err := rows.Scan(&dc.Date, &dc.Service, &dc.Provider, &dc.Total); err != nil {
			return nil, fmt.Errorf("scan daily service total: %w", err)
		}
		totals = append(totals, dc)
	}
	return totals, rows.Err()
}

// FindCostItems returns the full line items for one account over an
// inclusive range, ordered by day.
func (s *Store) FindCostItems(ctx context.Context, accountID string, r costitem.DateRange) ([]costitem.CostLineItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+costItemColumns+`
		 FROM cost_items
		 WHERE tenant_id = $1 AND account_id = $2 AND usage_date BETWEEN $3 AND $4
		 ORDER BY usage_date ASC, service ASC`,
		tenantFromCtx(ctx), accountID, r.Start, r.End)
	if err != nil {
		return nil, storeErr(err, "find cost items")
	}
	defer rows.Close()

	var items []costitem.CostLineItem
	for rows.Next() {
		it, err := scanCostItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// DailyTotals returns one aggregated total per day over an inclusive range.
func (s *Store) DailyTotals(ctx context.Context, accountID string, r costitem.DateRange) ([]costitem.DailyCost, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT usage_date, SUM(amount)::float8 AS total
		 FROM cost_items
		 WHERE tenant_id = $1 AND account_id = $2 AND usage_date BETWEEN $3 AND $4
		 GROUP BY usage_date
		 ORDER BY usage_date ASC`,
		tenantFromCtx(ctx), accountID, r.Start, r.End)
	if err != nil {
		return nil, storeErr(err, "daily totals")
	}
	defer rows.Close()

	var totals []costitem.DailyCost
	for rows.Next() {
		var dc costitem.DailyCost
		if err := rows.Scan(&dc.Date, &dc.Total); err != nil {
			return nil, fmt.Errorf("scan daily total: %w", err)
		}
		totals = append(totals, dc)
	}
	return totals, rows.Err()
}
