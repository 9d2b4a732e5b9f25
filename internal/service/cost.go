package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/middleware"
	"github.com/spendsight/spendsight/internal/port/cache"
	"github.com/spendsight/spendsight/internal/port/database"
)

// CostService serves the dashboard's aggregated ledger reads through the
// tiered cache. Cache keys are tenant-scoped; a nil cache degrades to
// straight store reads.
type CostService struct {
	db    database.Store
	cache cache.Cache
	ttl   time.Duration
}

// NewCostService creates a new CostService.
func NewCostService(db database.Store, c cache.Cache, ttl time.Duration) *CostService {
	return &CostService{db: db, cache: c, ttl: ttl}
}

// DailyCosts returns the account's total spend per day over the range.
func (s *CostService) DailyCosts(ctx context.Context, accountID string, r costitem.DateRange) ([]costitem.DailyCost, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	key := s.cacheKey(ctx, "daily", accountID, r)
	var cached []costitem.DailyCost
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	totals, err := s.db.DailyTotals(ctx, accountID, r)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, key, totals)
	return totals, nil
}

// ServiceCosts returns the account's per-service spend totals for one day.
func (s *CostService) ServiceCosts(ctx context.Context, accountID string, date time.Time) ([]costitem.ServiceCost, error) {
	day := costitem.Day(date)
	r := costitem.DateRange{Start: day, End: day}

	key := s.cacheKey(ctx, "services", accountID, r)
	var cached []costitem.ServiceCost
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	sums, err := s.db.SumByService(ctx, accountID, day)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, key, sums)
	return sums, nil
}

// Items returns the raw ledger lines for the range, uncached.
func (s *CostService) Items(ctx context.Context, accountID string, r costitem.DateRange) ([]costitem.CostLineItem, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return s.db.FindCostItems(ctx, accountID, r)
}

func (s *CostService) cacheKey(ctx context.Context, kind, accountID string, r costitem.DateRange) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s",
		kind,
		middleware.TenantIDFromContext(ctx),
		accountID,
		r.Start.Format("2006-01-02"),
		r.End.Format("2006-01-02"))
}

// fromCache loads and decodes a cached value. Cache failures only log;
// reads fall through to the store.
func (s *CostService) fromCache(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.Warn("cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (s *CostService) toCache(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}
