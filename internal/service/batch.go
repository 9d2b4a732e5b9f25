package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/spendsight/spendsight/internal/domain/anomaly"
	"github.com/spendsight/spendsight/internal/domain/collection"
	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/domain/recommendation"
	"github.com/spendsight/spendsight/internal/parallel"
	"github.com/spendsight/spendsight/internal/port/database"
)

// BatchService fans collection, analysis, and recommendation generation out
// over every active account, bounded by a shared worker pool. Per-account
// failures are folded into that account's result slot; siblings always run
// to completion.
type BatchService struct {
	db         database.Store
	collector  *CollectionService
	analyzer   *BaselineService
	patterns   *PatternService
	reconciler *ReconcilerService
	pool       *parallel.Pool
}

// NewBatchService creates a new BatchService.
func NewBatchService(db database.Store, collector *CollectionService, analyzer *BaselineService, patterns *PatternService, reconciler *ReconcilerService, pool *parallel.Pool) *BatchService {
	return &BatchService{
		db:         db,
		collector:  collector,
		analyzer:   analyzer,
		patterns:   patterns,
		reconciler: reconciler,
		pool:       pool,
	}
}

// CollectAll collects the date range for every active account of the
// current tenant. The returned slice has one result per account in listing
// order; accounts whose run propagated an error carry it in their slot.
func (s *BatchService) CollectAll(ctx context.Context, r costitem.DateRange) ([]collection.Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	accounts, err := s.db.ListActiveAccounts(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]collection.Result, len(accounts))
	var wg sync.WaitGroup
	for i, account := range accounts {
		wg.Add(1)
		go func(idx int, accountID, provider string) {
			defer wg.Done()
			err := s.pool.Run(ctx, func() error {
				res, cerr := s.collector.Collect(ctx, accountID, r)
				if cerr != nil {
					return cerr
				}
				results[idx] = *res
				return nil
			})
			if err != nil {
				failed := collection.Result{AccountID: accountID, Provider: provider}
				failed.AddError(err.Error())
				results[idx] = failed
			}
		}(i, account.ID, account.Provider)
	}
	wg.Wait()

	return results, nil
}

// AnalyzeAll analyzes the given date for every active account of the
// current tenant. Accounts whose analysis propagated an error yield an
// empty report for their slot.
func (s *BatchService) AnalyzeAll(ctx context.Context, date time.Time) ([]anomaly.Report, error) {
	accounts, err := s.db.ListActiveAccounts(ctx)
	if err != nil {
		return nil, err
	}

	day := costitem.Day(date)
	reports := make([]anomaly.Report, len(accounts))
	var wg sync.WaitGroup
	for i, account := range accounts {
		wg.Add(1)
		go func(idx int, accountID string) {
			defer wg.Done()
			err := s.pool.Run(ctx, func() error {
				rep, aerr := s.analyzer.Analyze(ctx, accountID, day)
				if aerr != nil {
					return aerr
				}
				reports[idx] = *rep
				return nil
			})
			if err != nil {
				slog.Warn("analysis failed", "account_id", accountID, "error", err)
				reports[idx] = anomaly.Report{AccountID: accountID, Date: day}
			}
		}(i, account.ID)
	}
	wg.Wait()

	return reports, nil
}

// GenerateAll builds recommendation candidates for every active account of
// the current tenant and reconciles them in one pass. Accounts whose
// generation failed are noted in the result errors.
func (s *BatchService) GenerateAll(ctx context.Context) (*recommendation.ReconcileResult, error) {
	accounts, err := s.db.ListActiveAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu         sync.Mutex
		candidates []recommendation.Candidate
		failures   []string
	)
	var wg sync.WaitGroup
	for _, account := range accounts {
		wg.Add(1)
		go func(accountID string) {
			defer wg.Done()
			err := s.pool.Run(ctx, func() error {
				cands, gerr := s.patterns.Generate(ctx, accountID)
				if gerr != nil {
					return gerr
				}
				mu.Lock()
				candidates = append(candidates, cands...)
				mu.Unlock()
				return nil
			})
			if err != nil {
				slog.Warn("recommendation generation failed", "account_id", accountID, "error", err)
				mu.Lock()
				failures = append(failures, accountID+": "+err.Error())
				mu.Unlock()
			}
		}(account.ID)
	}
	wg.Wait()

	result := s.reconciler.Reconcile(ctx, candidates)
	result.Errors = append(result.Errors, failures...)
	return result, nil
}
