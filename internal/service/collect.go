package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/spendsight/spendsight/internal/domain"
	"github.com/spendsight/spendsight/internal/domain/cloudaccount"
	"github.com/spendsight/spendsight/internal/domain/collection"
	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/middleware"
	"github.com/spendsight/spendsight/internal/port/costprovider"
	"github.com/spendsight/spendsight/internal/port/database"
	"github.com/spendsight/spendsight/internal/port/messagequeue"
	"github.com/spendsight/spendsight/internal/resilience"
)

// CollectionService orchestrates cost ingestion for one account at a time.
type CollectionService struct {
	db      database.Store
	queue   messagequeue.Queue
	key     []byte
	breaker *resilience.Breaker
	timeout time.Duration
}

// NewCollectionService creates a new CollectionService. The breaker wraps
// every upstream billing API call; a nil breaker disables shedding. A zero
// timeout disables the per-run deadline.
func NewCollectionService(db database.Store, queue messagequeue.Queue, encryptionKey []byte, breaker *resilience.Breaker, timeout time.Duration) *CollectionService {
	return &CollectionService{db: db, queue: queue, key: encryptionKey, breaker: breaker, timeout: timeout}
}

// Collect runs the full ingestion pipeline for one account and date range:
// decrypt credentials, fetch raw daily costs from the provider, normalize,
// and write one atomic dedup batch. Any failure before the insert persists
// nothing and leaves the sync watermark untouched; the cause lands in the
// result's error list. The returned error is non-nil only when the account
// lookup or the store itself fails.
func (s *CollectionService) Collect(ctx context.Context, accountID string, r costitem.DateRange) (*collection.Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	account, err := s.db.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result := &collection.Result{AccountID: account.ID, Provider: account.Provider, Success: true}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	creds, err := cloudaccount.OpenCredentials(account.EncryptedCredentials, s.key)
	if err != nil {
		result.AddError(fmt.Sprintf("decrypt credentials: %v", err))
		return s.finish(ctx, result, started), nil
	}

	provider, err := costprovider.New(account.Provider, creds)
	if err != nil {
		result.AddError(fmt.Sprintf("resolve provider: %v", err))
		return s.finish(ctx, result, started), nil
	}

	var valid bool
	err = s.protect(func() error {
		var verr error
		valid, verr = provider.ValidateCredentials(ctx)
		return verr
	})
	if err != nil {
		result.AddError(fmt.Sprintf("validate credentials: %v", err))
		return s.finish(ctx, result, started), nil
	}
	if !valid {
		result.AddError(domain.ErrInvalidCredentials.Error())
		return s.finish(ctx, result, started), nil
	}

	var records []costprovider.RawCostRecord
	err = s.protect(func() error {
		var ferr error
		records, ferr = provider.GetCosts(ctx, r)
		return ferr
	})
	if err != nil {
		result.AddError(fmt.Sprintf("fetch costs: %v", err))
		return s.finish(ctx, result, started), nil
	}
	result.RecordsObtained = len(records)

	tenantID := middleware.TenantIDFromContext(ctx)
	items := make([]costitem.CostLineItem, 0, len(records))
	for i, rec := range records {
		item := costitem.CostLineItem{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			AccountID:  account.ID,
			UsageDate:  costitem.Day(rec.Date),
			Provider:   account.Provider,
			Service:    rec.Service,
			UsageType:  rec.UsageType,
			Amount:     rec.Amount,
			Currency:   rec.Currency,
			ResourceID: rec.ResourceID,
			Tags:       rec.Tags,
			Metadata:   rec.Metadata,
		}
		if err := item.Validate(); err != nil {
			// One malformed record aborts the run before the insert; a
			// partial failure must persist nothing.
			result.AddError(fmt.Sprintf("record %d: %v", i, err))
			return s.finish(ctx, result, started), nil
		}
		items = append(items, item)
	}

	saved, err := s.db.InsertCostItems(ctx, items)
	if err != nil {
		return nil, err
	}
	result.RecordsSaved = saved

	if err := s.db.UpdateAccountSyncTime(ctx, account.ID, time.Now().UTC()); err != nil {
		return nil, err
	}

	return s.finish(ctx, result, started), nil
}

// protect routes a provider call through the circuit breaker when one is
// configured.
func (s *CollectionService) protect(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(fn)
}

// finish stamps the duration, logs the outcome, and emits the completion
// event. Runs that end in a propagated store error never reach here.
func (s *CollectionService) finish(ctx context.Context, result *collection.Result, started time.Time) *collection.Result {
	result.DurationMS = time.Since(started).Milliseconds()

	if result.Success {
		slog.Info("collection completed",
			"account_id", result.AccountID,
			"provider", result.Provider,
			"records_obtained", result.RecordsObtained,
			"records_saved", result.RecordsSaved,
			"duration_ms", result.DurationMS)
	} else {
		slog.Warn("collection failed",
			"account_id", result.AccountID,
			"provider", result.Provider,
			"errors", result.Errors,
			"duration_ms", result.DurationMS)
	}

	publishEvent(ctx, s.queue, messagequeue.SubjectCollectionCompleted, messagequeue.CollectionCompletedPayload{
		TenantID:     middleware.TenantIDFromContext(ctx),
		AccountID:    result.AccountID,
		Provider:     result.Provider,
		Success:      result.Success,
		RecordsSaved: result.RecordsSaved,
		DurationMS:   result.DurationMS,
	})

	return result
}
