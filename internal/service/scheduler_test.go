package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/middleware"
	"github.com/spendsight/spendsight/internal/port/costprovider"
	"github.com/spendsight/spendsight/internal/port/database"
	"github.com/spendsight/spendsight/internal/service"
)

func yesterdayRange() costitem.DateRange {
	return costitem.NewDateRange(day(-1), day(-1))
}

func newSchedulerEnv(t *testing.T, interval time.Duration) (*service.Scheduler, *mockStore, *mockQueue, *mockProvider) {
	t.Helper()
	store := newMockStore()
	queue := &mockQueue{}
	provider := &mockProvider{validateOK: true}
	installProvider(t, provider)

	collector := service.NewCollectionService(store, queue, testKey, nil, 0)
	analyzer := service.NewBaselineService(store, queue, 30)
	patterns := service.NewPatternService(store, 30)
	reconciler := service.NewReconcilerService(store, queue)
	sched := service.NewScheduler(store, collector, analyzer, patterns, reconciler, interval)
	return sched, store, queue, provider
}

func TestSchedulerRunOnce_FullSweep(t *testing.T) {
	sched, store, _, provider := newSchedulerEnv(t, time.Hour)
	account := store.addAccount(testProviderName, sealedCreds(t, map[string]string{"api_key": "k"}))

	// Yesterday's feed plus enough idle history for a recommendation.
	provider.records = []costprovider.RawCostRecord{
		rawRecord(day(-1), "Amazon Elastic Compute Cloud", "BoxUsage:t3.micro", 0.005),
	}
	seedResource(t, store, account.ID, "Amazon Elastic Compute Cloud", "BoxUsage:t3.micro", "i-0idle",
		day(-26), day(-2), 0.005, nil)
	provider.records[0].ResourceID = "i-0idle"

	sched.RunOnce(context.Background())

	// Collection ran: yesterday's row landed and the watermark moved.
	if _, ok := store.syncedAt[account.ID]; !ok {
		t.Fatal("expected collection to advance the watermark")
	}
	// Detection and reconciliation ran: the idle series became an open row.
	recs, err := store.ListRecommendations(context.Background(), database.RecommendationFilter{})
	if err != nil {
		t.Fatalf("ListRecommendations failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 recommendation after sweep, got %d", len(recs))
	}
}

func TestSchedulerRunOnce_ScopesEachTenant(t *testing.T) {
	sched, store, _, provider := newSchedulerEnv(t, time.Hour)

	blob := sealedCreds(t, map[string]string{"api_key": "k"})
	first := store.addAccount(testProviderName, blob)
	second := store.addAccount(testProviderName, blob)
	store.accounts[1].TenantID = "7d444840-9dc0-11d1-b245-5ffdce74fad2"

	provider.records = []costprovider.RawCostRecord{
		rawRecord(day(-1), "Amazon EC2", "BoxUsage:m5.large", 10.0),
	}

	sched.RunOnce(context.Background())

	// Each account's rows must land under its own tenant.
	ctxA := context.Background()
	ctxB := middleware.WithTenant(context.Background(), "7d444840-9dc0-11d1-b245-5ffdce74fad2")
	itemsA, _ := store.FindCostItems(ctxA, first.ID, yesterdayRange())
	itemsB, _ := store.FindCostItems(ctxB, second.ID, yesterdayRange())
	if len(itemsA) != 1 || len(itemsB) != 1 {
		t.Fatalf("expected one row per tenant, got %d / %d", len(itemsA), len(itemsB))
	}
	crossA, _ := store.FindCostItems(ctxB, first.ID, yesterdayRange())
	if len(crossA) != 0 {
		t.Fatal("expected tenant isolation on the ledger")
	}
}

func TestSchedulerStart_TicksUntilCancelled(t *testing.T) {
	sched, store, _, provider := newSchedulerEnv(t, 10*time.Millisecond)
	account := store.addAccount(testProviderName, sealedCreds(t, map[string]string{"api_key": "k"}))
	provider.records = []costprovider.RawCostRecord{
		rawRecord(day(-1), "Amazon EC2", "BoxUsage:m5.large", 10.0),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		_, synced := store.syncedAt[account.ID]
		store.mu.Unlock()
		if synced {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected a scheduled sweep before the deadline")
}

func TestSchedulerStart_ZeroIntervalDisabled(t *testing.T) {
	sched, store, _, provider := newSchedulerEnv(t, 0)
	account := store.addAccount(testProviderName, sealedCreds(t, map[string]string{"api_key": "k"}))
	provider.records = []costprovider.RawCostRecord{
		rawRecord(day(-1), "Amazon EC2", "BoxUsage:m5.large", 10.0),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	if _, ok := store.syncedAt[account.ID]; ok {
		t.Fatal("expected no sweeps with a zero interval")
	}
}
