package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/spendsight/spendsight/internal/domain/cloudaccount"
	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/middleware"
)

// accountSource lists active accounts across every tenant. Satisfied by the
// concrete postgres store; the tenant-scoped Store interface deliberately
// does not expose this.
type accountSource interface {
	ListActiveAccountsAllTenants(ctx context.Context) ([]cloudaccount.CloudAccount, error)
}

// Scheduler is the optional in-process stand-in for an external job
// scheduler: every interval it collects yesterday's costs for all active
// accounts, analyzes the same day, and refreshes recommendations per tenant.
type Scheduler struct {
	accounts   accountSource
	collector  *CollectionService
	analyzer   *BaselineService
	patterns   *PatternService
	reconciler *ReconcilerService
	interval   time.Duration
}

// NewScheduler creates a new Scheduler. A zero interval disables it.
func NewScheduler(accounts accountSource, collector *CollectionService, analyzer *BaselineService, patterns *PatternService, reconciler *ReconcilerService, interval time.Duration) *Scheduler {
	return &Scheduler{
		accounts:   accounts,
		collector:  collector,
		analyzer:   analyzer,
		patterns:   patterns,
		reconciler: reconciler,
		interval:   interval,
	}
}

// Start launches the scheduler loop in a background goroutine. It stops
// when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	slog.Info("scheduler started", "interval", s.interval)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce processes the last complete day for every active account, then
// refreshes recommendations once per tenant seen. Failures are logged and
// never stop the sweep. Also callable directly for a one-shot sweep from
// the admin CLI.
func (s *Scheduler) RunOnce(ctx context.Context) {
	yesterday := costitem.Day(time.Now().UTC()).AddDate(0, 0, -1)
	window := costitem.NewDateRange(yesterday, yesterday)

	accounts, err := s.accounts.ListActiveAccountsAllTenants(ctx)
	if err != nil {
		slog.Error("scheduler could not list accounts", "error", err)
		return
	}

	tenants := make(map[string]struct{})
	for _, account := range accounts {
		actx := middleware.WithTenant(ctx, account.TenantID)
		tenants[account.TenantID] = struct{}{}

		if _, err := s.collector.Collect(actx, account.ID, window); err != nil {
			slog.Warn("scheduled collection failed", "account_id", account.ID, "error", err)
			continue
		}
		if _, err := s.analyzer.Analyze(actx, account.ID, yesterday); err != nil {
			slog.Warn("scheduled analysis failed", "account_id", account.ID, "error", err)
		}
	}

	for tenantID := range tenants {
		tctx := middleware.WithTenant(ctx, tenantID)
		candidates, err := s.patterns.Generate(tctx, "")
		if err != nil {
			slog.Warn("scheduled pattern detection failed", "tenant_id", tenantID, "error", err)
			continue
		}
		s.reconciler.Reconcile(tctx, candidates)
	}

	slog.Info("scheduler sweep completed", "accounts", len(accounts), "tenants", len(tenants))
}
