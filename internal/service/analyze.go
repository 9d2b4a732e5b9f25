package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/spendsight/spendsight/internal/domain"
	"github.com/spendsight/spendsight/internal/domain/anomaly"
	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/port/database"
	"github.com/spendsight/spendsight/internal/port/messagequeue"
)

const defaultBaselineDays = 30

// BaselineService detects per-service spend anomalies against a trailing
// daily-mean baseline.
type BaselineService struct {
	db           database.Store
	queue        messagequeue.Queue
	baselineDays int
}

// NewBaselineService creates a new BaselineService. baselineDays is the
// trailing window length; values below 1 fall back to the default of 30.
func NewBaselineService(db database.Store, queue messagequeue.Queue, baselineDays int) *BaselineService {
	if baselineDays < 1 {
		baselineDays = defaultBaselineDays
	}
	return &BaselineService{db: db, queue: queue, baselineDays: baselineDays}
}

type serviceKey struct {
	service  string
	provider string
}

// Analyze compares each service's spend on the given date against the mean
// of its daily totals over the trailing window ending the day before. A
// deviation beyond the gate creates an open anomaly unless one already
// exists for (tenant, service, date, provider); existing rows are skipped
// silently, which makes the run idempotent. Services with no spend history
// never alarm.
func (s *BaselineService) Analyze(ctx context.Context, accountID string, date time.Time) (*anomaly.Report, error) {
	day := costitem.Day(date)

	account, err := s.db.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	actuals, err := s.db.SumByService(ctx, accountID, day)
	if err != nil {
		return nil, err
	}

	report := &anomaly.Report{AccountID: account.ID, Date: day}
	if len(actuals) == 0 {
		return report, nil
	}

	// Baseline window: the trailing baselineDays days ending the day before
	// the analysis date. The analysis date itself never contributes.
	window := costitem.DateRange{
		Start: day.AddDate(0, 0, -s.baselineDays),
		End:   day.AddDate(0, 0, -1),
	}
	history, err := s.db.ServiceDailyTotals(ctx, accountID, window)
	if err != nil {
		return nil, err
	}

	sums := make(map[serviceKey]float64)
	counts := make(map[serviceKey]int)
	for _, h := range history {
		k := serviceKey{service: h.Service, provider: h.Provider}
		sums[k] += h.Total
		counts[k]++
	}

	for _, actual := range actuals {
		if actual.Total <= 0 {
			continue
		}
		report.ServicesAnalyzed++

		k := serviceKey{service: actual.Service, provider: actual.Provider}
		// Mean over the window days that have data; days without rows do
		// not drag the baseline down.
		if counts[k] == 0 {
			continue
		}
		baseline := sums[k] / float64(counts[k])
		if baseline == 0 {
			continue
		}

		deviation := (actual.Total - baseline) / baseline * 100
		severity, alarming := anomaly.Classify(deviation)
		if !alarming {
			continue
		}

		if _, err := s.db.FindAnomaly(ctx, actual.Service, day, actual.Provider); err == nil {
			continue // already detected on an earlier run
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}

		created, err := s.db.CreateAnomaly(ctx, &anomaly.Anomaly{
			ID:           uuid.NewString(),
			AccountID:    account.ID,
			Provider:     actual.Provider,
			Service:      actual.Service,
			UsageDate:    day,
			ExpectedCost: baseline,
			ActualCost:   actual.Total,
			DeviationPct: deviation,
			Severity:     severity,
			Status:       anomaly.StatusOpen,
			DetectedAt:   time.Now().UTC(),
		})
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				continue // lost a race with a concurrent analyzer
			}
			return nil, err
		}

		report.AnomaliesDetected++
		report.Anomalies = append(report.Anomalies, *created)

		publishEvent(ctx, s.queue, messagequeue.SubjectAnomalyDetected, messagequeue.AnomalyDetectedPayload{
			TenantID:     created.TenantID,
			AnomalyID:    created.ID,
			Provider:     created.Provider,
			Service:      created.Service,
			Date:         day.Format("2006-01-02"),
			Severity:     created.Severity,
			ExpectedCost: created.ExpectedCost,
			ActualCost:   created.ActualCost,
		})
	}

	slog.Info("analysis completed",
		"account_id", account.ID,
		"date", day.Format("2006-01-02"),
		"services_analyzed", report.ServicesAnalyzed,
		"anomalies_detected", report.AnomaliesDetected)

	return report, nil
}
