package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spendsight/spendsight/internal/domain/cloudaccount"
	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/domain/recommendation"
	"github.com/spendsight/spendsight/internal/port/database"
)

const defaultWindowDays = 30

// PatternService scans the recent cost ledger for savings opportunities.
// Generation is read-only; persisting candidates is the reconciler's job.
type PatternService struct {
	db         database.Store
	windowDays int
}

// NewPatternService creates a new PatternService. windowDays is the trailing
// ledger window detectors look at; values below 1 fall back to the default of 30.
func NewPatternService(db database.Store, windowDays int) *PatternService {
	if windowDays < 1 {
		windowDays = defaultWindowDays
	}
	return &PatternService{db: db, windowDays: windowDays}
}

// resourceSeries is the per-resource daily cost history the detectors
// work from. Only lines attributable to a concrete resource ID are grouped;
// account-level cost lines are never actionable.
type resourceSeries struct {
	accountID  string
	service    string
	provider   string
	resourceID string
	family     string
	daily      map[time.Time]float64
	tags       map[string]string
	reserved   bool
}

func (rs *resourceSeries) days() int { return len(rs.daily) }

func (rs *resourceSeries) total() float64 {
	var sum float64
	for _, v := range rs.daily {
		sum += v
	}
	return sum
}

func (rs *resourceSeries) avgDaily() float64 {
	if len(rs.daily) == 0 {
		return 0
	}
	return rs.total() / float64(len(rs.daily))
}

func (rs *resourceSeries) dates() []time.Time {
	ds := make([]time.Time, 0, len(rs.daily))
	for d := range rs.daily {
		ds = append(ds, d)
	}
	return ds
}

func (rs *resourceSeries) values() []float64 {
	vs := make([]float64, 0, len(rs.daily))
	for _, v := range rs.daily {
		vs = append(vs, v)
	}
	return vs
}

// Generate runs the five pattern detectors over the trailing ledger window
// for one account, or for every active account when accountID is empty.
// The window ends on the last complete day (yesterday). The detectors are
// independent and read-only, so they run concurrently per account.
func (s *PatternService) Generate(ctx context.Context, accountID string) ([]recommendation.Candidate, error) {
	var accounts []cloudaccount.CloudAccount
	if accountID != "" {
		a, err := s.db.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		accounts = []cloudaccount.CloudAccount{*a}
	} else {
		var err error
		accounts, err = s.db.ListActiveAccounts(ctx)
		if err != nil {
			return nil, err
		}
	}

	end := costitem.Day(time.Now().UTC()).AddDate(0, 0, -1)
	window := costitem.NewDateRange(end.AddDate(0, 0, -(s.windowDays-1)), end)

	var all []recommendation.Candidate
	for i := range accounts {
		account := &accounts[i]

		items, err := s.db.FindCostItems(ctx, account.ID, window)
		if err != nil {
			return nil, err
		}

		series := groupByResource(account.ID, items)
		if len(series) == 0 {
			continue
		}
		computeIDs := make(map[string]struct{})
		for _, rs := range series {
			if rs.family == familyCompute {
				computeIDs[rs.resourceID] = struct{}{}
			}
		}

		found := make([][]recommendation.Candidate, 5)
		var g errgroup.Group
		g.Go(func() error { found[0] = detectIdle(series); return nil })
		g.Go(func() error { found[1] = detectUnusedStorage(series, computeIDs); return nil })
		g.Go(func() error { found[2] = detectStaleSnapshots(series); return nil })
		g.Go(func() error { found[3] = detectRightsizing(series); return nil })
		g.Go(func() error { found[4] = detectReservedCapacity(series); return nil })
		if err := g.Wait(); err != nil {
			return nil, err
		}

		n := len(all)
		for _, cands := range found {
			all = append(all, cands...)
		}
		slog.Info("pattern detection completed",
			"account_id", account.ID,
			"resources", len(series),
			"candidates", len(all)-n)
	}

	return all, nil
}

// groupByResource folds line items into per-resource daily series. Lines
// without a concrete resource ID are dropped: there is nothing to act on.
func groupByResource(accountID string, items []costitem.CostLineItem) []*resourceSeries {
	type seriesKey struct {
		service    string
		provider   string
		resourceID string
	}

	grouped := make(map[seriesKey]*resourceSeries)
	var order []seriesKey
	for i := range items {
		it := &items[i]
		if it.ResourceID == "" || it.ResourceID == "unknown" {
			continue
		}

		k := seriesKey{service: it.Service, provider: it.Provider, resourceID: it.ResourceID}
		rs, ok := grouped[k]
		if !ok {
			rs = &resourceSeries{
				accountID:  accountID,
				service:    it.Service,
				provider:   it.Provider,
				resourceID: it.ResourceID,
				family:     familyOther,
				daily:      make(map[time.Time]float64),
				tags:       make(map[string]string),
			}
			grouped[k] = rs
			order = append(order, k)
		}

		rs.daily[it.UsageDate] += it.Amount
		for tk, tv := range it.Tags {
			if _, exists := rs.tags[tk]; !exists {
				rs.tags[tk] = tv
			}
		}
		if f := resourceFamily(it.Service, it.UsageType); rs.family == familyOther && f != familyOther {
			rs.family = f
		}
		if strings.Contains(strings.ToLower(it.UsageType), "reserved") {
			rs.reserved = true
		}
	}

	out := make([]*resourceSeries, 0, len(grouped))
	for _, k := range order {
		out = append(out, grouped[k])
	}
	return out
}

// isIdle reports whether a compute resource's average daily spend sits
// under the activity ratio of the cheapest powered-on tier.
func isIdle(rs *resourceSeries) bool {
	return rs.avgDaily()/minComputeDailyRunCost < idleActivityRatio
}

func detectIdle(series []*resourceSeries) []recommendation.Candidate {
	var out []recommendation.Candidate
	for _, rs := range series {
		if rs.family != familyCompute || rs.days() < idleMinDays || !isIdle(rs) {
			continue
		}
		avg := rs.avgDaily()
		savings := avg * monthDays * idleRecoveryFactor
		out = append(out, candidate(rs, recommendation.TypeIdle, savings,
			fmt.Sprintf("Resource %s averaged $%.4f/day over %d days, under %.0f%% of its minimum running cost. Stopping or terminating it would recover most of the spend.",
				rs.resourceID, avg, rs.days(), idleActivityRatio*100),
			map[string]string{
				"avg_daily_cost": formatAmount(avg),
				"days_observed":  strconv.Itoa(rs.days()),
			}))
	}
	return out
}

func detectUnusedStorage(series []*resourceSeries, computeIDs map[string]struct{}) []recommendation.Candidate {
	var out []recommendation.Candidate
	for _, rs := range series {
		if rs.family != familyStorage || rs.days() < unusedMinDays {
			continue
		}
		if _, attached := computeIDs[rs.resourceID]; attached {
			continue
		}
		savings := rs.avgDaily() * monthDays
		if savings <= minUnusedMonthly {
			continue
		}
		out = append(out, candidate(rs, recommendation.TypeUnused, savings,
			fmt.Sprintf("Storage resource %s has carried cost for %d days with no paired compute activity. Deleting or archiving it saves about $%.2f/month.",
				rs.resourceID, rs.days(), savings),
			map[string]string{
				"avg_daily_cost": formatAmount(rs.avgDaily()),
				"days_observed":  strconv.Itoa(rs.days()),
			}))
	}
	return out
}

func detectStaleSnapshots(series []*resourceSeries) []recommendation.Candidate {
	var out []recommendation.Candidate
	for _, rs := range series {
		if rs.family != familySnapshot || rs.days() < staleMinDays {
			continue
		}
		savings := rs.avgDaily() * monthDays
		if savings <= minStaleMonthly {
			continue
		}
		out = append(out, candidate(rs, recommendation.TypeStaleSnapshot, savings,
			fmt.Sprintf("Snapshot %s has been billed on %d of the last %d days. Pruning it saves about $%.2f/month.",
				rs.resourceID, rs.days(), monthDays, savings),
			map[string]string{
				"days_observed": strconv.Itoa(rs.days()),
			}))
	}
	return out
}

func detectRightsizing(series []*resourceSeries) []recommendation.Candidate {
	var out []recommendation.Candidate
	for _, rs := range series {
		if rs.family != familyCompute || rs.days() < rightsizeMinDays || isIdle(rs) {
			continue
		}
		if _, variation := meanAndVariation(rs.values()); variation > maxSteadyVariation {
			continue
		}
		size, ok := sizeFromTags(rs.tags)
		if !ok {
			continue
		}
		below, ok := tierBelow(size)
		if !ok {
			continue
		}
		current, target := onDemandHourly[size], onDemandHourly[below]
		if target >= current {
			continue
		}
		savings := (current - target) * hoursPerDay * monthDays
		out = append(out, candidate(rs, recommendation.TypeRightsize, savings,
			fmt.Sprintf("Resource %s runs a steady load as %s; the %s tier covers it at a lower unit price, saving about $%.2f/month.",
				rs.resourceID, size, below, savings),
			map[string]string{
				"current_size": size,
				"target_size":  below,
			}))
	}
	return out
}

func detectReservedCapacity(series []*resourceSeries) []recommendation.Candidate {
	var out []recommendation.Candidate
	for _, rs := range series {
		if rs.family != familyCompute || rs.reserved {
			continue
		}
		avg := rs.avgDaily()
		if avg <= minReservedAvgDaily {
			continue
		}
		streak := longestConsecutiveRun(rs.dates())
		if streak < reservedRunDays {
			continue
		}
		savings := avg * monthDays * reservedDiscount
		out = append(out, candidate(rs, recommendation.TypeReservedCapacity, savings,
			fmt.Sprintf("Resource %s ran on demand for %d consecutive days at $%.2f/day. A reserved commitment saves about %.0f%%.",
				rs.resourceID, streak, avg, reservedDiscount*100),
			map[string]string{
				"avg_daily_cost":   formatAmount(avg),
				"consecutive_days": strconv.Itoa(streak),
			}))
	}
	return out
}

func candidate(rs *resourceSeries, recType string, savings float64, description string, metadata map[string]string) recommendation.Candidate {
	return recommendation.Candidate{
		AccountID:               rs.accountID,
		Type:                    recType,
		Provider:                rs.provider,
		Service:                 rs.service,
		ResourceID:              rs.resourceID,
		EstimatedMonthlySavings: savings,
		Priority:                recommendation.PriorityForSavings(savings),
		Description:             description,
		Metadata:                metadata,
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
