package service_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/spendsight/spendsight/internal/domain"
	"github.com/spendsight/spendsight/internal/domain/anomaly"
	"github.com/spendsight/spendsight/internal/domain/cloudaccount"
	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/domain/recommendation"
	"github.com/spendsight/spendsight/internal/middleware"
	"github.com/spendsight/spendsight/internal/port/costprovider"
	"github.com/spendsight/spendsight/internal/port/database"
	"github.com/spendsight/spendsight/internal/port/messagequeue"
)

// --- Shared mocks ---

var errMockNotFound = fmt.Errorf("mock: %w", domain.ErrNotFound)

var testKey = cloudaccount.DeriveKey("test-master-secret")

// mockStore is an in-memory database.Store with the same tenant scoping and
// dedup behavior as the postgres adapter.
type mockStore struct {
	mu        sync.Mutex
	accounts  []cloudaccount.CloudAccount
	items     []costitem.CostLineItem
	anomalies []anomaly.Anomaly
	recs      []recommendation.Recommendation
	syncedAt  map[string]time.Time

	insertErr        error
	syncTimeErr      error
	createRecErr     error
	findOpenErrByRes map[string]error

	dailyTotalsCalls  int
	sumByServiceCalls int
}

func newMockStore() *mockStore {
	return &mockStore{syncedAt: make(map[string]time.Time)}
}

func (m *mockStore) addAccount(provider string, blob []byte) cloudaccount.CloudAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := cloudaccount.CloudAccount{
		ID:                   fmt.Sprintf("acct-%d", len(m.accounts)+1),
		TenantID:             middleware.DefaultTenantID,
		Name:                 fmt.Sprintf("account %d", len(m.accounts)+1),
		Provider:             provider,
		Status:               cloudaccount.StatusActive,
		EncryptedCredentials: blob,
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}
	m.accounts = append(m.accounts, a)
	return a
}

func (m *mockStore) ListAccounts(ctx context.Context) ([]cloudaccount.CloudAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	var out []cloudaccount.CloudAccount
	for _, a := range m.accounts {
		if a.TenantID == tid {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockStore) ListActiveAccounts(ctx context.Context) ([]cloudaccount.CloudAccount, error) {
	accounts, _ := m.ListAccounts(ctx)
	var out []cloudaccount.CloudAccount
	for _, a := range accounts {
		if a.Active() {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListActiveAccountsAllTenants satisfies the scheduler's account source.
func (m *mockStore) ListActiveAccountsAllTenants(_ context.Context) ([]cloudaccount.CloudAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []cloudaccount.CloudAccount
	for _, a := range m.accounts {
		if a.Active() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockStore) GetAccount(ctx context.Context, id string) (*cloudaccount.CloudAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	for i := range m.accounts {
		if m.accounts[i].ID == id && m.accounts[i].TenantID == tid {
			a := m.accounts[i]
			return &a, nil
		}
	}
	return nil, errMockNotFound
}

func (m *mockStore) CreateAccount(ctx context.Context, a *cloudaccount.CloudAccount) (*cloudaccount.CloudAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := *a
	created.ID = fmt.Sprintf("acct-%d", len(m.accounts)+1)
	created.TenantID = middleware.TenantIDFromContext(ctx)
	created.CreatedAt = time.Now().UTC()
	created.UpdatedAt = created.CreatedAt
	m.accounts = append(m.accounts, created)
	return &created, nil
}

func (m *mockStore) DeleteAccount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	for i := range m.accounts {
		if m.accounts[i].ID == id && m.accounts[i].TenantID == tid {
			m.accounts = append(m.accounts[:i], m.accounts[i+1:]...)
			return nil
		}
	}
	return errMockNotFound
}

func (m *mockStore) UpdateAccountSyncTime(_ context.Context, id string, at time.Time) error {
	if m.syncTimeErr != nil {
		return m.syncTimeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncedAt[id] = at
	return nil
}

func itemKey(tid string, it *costitem.CostLineItem) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		tid, it.AccountID, it.UsageDate.Format("2006-01-02"),
		it.Provider, it.Service, it.UsageType, it.ResourceID)
}

func (m *mockStore) InsertCostItems(ctx context.Context, items []costitem.CostLineItem) (int, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	existing := make(map[string]struct{}, len(m.items))
	for i := range m.items {
		existing[itemKey(m.items[i].TenantID, &m.items[i])] = struct{}{}
	}
	inserted := 0
	for _, it := range items {
		it.TenantID = tid
		k := itemKey(tid, &it)
		if _, dup := existing[k]; dup {
			continue
		}
		existing[k] = struct{}{}
		m.items = append(m.items, it)
		inserted++
	}
	return inserted, nil
}

func (m *mockStore) itemsFor(ctx context.Context, accountID string, r costitem.DateRange) []costitem.CostLineItem {
	tid := middleware.TenantIDFromContext(ctx)
	var out []costitem.CostLineItem
	for _, it := range m.items {
		if it.TenantID != tid || it.AccountID != accountID {
			continue
		}
		if it.UsageDate.Before(r.Start) || it.UsageDate.After(r.End) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (m *mockStore) SumByService(ctx context.Context, accountID string, date time.Time) ([]costitem.ServiceCost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sumByServiceCalls++
	day := costitem.Day(date)
	sums := make(map[[2]string]float64)
	var order [][2]string
	for _, it := range m.itemsFor(ctx, accountID, costitem.DateRange{Start: day, End: day}) {
		k := [2]string{it.Service, it.Provider}
		if _, seen := sums[k]; !seen {
			order = append(order, k)
		}
		sums[k] += it.Amount
	}
	out := make([]costitem.ServiceCost, 0, len(order))
	for _, k := range order {
		out = append(out, costitem.ServiceCost{Service: k[0], Provider: k[1], Total: sums[k]})
	}
	return out, nil
}

func (m *mockStore) ServiceDailyTotals(ctx context.Context, accountID string, r costitem.DateRange) ([]costitem.DailyServiceCost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type rowKey struct {
		date              time.Time
		service, provider string
	}
	sums := make(map[rowKey]float64)
	var order []rowKey
	for _, it := range m.itemsFor(ctx, accountID, r) {
		k := rowKey{date: it.UsageDate, service: it.Service, provider: it.Provider}
		if _, seen := sums[k]; !seen {
			order = append(order, k)
		}
		sums[k] += it.Amount
	}
	out := make([]costitem.DailyServiceCost, 0, len(order))
	for _, k := range order {
		out = append(out, costitem.DailyServiceCost{Date: k.date, Service: k.service, Provider: k.provider, Total: sums[k]})
	}
	return out, nil
}

func (m *mockStore) FindCostItems(ctx context.Context, accountID string, r costitem.DateRange) ([]costitem.CostLineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.itemsFor(ctx, accountID, r), nil
}

func (m *mockStore) DailyTotals(ctx context.Context, accountID string, r costitem.DateRange) ([]costitem.DailyCost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyTotalsCalls++
	sums := make(map[time.Time]float64)
	var order []time.Time
	for _, it := range m.itemsFor(ctx, accountID, r) {
		if _, seen := sums[it.UsageDate]; !seen {
			order = append(order, it.UsageDate)
		}
		sums[it.UsageDate] += it.Amount
	}
	out := make([]costitem.DailyCost, 0, len(order))
	for _, d := range order {
		out = append(out, costitem.DailyCost{Date: d, Total: sums[d]})
	}
	return out, nil
}

func (m *mockStore) CreateAnomaly(ctx context.Context, a *anomaly.Anomaly) (*anomaly.Anomaly, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	for i := range m.anomalies {
		ex := &m.anomalies[i]
		if ex.TenantID == tid && ex.Service == a.Service && ex.UsageDate.Equal(a.UsageDate) && ex.Provider == a.Provider {
			return nil, fmt.Errorf("mock: %w", domain.ErrAlreadyExists)
		}
	}
	created := *a
	created.TenantID = tid
	created.Status = anomaly.StatusOpen
	m.anomalies = append(m.anomalies, created)
	return &created, nil
}

func (m *mockStore) FindAnomaly(ctx context.Context, service string, date time.Time, provider string) (*anomaly.Anomaly, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	for i := range m.anomalies {
		a := &m.anomalies[i]
		if a.TenantID == tid && a.Service == service && a.UsageDate.Equal(costitem.Day(date)) && a.Provider == provider {
			found := *a
			return &found, nil
		}
	}
	return nil, errMockNotFound
}

func (m *mockStore) ListAnomalies(ctx context.Context, f database.AnomalyFilter) ([]anomaly.Anomaly, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	var out []anomaly.Anomaly
	for _, a := range m.anomalies {
		if a.TenantID != tid {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if !f.From.IsZero() && a.UsageDate.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && a.UsageDate.After(f.To) {
			continue
		}
		out = append(out, a)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) UpdateAnomalyStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	for i := range m.anomalies {
		if m.anomalies[i].ID == id && m.anomalies[i].TenantID == tid {
			m.anomalies[i].Status = status
			return nil
		}
	}
	return errMockNotFound
}

func (m *mockStore) CreateRecommendation(ctx context.Context, r *recommendation.Recommendation) (*recommendation.Recommendation, error) {
	if m.createRecErr != nil {
		return nil, m.createRecErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	for i := range m.recs {
		ex := &m.recs[i]
		if ex.TenantID == tid && ex.ResourceID == r.ResourceID && ex.Type == r.Type && ex.Status == recommendation.StatusOpen {
			return nil, fmt.Errorf("mock: %w", domain.ErrAlreadyExists)
		}
	}
	created := *r
	created.TenantID = tid
	created.Status = recommendation.StatusOpen
	created.CreatedAt = time.Now().UTC()
	created.UpdatedAt = created.CreatedAt
	m.recs = append(m.recs, created)
	return &created, nil
}

func (m *mockStore) FindOpenRecommendation(ctx context.Context, resourceID, recType string) (*recommendation.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.findOpenErrByRes[resourceID]; err != nil {
		return nil, err
	}
	tid := middleware.TenantIDFromContext(ctx)
	for i := range m.recs {
		r := &m.recs[i]
		if r.TenantID == tid && r.ResourceID == resourceID && r.Type == recType && r.Status == recommendation.StatusOpen {
			found := *r
			return &found, nil
		}
	}
	return nil, errMockNotFound
}

func (m *mockStore) UpdateRecommendationEstimate(ctx context.Context, id string, savings float64, priority, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	for i := range m.recs {
		if m.recs[i].ID == id && m.recs[i].TenantID == tid {
			m.recs[i].EstimatedMonthlySavings = savings
			m.recs[i].Priority = priority
			m.recs[i].Description = description
			m.recs[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return errMockNotFound
}

func (m *mockStore) ListRecommendations(ctx context.Context, f database.RecommendationFilter) ([]recommendation.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	var out []recommendation.Recommendation
	for _, r := range m.recs {
		if r.TenantID != tid {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) UpdateRecommendationStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	for i := range m.recs {
		if m.recs[i].ID == id && m.recs[i].TenantID == tid {
			m.recs[i].Status = status
			return nil
		}
	}
	return errMockNotFound
}

func (m *mockStore) Ping(_ context.Context) error { return nil }

// mockQueue records published messages.
type mockQueue struct {
	mu       sync.Mutex
	messages []publishedMsg
}

type publishedMsg struct {
	Subject string
	Data    []byte
}

func (m *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMsg{Subject: subject, Data: data})
	return nil
}
func (m *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (m *mockQueue) Drain() error      { return nil }
func (m *mockQueue) Close() error      { return nil }
func (m *mockQueue) IsConnected() bool { return true }

func (m *mockQueue) lastMessage(subject string) (publishedMsg, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Subject == subject {
			return m.messages[i], true
		}
	}
	return publishedMsg{}, false
}

func (m *mockQueue) count(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.Subject == subject {
			n++
		}
	}
	return n
}

// --- Fake cost provider, registered once under the name "testcloud" ---

const testProviderName = "testcloud"

var fakeProviderSlot struct {
	mu       sync.Mutex
	provider costprovider.Provider
}

func init() {
	costprovider.Register(testProviderName, func(_ map[string]string) (costprovider.Provider, error) {
		fakeProviderSlot.mu.Lock()
		defer fakeProviderSlot.mu.Unlock()
		if fakeProviderSlot.provider == nil {
			return nil, errors.New("no test provider installed")
		}
		return fakeProviderSlot.provider, nil
	})
}

// installProvider wires p as the "testcloud" adapter for the duration of
// the test.
func installProvider(t *testing.T, p costprovider.Provider) {
	t.Helper()
	fakeProviderSlot.mu.Lock()
	fakeProviderSlot.provider = p
	fakeProviderSlot.mu.Unlock()
	t.Cleanup(func() {
		fakeProviderSlot.mu.Lock()
		fakeProviderSlot.provider = nil
		fakeProviderSlot.mu.Unlock()
	})
}

type mockProvider struct {
	mu            sync.Mutex
	validateOK    bool
	validateErr   error
	validateCalls int
	records       []costprovider.RawCostRecord
	costsErr      error
	costsCalls    int
}

func (p *mockProvider) Name() string { return testProviderName }

func (p *mockProvider) ValidateCredentials(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validateCalls++
	return p.validateOK, p.validateErr
}

func (p *mockProvider) GetCosts(_ context.Context, _ costitem.DateRange) ([]costprovider.RawCostRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.costsCalls++
	return p.records, p.costsErr
}

// sealedCreds encrypts a credential map with the shared test key.
func sealedCreds(t *testing.T, creds map[string]string) []byte {
	t.Helper()
	blob, err := cloudaccount.SealCredentials(creds, testKey)
	if err != nil {
		t.Fatalf("seal credentials: %v", err)
	}
	return blob
}

// day returns UTC midnight offset days from today.
func day(offset int) time.Time {
	return costitem.Day(time.Now().UTC()).AddDate(0, 0, offset)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

// seedDaily inserts one line item per day over [start, end] inclusive.
func seedDaily(t *testing.T, store *mockStore, accountID, svc string, start, end time.Time, amount float64) {
	t.Helper()
	var items []costitem.CostLineItem
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		items = append(items, costitem.CostLineItem{
			AccountID: accountID,
			UsageDate: d,
			Provider:  testProviderName,
			Service:   svc,
			UsageType: "usage",
			Amount:    amount,
			Currency:  "USD",
		})
	}
	if _, err := store.InsertCostItems(context.Background(), items); err != nil {
		t.Fatalf("seed items: %v", err)
	}
}
