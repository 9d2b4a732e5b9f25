// Package azurecost implements the cost provider port for Azure using the
// Cost Management query API with client-credential OAuth2.
package azurecost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spendsight/spendsight/internal/domain"
	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/port/costprovider"
)

const providerName = "azure"

const (
	defaultLoginURL      = "https://login.microsoftonline.com"
	defaultManagementURL = "https://management.azure.com"
	tokenScope           = "https://management.azure.com/.default"
	apiVersion           = "2023-03-01"
)

// Provider implements costprovider.Provider for Azure.
type Provider struct {
	subscriptionID string
	tenantID       string
	clientID       string
	clientSecret   string

	// Overridable in tests.
	loginURL      string
	managementURL string
	httpClient    *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewProvider creates an Azure provider from a decrypted credential map with
// subscription_id, tenant_id, client_id and client_secret.
func NewProvider(creds map[string]string) (*Provider, error) {
	for _, k := range []string{"subscription_id", "tenant_id", "client_id", "client_secret"} {
		if creds[k] == "" {
			return nil, fmt.Errorf("%w: azure requires %s", domain.ErrInvalidCredentials, k)
		}
	}
	return &Provider{
		subscriptionID: creds["subscription_id"],
		tenantID:       creds["tenant_id"],
		clientID:       creds["client_id"],
		clientSecret:   creds["client_secret"],
		loginURL:       defaultLoginURL,
		managementURL:  defaultManagementURL,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (p *Provider) Name() string { return providerName }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// authenticate obtains an access token from Azure AD, reusing a cached token
// until shortly before it expires.
func (p *Provider) authenticate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("scope", tokenScope)

	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", p.loginURL, p.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("azure token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("azure token request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: azure token endpoint returned %d", domain.ErrInvalidCredentials, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("azure token endpoint: status %d: %s", resp.StatusCode, body)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("azure token decode: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("%w: azure token endpoint returned empty token", domain.ErrInvalidCredentials)
	}

	p.token = tok.AccessToken
	// Refresh a minute early to avoid using a token at the expiry edge.
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return nil
}

// ValidateCredentials checks that the service principal can obtain a token.
func (p *Provider) ValidateCredentials(ctx context.Context) (bool, error) {
	if err := p.authenticate(ctx); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Cost Management query request and response shapes.
type queryRequest struct {
	Type       string           `json:"type"`
	Timeframe  string           `json:"timeframe"`
	TimePeriod *queryTimePeriod `json:"timePeriod,omitempty"`
	Dataset    queryDataset     `json:"dataset"`
}

type queryTimePeriod struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type queryDataset struct {
	Granularity string                      `json:"granularity"`
	Aggregation map[string]queryAggregation `json:"aggregation"`
	Grouping    []queryGrouping             `json:"grouping"`
}

type queryAggregation struct {
	Name     string `json:"name"`
	Function string `json:"function"`
}

type queryGrouping struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type queryResponse struct {
	Properties struct {
		NextLink string        `json:"nextLink"`
		Columns  []queryColumn `json:"columns"`
		Rows     [][]any       `json:"rows"`
	} `json:"properties"`
}

type queryColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// GetCosts fetches daily actual costs grouped by service, resource and meter.
func (p *Provider) GetCosts(ctx context.Context, r costitem.DateRange) ([]costprovider.RawCostRecord, error) {
	if err := p.authenticate(ctx); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	body := queryRequest{
		Type:      "ActualCost",
		Timeframe: "Custom",
		TimePeriod: &queryTimePeriod{
			From: r.Start.Format("2006-01-02"),
			To:   r.End.Format("2006-01-02"),
		},
		Dataset: queryDataset{
			Granularity: "Daily",
			Aggregation: map[string]queryAggregation{
				"totalCost": {Name: "Cost", Function: "Sum"},
			},
			Grouping: []queryGrouping{
				{Type: "Dimension", Name: "ServiceName"},
				{Type: "Dimension", Name: "ResourceId"},
				{Type: "Dimension", Name: "Meter"},
			},
		},
	}

	endpoint := fmt.Sprintf("%s/subscriptions/%s/providers/Microsoft.CostManagement/query?api-version=%s",
		p.managementURL, p.subscriptionID, apiVersion)

	var records []costprovider.RawCostRecord
	for endpoint != "" {
		resp, err := p.doQuery(ctx, endpoint, &body)
		if err != nil {
			return nil, err
		}
		records = append(records, parseRows(resp)...)
		endpoint = resp.Properties.NextLink
	}
	return records, nil
}

func (p *Provider) doQuery(ctx context.Context, endpoint string, body *queryRequest) (*queryResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("azure query marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("azure query request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: azure cost query: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: azure cost query read: %v", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: azure cost query: status %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, truncate(raw, 512))
	}

	var out queryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("azure query decode: %w", err)
	}
	return &out, nil
}

// parseRows maps the columnar response to raw records by column-name index.
// Rows with zero cost or an unparseable date are dropped.
func parseRows(resp *queryResponse) []costprovider.RawCostRecord {
	costIdx, dateIdx, serviceIdx, resourceIdx, meterIdx, currencyIdx := -1, -1, -1, -1, -1, -1
	for i, col := range resp.Properties.Columns {
		switch col.Name {
		case "Cost":
			costIdx = i
		case "UsageDate":
			dateIdx = i
		case "ServiceName":
			serviceIdx = i
		case "ResourceId":
			resourceIdx = i
		case "Meter":
			meterIdx = i
		case "Currency":
			currencyIdx = i
		}
	}
	if costIdx == -1 || dateIdx == -1 || serviceIdx == -1 {
		return nil
	}

	var records []costprovider.RawCostRecord
	for _, row := range resp.Properties.Rows {
		if len(row) <= costIdx || len(row) <= dateIdx || len(row) <= serviceIdx {
			continue
		}

		cost, ok := row[costIdx].(float64)
		if !ok || cost == 0 {
			continue
		}
		service, ok := row[serviceIdx].(string)
		if !ok {
			continue
		}
		date, ok := parseUsageDate(row[dateIdx])
		if !ok {
			continue
		}

		rec := costprovider.RawCostRecord{
			Date:     date,
			Service:  service,
			Amount:   cost,
			Currency: "USD",
		}
		if resourceIdx >= 0 && len(row) > resourceIdx {
			if rid, ok := row[resourceIdx].(string); ok {
				rec.ResourceID = rid
			}
		}
		if meterIdx >= 0 && len(row) > meterIdx {
			if meter, ok := row[meterIdx].(string); ok {
				rec.UsageType = meter
			}
		}
		if currencyIdx >= 0 && len(row) > currencyIdx {
			if curr, ok := row[currencyIdx].(string); ok && curr != "" {
				rec.Currency = curr
			}
		}
		records = append(records, rec)
	}
	return records
}

// parseUsageDate handles the two encodings the query API uses for daily
// granularity: a number like 20260801 or a date string.
func parseUsageDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case float64:
		t, err := time.Parse("20060102", fmt.Sprintf("%.0f", d))
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case string:
		for _, layout := range []string{"20060102", "2006-01-02", time.RFC3339} {
			if t, err := time.Parse(layout, d); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
