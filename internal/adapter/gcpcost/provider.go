// Package gcpcost implements the cost provider port for GCP by querying the
// BigQuery billing export with a service account key.
package gcpcost

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spendsight/spendsight/internal/domain"
	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/port/costprovider"
)

const providerName = "gcp"

const (
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultBigQueryURL = "https://bigquery.googleapis.com"
	tokenScope         = "https://www.googleapis.com/auth/bigquery.readonly"
)

// serviceAccountKey is the subset of a GCP service account JSON key this
// adapter needs.
type serviceAccountKey struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri"`
}

// Provider implements costprovider.Provider for GCP.
type Provider struct {
	key         serviceAccountKey
	signingKey  *rsa.PrivateKey
	exportTable string

	// Overridable in tests.
	bigqueryURL string
	httpClient  *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewProvider creates a GCP provider from a decrypted credential map with
// service_account_key (the JSON key file content) and billing_export_table
// (the fully qualified detailed billing export table).
func NewProvider(creds map[string]string) (*Provider, error) {
	saJSON := creds["service_account_key"]
	table := creds["billing_export_table"]
	if saJSON == "" || table == "" {
		return nil, fmt.Errorf("%w: gcp requires service_account_key and billing_export_table", domain.ErrInvalidCredentials)
	}

	var key serviceAccountKey
	if err := json.Unmarshal([]byte(saJSON), &key); err != nil {
		return nil, fmt.Errorf("%w: gcp service account key is not valid JSON", domain.ErrInvalidCredentials)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" || key.ProjectID == "" {
		return nil, fmt.Errorf("%w: gcp service account key is incomplete", domain.ErrInvalidCredentials)
	}
	if key.TokenURI == "" {
		key.TokenURI = defaultTokenURL
	}

	signingKey, err := parsePrivateKey(key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: gcp private key: %v", domain.ErrInvalidCredentials, err)
	}

	return &Provider{
		key:         key,
		signingKey:  signingKey,
		exportTable: table,
		bigqueryURL: defaultBigQueryURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if k, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("not an RSA key")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func (p *Provider) Name() string { return providerName }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// signedAssertion builds the RS256 JWT required by the service account
// token exchange.
func (p *Provider) signedAssertion(now time.Time) (string, error) {
	b64 := base64.RawURLEncoding
	header := b64.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))

	claims, err := json.Marshal(map[string]any{
		"iss":   p.key.ClientEmail,
		"scope": tokenScope,
		"aud":   p.key.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	if err != nil {
		return "", err
	}

	signingInput := header + "." + b64.EncodeToString(claims)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, p.signingKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return signingInput + "." + b64.EncodeToString(sig), nil
}

// authenticate exchanges a signed JWT for an access token, reusing a cached
// token until shortly before it expires.
func (p *Provider) authenticate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return nil
	}

	assertion, err := p.signedAssertion(time.Now())
	if err != nil {
		return fmt.Errorf("gcp token assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.key.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("gcp token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gcp token request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: gcp token endpoint returned %d", domain.ErrInvalidCredentials, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gcp token endpoint: status %d: %s", resp.StatusCode, body)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("gcp token decode: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("%w: gcp token endpoint returned empty token", domain.ErrInvalidCredentials)
	}

	p.token = tok.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return nil
}

// ValidateCredentials checks that the service account can obtain a token.
func (p *Provider) ValidateCredentials(ctx context.Context) (bool, error) {
	if err := p.authenticate(ctx); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// BigQuery REST query request and response shapes.
type bigQueryRequest struct {
	Query        string `json:"query"`
	UseLegacySQL bool   `json:"useLegacySql"`
	MaxResults   int    `json:"maxResults,omitempty"`
	TimeoutMs    int    `json:"timeoutMs,omitempty"`
}

type bigQueryResponse struct {
	Schema struct {
		Fields []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
	} `json:"schema"`
	Rows []struct {
		F []struct {
			V any `json:"v"`
		} `json:"f"`
	} `json:"rows"`
	JobComplete bool `json:"jobComplete"`
}

// GetCosts queries the detailed billing export for daily costs per service,
// SKU and resource.
func (p *Provider) GetCosts(ctx context.Context, r costitem.DateRange) ([]costprovider.RawCostRecord, error) {
	if err := p.authenticate(ctx); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	query := fmt.Sprintf(`SELECT
  FORMAT_DATE('%%Y-%%m-%%d', DATE(usage_start_time)) AS usage_date,
  service.description AS service,
  sku.description AS usage_type,
  IFNULL(resource.name, '') AS resource_id,
  SUM(cost) AS amount,
  currency
FROM `+"`%s`"+`
WHERE DATE(usage_start_time) BETWEEN '%s' AND '%s'
GROUP BY usage_date, service, usage_type, resource_id, currency
HAVING SUM(cost) != 0`,
		p.exportTable, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))

	payload, err := json.Marshal(bigQueryRequest{
		Query:        query,
		UseLegacySQL: false,
		MaxResults:   10000,
		TimeoutMs:    30000,
	})
	if err != nil {
		return nil, fmt.Errorf("gcp query marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bigquery/v2/projects/%s/queries", p.bigqueryURL, p.key.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gcp query request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: gcp bigquery: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: gcp bigquery read: %v", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gcp bigquery: status %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, truncate(raw, 512))
	}

	var out bigQueryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("gcp bigquery decode: %w", err)
	}

	return parseBigQueryRows(&out), nil
}

// parseBigQueryRows maps the positional row encoding to raw records using the
// schema field order. BigQuery returns every cell as a string.
func parseBigQueryRows(resp *bigQueryResponse) []costprovider.RawCostRecord {
	dateIdx, serviceIdx, usageIdx, resourceIdx, amountIdx, currencyIdx := -1, -1, -1, -1, -1, -1
	for i, f := range resp.Schema.Fields {
		switch f.Name {
		case "usage_date":
			dateIdx = i
		case "service":
			serviceIdx = i
		case "usage_type":
			usageIdx = i
		case "resource_id":
			resourceIdx = i
		case "amount":
			amountIdx = i
		case "currency":
			currencyIdx = i
		}
	}
	if dateIdx == -1 || serviceIdx == -1 || amountIdx == -1 {
		return nil
	}

	cell := func(row []struct {
		V any `json:"v"`
	}, idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		s, _ := row[idx].V.(string)
		return s
	}

	var records []costprovider.RawCostRecord
	for _, row := range resp.Rows {
		date, err := time.Parse("2006-01-02", cell(row.F, dateIdx))
		if err != nil {
			continue
		}
		amount, err := strconv.ParseFloat(cell(row.F, amountIdx), 64)
		if err != nil || amount == 0 {
			continue
		}
		service := cell(row.F, serviceIdx)
		if service == "" {
			continue
		}

		currency := cell(row.F, currencyIdx)
		if currency == "" {
			currency = "USD"
		}

		records = append(records, costprovider.RawCostRecord{
			Date:       date,
			Service:    service,
			UsageType:  cell(row.F, usageIdx),
			ResourceID: cell(row.F, resourceIdx),
			Amount:     amount,
			Currency:   currency,
		})
	}
	return records
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
