package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	ssmcp "github.com/spendsight/spendsight/internal/adapter/mcp"
	"github.com/spendsight/spendsight/internal/domain/anomaly"
	"github.com/spendsight/spendsight/internal/domain/cloudaccount"
	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/domain/recommendation"
	"github.com/spendsight/spendsight/internal/port/database"
)

// --- Mocks ---

type mockAccountLister struct {
	accounts []cloudaccount.CloudAccount
	err      error
}

func (m *mockAccountLister) List(_ context.Context) ([]cloudaccount.CloudAccount, error) {
	return m.accounts, m.err
}

type mockCostReader struct {
	daily []costitem.DailyCost
	err   error
}

func (m *mockCostReader) DailyCosts(_ context.Context, _ string, _ costitem.DateRange) ([]costitem.DailyCost, error) {
	return m.daily, m.err
}

type mockAnomalyLister struct {
	anomalies  []anomaly.Anomaly
	lastFilter database.AnomalyFilter
	err        error
}

func (m *mockAnomalyLister) List(_ context.Context, f database.AnomalyFilter) ([]anomaly.Anomaly, error) {
	m.lastFilter = f
	return m.anomalies, m.err
}

type mockRecommendationLister struct {
	recs       []recommendation.Recommendation
	lastFilter database.RecommendationFilter
	err        error
}

func (m *mockRecommendationLister) List(_ context.Context, f database.RecommendationFilter) ([]recommendation.Recommendation, error) {
	m.lastFilter = f
	return m.recs, m.err
}

// --- Tests ---

func TestNewServer(t *testing.T) {
	cfg := ssmcp.ServerConfig{
		Addr:    ":3001",
		Name:    "test-server",
		Version: "0.1.0",
	}
	s := ssmcp.NewServer(cfg, ssmcp.ServerDeps{})
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.MCPServer() == nil {
		t.Fatal("MCPServer() returned nil")
	}
}

func TestServerStartStop(t *testing.T) {
	cfg := ssmcp.ServerConfig{
		Addr:    ":0",
		Name:    "test-server",
		Version: "0.1.0",
	}
	s := ssmcp.NewServer(cfg, ssmcp.ServerDeps{})

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestToolRegistration(t *testing.T) {
	s := ssmcp.NewServer(ssmcp.ServerConfig{Name: "test", Version: "0.1.0"}, ssmcp.ServerDeps{})

	tools := s.MCPServer().ListTools()
	if len(tools) != 4 {
		t.Fatalf("expected 4 tools, got %d", len(tools))
	}

	expectedTools := map[string]bool{
		"list_accounts":        false,
		"get_cost_summary":     false,
		"list_anomalies":       false,
		"list_recommendations": false,
	}
	for name := range tools {
		if _, ok := expectedTools[name]; ok {
			expectedTools[name] = true
		} else {
			t.Errorf("unexpected tool: %s", name)
		}
	}
	for name, found := range expectedTools {
		if !found {
			t.Errorf("expected tool %q not registered", name)
		}
	}
}

func TestHandleListAccounts(t *testing.T) {
	deps := ssmcp.ServerDeps{
		Accounts: &mockAccountLister{
			accounts: []cloudaccount.CloudAccount{
				{ID: "a1", Name: "prod", Provider: "aws"},
				{ID: "a2", Name: "staging", Provider: "gcp"},
			},
		},
	}
	s := ssmcp.NewServer(ssmcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)

	tools := s.MCPServer().ListTools()
	listTool, ok := tools["list_accounts"]
	if !ok {
		t.Fatal("list_accounts tool not found")
	}

	result, err := listTool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "list_accounts"},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	var accounts []cloudaccount.CloudAccount
	if err := json.Unmarshal([]byte(text.Text), &accounts); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
}

func TestHandleGetCostSummary(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	deps := ssmcp.ServerDeps{
		Costs: &mockCostReader{
			daily: []costitem.DailyCost{
				{Date: day, Total: 3.5},
				{Date: day.AddDate(0, 0, 1), Total: 1.5},
			},
		},
	}
	s := ssmcp.NewServer(ssmcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)

	tools := s.MCPServer().ListTools()
	costTool, ok := tools["get_cost_summary"]
	if !ok {
		t.Fatal("get_cost_summary tool not found")
	}

	result, err := costTool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "get_cost_summary",
			Arguments: map[string]any{"account_id": "a1", "days": float64(7)},
		},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	var summary struct {
		AccountID    string  `json:"account_id"`
		DaysWithData int     `json:"days_with_data"`
		Total        float64 `json:"total"`
	}
	if err := json.Unmarshal([]byte(text.Text), &summary); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if summary.AccountID != "a1" || summary.DaysWithData != 2 || summary.Total != 5.0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestHandleGetCostSummaryMissingArg(t *testing.T) {
	deps := ssmcp.ServerDeps{Costs: &mockCostReader{}}
	s := ssmcp.NewServer(ssmcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)

	tools := s.MCPServer().ListTools()
	costTool, ok := tools["get_cost_summary"]
	if !ok {
		t.Fatal("get_cost_summary tool not found")
	}

	result, err := costTool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "get_cost_summary"},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing account_id")
	}
}

func TestHandleListAnomaliesFilters(t *testing.T) {
	lister := &mockAnomalyLister{
		anomalies: []anomaly.Anomaly{
			{ID: "an1", Service: "Amazon EC2", Severity: "high", Status: anomaly.StatusOpen},
		},
	}
	s := ssmcp.NewServer(ssmcp.ServerConfig{Name: "test", Version: "0.1.0"}, ssmcp.ServerDeps{Anomalies: lister})

	tools := s.MCPServer().ListTools()
	anomalyTool, ok := tools["list_anomalies"]
	if !ok {
		t.Fatal("list_anomalies tool not found")
	}

	result, err := anomalyTool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "list_anomalies",
			Arguments: map[string]any{"status": "open", "severity": "high"},
		},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	if lister.lastFilter.Status != "open" || lister.lastFilter.Severity != "high" {
		t.Fatalf("filter not forwarded: %+v", lister.lastFilter)
	}
}

func TestHandleNilDeps(t *testing.T) {
	s := ssmcp.NewServer(ssmcp.ServerConfig{Name: "test", Version: "0.1.0"}, ssmcp.ServerDeps{})

	tools := s.MCPServer().ListTools()
	listTool, ok := tools["list_accounts"]
	if !ok {
		t.Fatal("list_accounts tool not found")
	}

	result, err := listTool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "list_accounts"},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result when deps are nil")
	}
}

func TestHandleListRecommendationsFilters(t *testing.T) {
	lister := &mockRecommendationLister{
		recs: []recommendation.Recommendation{
			{ID: "r1", Type: recommendation.TypeIdle, Status: recommendation.StatusOpen},
		},
	}
	s := ssmcp.NewServer(ssmcp.ServerConfig{Name: "test", Version: "0.1.0"}, ssmcp.ServerDeps{Recommendations: lister})

	tools := s.MCPServer().ListTools()
	recTool, ok := tools["list_recommendations"]
	if !ok {
		t.Fatal("list_recommendations tool not found")
	}

	result, err := recTool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "list_recommendations",
			Arguments: map[string]any{"status": "open", "type": "idle"},
		},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	if lister.lastFilter.Status != "open" || lister.lastFilter.Type != "idle" {
		t.Fatalf("filter not forwarded: %+v", lister.lastFilter)
	}

	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	var recs []recommendation.Recommendation
	if err := json.Unmarshal([]byte(text.Text), &recs); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "r1" {
		t.Fatalf("unexpected recommendations: %+v", recs)
	}
}
