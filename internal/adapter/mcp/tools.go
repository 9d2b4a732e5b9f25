package mcp

import (
	"context"
	"encoding/json"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/port/database"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listAccountsTool(),
		s.getCostSummaryTool(),
		s.listAnomaliesTool(),
		s.listRecommendationsTool(),
	)
}

func (s *Server) listAccountsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_accounts",
		mcplib.WithDescription("List all registered cloud billing accounts"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListAccounts,
	}
}

func (s *Server) getCostSummaryTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_cost_summary",
		mcplib.WithDescription("Get daily spend totals for one account over a trailing window"),
		mcplib.WithString("account_id",
			mcplib.Required(),
			mcplib.Description("The cloud account to summarize"),
		),
		mcplib.WithNumber("days",
			mcplib.Description("Window length in days, ending yesterday (default 30)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetCostSummary,
	}
}

func (s *Server) listAnomaliesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_anomalies",
		mcplib.WithDescription("List detected cost anomalies, optionally filtered"),
		mcplib.WithString("status",
			mcplib.Description("Filter by status: open, investigating, resolved, dismissed"),
		),
		mcplib.WithString("severity",
			mcplib.Description("Filter by severity: low, medium, high, critical"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListAnomalies,
	}
}

func (s *Server) listRecommendationsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_recommendations",
		mcplib.WithDescription("List savings recommendations, optionally filtered"),
		mcplib.WithString("status",
			mcplib.Description("Filter by status: open, applied, dismissed"),
		),
		mcplib.WithString("type",
			mcplib.Description("Filter by type: idle, rightsize, unused, stale_snapshot, reserved_capacity"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListRecommendations,
	}
}

func (s *Server) handleListAccounts(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Accounts == nil {
		return mcplib.NewToolResultError("account lister not configured"), nil
	}
	accounts, err := s.deps.Accounts.List(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list accounts", err), nil
	}
	data, err := json.Marshal(accounts)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal accounts", err), nil
	}
	return toolResultJSON(string(data)), nil
}

// costSummary is the get_cost_summary tool payload.
type costSummary struct {
	AccountID    string              `json:"account_id"`
	Start        string              `json:"start"`
	End          string              `json:"end"`
	DaysWithData int                 `json:"days_with_data"`
	Total        float64             `json:"total"`
	Daily        []costitem.DailyCost `json:"daily"`
}

func (s *Server) handleGetCostSummary(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Costs == nil {
		return mcplib.NewToolResultError("cost reader not configured"), nil
	}
	args := req.GetArguments()
	accountID, ok := args["account_id"].(string)
	if !ok || accountID == "" {
		return mcplib.NewToolResultError("account_id is required"), nil
	}
	days := 30
	if d, ok := args["days"].(float64); ok && d > 0 {
		days = int(d)
	}

	end := costitem.Day(time.Now().UTC()).AddDate(0, 0, -1)
	window := costitem.NewDateRange(end.AddDate(0, 0, -(days-1)), end)

	daily, err := s.deps.Costs.DailyCosts(ctx, accountID, window)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to read daily costs", err), nil
	}

	summary := costSummary{
		AccountID:    accountID,
		Start:        window.Start.Format("2006-01-02"),
		End:          window.End.Format("2006-01-02"),
		DaysWithData: len(daily),
		Daily:        daily,
	}
	if summary.Daily == nil {
		summary.Daily = []costitem.DailyCost{}
	}
	for _, d := range daily {
		summary.Total += d.Total
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal cost summary", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleListAnomalies(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Anomalies == nil {
		return mcplib.NewToolResultError("anomaly lister not configured"), nil
	}
	args := req.GetArguments()
	filter := database.AnomalyFilter{}
	if v, ok := args["status"].(string); ok {
		filter.Status = v
	}
	if v, ok := args["severity"].(string); ok {
		filter.Severity = v
	}

	anomalies, err := s.deps.Anomalies.List(ctx, filter)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list anomalies", err), nil
	}
	data, err := json.Marshal(anomalies)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal anomalies", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleListRecommendations(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Recommendations == nil {
		return mcplib.NewToolResultError("recommendation lister not configured"), nil
	}
	args := req.GetArguments()
	filter := database.RecommendationFilter{}
	if v, ok := args["status"].(string); ok {
		filter.Status = v
	}
	if v, ok := args["type"].(string); ok {
		filter.Type = v
	}

	recs, err := s.deps.Recommendations.List(ctx, filter)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list recommendations", err), nil
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal recommendations", err), nil
	}
	return toolResultJSON(string(data)), nil
}
