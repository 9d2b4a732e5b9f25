// Package mcp exposes read-only cost analytics over the Model Context
// Protocol, so AI agents can query spend, anomalies, and recommendations.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/spendsight/spendsight/internal/domain/anomaly"
	"github.com/spendsight/spendsight/internal/domain/cloudaccount"
	"github.com/spendsight/spendsight/internal/domain/costitem"
	"github.com/spendsight/spendsight/internal/domain/recommendation"
	"github.com/spendsight/spendsight/internal/port/database"
)

// ServerConfig configures the MCP endpoint.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
}

// AccountLister lists the registered cloud accounts.
type AccountLister interface {
	List(ctx context.Context) ([]cloudaccount.CloudAccount, error)
}

// CostReader reads aggregated spend for one account.
type CostReader interface {
	DailyCosts(ctx context.Context, accountID string, r costitem.DateRange) ([]costitem.DailyCost, error)
}

// AnomalyLister lists detected anomalies.
type AnomalyLister interface {
	List(ctx context.Context, f database.AnomalyFilter) ([]anomaly.Anomaly, error)
}

// RecommendationLister lists savings recommendations.
type RecommendationLister interface {
	List(ctx context.Context, f database.RecommendationFilter) ([]recommendation.Recommendation, error)
}

// ServerDeps injects the data access the tools and resources need. All
// reads run without a tenant on the context and therefore see the default
// tenant only.
type ServerDeps struct {
	Accounts        AccountLister
	Costs           CostReader
	Anomalies       AnomalyLister
	Recommendations RecommendationLister
}

// Server wraps an MCP server with its Streamable HTTP transport.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	httpServer *mcpserver.StreamableHTTPServer
}

// NewServer creates the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying MCP server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start serves the Streamable HTTP transport in the background.
func (s *Server) Start() error {
	s.httpServer = mcpserver.NewStreamableHTTPServer(s.mcpServer)
	go func() {
		if err := s.httpServer.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server error", "error", err)
		}
	}()
	slog.Info("mcp server listening", "addr", s.cfg.Addr)
	return nil
}

// Stop shuts the transport down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}
