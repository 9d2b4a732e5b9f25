package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/spendsight/spendsight/internal/domain/anomaly"
	"github.com/spendsight/spendsight/internal/domain/recommendation"
	"github.com/spendsight/spendsight/internal/port/database"
)

// resourceLimit caps how many rows a resource read returns. Agents pull
// resource contents wholesale into their context, so the payload has to
// stay bounded even on a noisy account.
const resourceLimit = 100

// registerResources registers the read-only "what needs attention" views:
// open anomalies and open recommendations.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"spendsight://anomalies",
			"Open Anomalies",
			mcplib.WithResourceDescription("Currently open cost anomalies, newest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAnomaliesResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"spendsight://recommendations",
			"Open Recommendations",
			mcplib.WithResourceDescription("Open savings recommendations, largest estimated savings first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRecommendationsResource,
	)
}

func (s *Server) handleAnomaliesResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Anomalies == nil {
		return textResource(req.Params.URI, `{"error":"anomaly lister not configured"}`), nil
	}
	anomalies, err := s.deps.Anomalies.List(ctx, database.AnomalyFilter{
		Status: anomaly.StatusOpen,
		Limit:  resourceLimit,
	})
	if err != nil {
		return nil, err
	}
	if anomalies == nil {
		anomalies = []anomaly.Anomaly{}
	}
	return jsonResource(req.Params.URI, anomalies)
}

func (s *Server) handleRecommendationsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Recommendations == nil {
		return textResource(req.Params.URI, `{"error":"recommendation lister not configured"}`), nil
	}
	recs, err := s.deps.Recommendations.List(ctx, database.RecommendationFilter{
		Status: recommendation.StatusOpen,
		Limit:  resourceLimit,
	})
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []recommendation.Recommendation{}
	}
	return jsonResource(req.Params.URI, recs)
}

// jsonResource marshals v into a single JSON content block. Callers
// normalize nil slices first so an empty listing renders as [] rather
// than null, which trips up agents parsing the text.
func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", uri, err)
	}
	return textResource(uri, string(data)), nil
}

func textResource(uri, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		},
	}
}
