// Package mcp exposes the fusion engine's query surface over the Model
// Context Protocol so agent clients can interrogate an investigation.
package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"lattice/internal/graph"
	"lattice/internal/ingest"
	"lattice/internal/score"
	"lattice/internal/store"
	"lattice/internal/timeline"
)

// Server wraps the MCP SDK server around one Engine. All tools are
// read-or-derive queries; ingestion stays on the CLI.
type Server struct {
	MCPServer *sdkmcp.Server
	engine    *ingest.Engine
}

// NewServer creates an MCP server with the investigation query tools.
func NewServer(engine *ingest.Engine) *Server {
	s := &Server{engine: engine}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "lattice", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "lookup_entity",
		Description: "Look up a canonical entity by ID or alias. Returns aliases, mention count, documents, and relationships.",
	}, s.handleLookupEntity)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "graph_metrics",
		Description: "Compute degree, closeness, betweenness, and clustering over the relationship graph. Optionally filter to one entity.",
	}, s.handleGraphMetrics)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_timeline",
		Description: "Return the fused timeline for a report (or all reports), with burst clusters, coverage gaps, and contradictions.",
	}, s.handleGetTimeline)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "run_correlation",
		Description: "Run the cross-report correlation scan and return the alerts raised.",
	}, s.handleRunCorrelation)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "score_claim",
		Description: "Score the confidence of a claim key from its evidence. Disinformation sources are reported as attribution, never as support.",
	}, s.handleScoreClaim)
}

// --- Tool input/output types ---

type lookupEntityInput struct {
	ID    string `json:"id,omitempty" jsonschema:"entity ID (type:normalized name)"`
	Alias string `json:"alias,omitempty" jsonschema:"surface form to search aliases for, used when id is empty"`
}

type lookupEntityOutput struct {
	Entities      []*store.Entity       `json:"entities"`
	Relationships []*store.Relationship `json:"relationships,omitempty"`
}

type graphMetricsInput struct {
	Entity string `json:"entity,omitempty" jsonschema:"restrict output to this entity ID"`
}

type graphMetricsOutput struct {
	Metrics []graph.Metrics `json:"metrics"`
}

type getTimelineInput struct {
	ReportID string `json:"report_id,omitempty" jsonschema:"report scope, empty = all reports"`
}

type timelineEvent struct {
	Key         string   `json:"key"`
	EntityKey   string   `json:"entity_key,omitempty"`
	Description string   `json:"description,omitempty"`
	At          string   `json:"at"`
	Status      string   `json:"status"`
	Primary     bool     `json:"primary"`
	Documents   []string `json:"documents,omitempty"`
}

type timelineGap struct {
	EntityKey string `json:"entity_key"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Duration  string `json:"duration"`
}

type getTimelineOutput struct {
	Events       []timelineEvent `json:"events"`
	ClusterCount int             `json:"cluster_count"`
	Gaps         []timelineGap   `json:"gaps,omitempty"`
	Contradicted []string        `json:"contradicted,omitempty"`
}

type runCorrelationInput struct {
	Reports []string `json:"reports,omitempty" jsonschema:"report IDs to scan, empty = all reports"`
}

type runCorrelationOutput struct {
	Alerts []*store.Alert `json:"alerts"`
}

type scoreClaimInput struct {
	Key string `json:"key" jsonschema:"claim key to score"`
}

type scoreClaimOutput struct {
	Key         string                    `json:"key"`
	Confidence  float64                   `json:"confidence"`
	Independent int                       `json:"independent"`
	Underflow   bool                      `json:"underflow,omitempty"`
	Attribution []score.SourceAttribution `json:"attribution,omitempty"`
}

// --- Tool handlers ---

func (s *Server) handleLookupEntity(ctx context.Context, _ *sdkmcp.CallToolRequest, input lookupEntityInput) (*sdkmcp.CallToolResult, lookupEntityOutput, error) {
	gw := s.engine.Store()
	var entities []*store.Entity
	switch {
	case input.ID != "":
		e, err := gw.GetEntity(ctx, input.ID)
		if err != nil {
			return nil, lookupEntityOutput{}, fmt.Errorf("lookup_entity: %w", err)
		}
		if e == nil {
			return nil, lookupEntityOutput{}, fmt.Errorf("no entity %q", input.ID)
		}
		entities = []*store.Entity{e}
	case input.Alias != "":
		found, err := gw.FindEntitiesByAlias(ctx, input.Alias)
		if err != nil {
			return nil, lookupEntityOutput{}, fmt.Errorf("lookup_entity: %w", err)
		}
		entities = found
	default:
		return nil, lookupEntityOutput{}, fmt.Errorf("id or alias is required")
	}

	out := lookupEntityOutput{Entities: entities}
	for _, e := range entities {
		rels, err := gw.ListRelationshipsForEntity(ctx, e.ID)
		if err != nil {
			return nil, lookupEntityOutput{}, fmt.Errorf("lookup_entity relationships: %w", err)
		}
		out.Relationships = append(out.Relationships, rels...)
	}
	return nil, out, nil
}

func (s *Server) handleGraphMetrics(ctx context.Context, _ *sdkmcp.CallToolRequest, input graphMetricsInput) (*sdkmcp.CallToolResult, graphMetricsOutput, error) {
	metrics, err := s.engine.GraphMetrics(ctx)
	if err != nil {
		return nil, graphMetricsOutput{}, fmt.Errorf("graph_metrics: %w", err)
	}
	if input.Entity != "" {
		var filtered []graph.Metrics
		for _, m := range metrics {
			if m.Entity == input.Entity {
				filtered = append(filtered, m)
			}
		}
		if filtered == nil {
			return nil, graphMetricsOutput{}, fmt.Errorf("no entity %q in graph", input.Entity)
		}
		metrics = filtered
	}
	return nil, graphMetricsOutput{Metrics: metrics}, nil
}

func (s *Server) handleGetTimeline(ctx context.Context, _ *sdkmcp.CallToolRequest, input getTimelineInput) (*sdkmcp.CallToolResult, getTimelineOutput, error) {
	tl, err := s.engine.Timeline(ctx, strings.TrimSpace(input.ReportID))
	if err != nil {
		return nil, getTimelineOutput{}, fmt.Errorf("get_timeline: %w", err)
	}
	return nil, renderTimeline(tl), nil
}

func renderTimeline(tl *timeline.Timeline) getTimelineOutput {
	out := getTimelineOutput{
		ClusterCount: len(tl.Clusters),
		Contradicted: tl.Contradicted(),
	}
	for _, ev := range tl.Events {
		out.Events = append(out.Events, timelineEvent{
			Key:         ev.Key,
			EntityKey:   ev.EntityKey,
			Description: ev.Description,
			At:          ev.At.UTC().Format(time.RFC3339),
			Status:      ev.Status,
			Primary:     ev.Primary,
			Documents:   ev.Documents,
		})
	}
	for _, g := range tl.Gaps {
		out.Gaps = append(out.Gaps, timelineGap{
			EntityKey: g.EntityKey,
			Start:     g.Start.UTC().Format(time.RFC3339),
			End:       g.End.UTC().Format(time.RFC3339),
			Duration:  g.Duration.String(),
		})
	}
	return out
}

func (s *Server) handleRunCorrelation(ctx context.Context, _ *sdkmcp.CallToolRequest, input runCorrelationInput) (*sdkmcp.CallToolResult, runCorrelationOutput, error) {
	alerts, err := s.engine.Correlate(ctx, input.Reports)
	if err != nil {
		return nil, runCorrelationOutput{}, fmt.Errorf("run_correlation: %w", err)
	}
	return nil, runCorrelationOutput{Alerts: alerts}, nil
}

func (s *Server) handleScoreClaim(ctx context.Context, _ *sdkmcp.CallToolRequest, input scoreClaimInput) (*sdkmcp.CallToolResult, scoreClaimOutput, error) {
	if input.Key == "" {
		return nil, scoreClaimOutput{}, fmt.Errorf("key is required")
	}
	cs, err := s.engine.ScoreClaim(ctx, input.Key)
	if err != nil {
		return nil, scoreClaimOutput{}, fmt.Errorf("score_claim: %w", err)
	}
	return nil, scoreClaimOutput{
		Key:         cs.Key,
		Confidence:  cs.Result.Confidence,
		Independent: cs.Result.Independent,
		Underflow:   cs.Result.Underflow,
		Attribution: cs.Attribution,
	}, nil
}
