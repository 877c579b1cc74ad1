// Package mcp provides a Model Context Protocol server over the feedback
// store. It exposes record queries, per-route summaries, and run statistics
// as MCP tools so agents can ask "what are riders saying about the red
// line" without SQL. Stdio transport only.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/transitlab/transitpulse/internal/feedback"
	"github.com/transitlab/transitpulse/internal/store"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store   store.Store
	Version string
}

// dbMu serializes tool calls that touch the database. The mcp-go library
// dispatches handlers concurrently; SQLite supports one writer and reads
// during writes can see stale rows.
var dbMu sync.Mutex

// NewServer creates the MCP server with all tools registered.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"TransitPulse",
		ver,
		server.WithToolCapabilities(false),
	)

	registerQueryTool(s, cfg.Store)
	registerSummaryTool(s, cfg.Store)
	registerStatsTool(s, cfg.Store)
	registerRunsTool(s, cfg.Store)

	return s
}

func registerQueryTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("feedback_query",
		mcp.WithDescription("Query processed rider feedback records. Filter by route, time-of-day bucket, or source platform."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("route",
			mcp.Description("Route id to filter by (e.g. 'red_line', 'bus_66'). Empty = all routes."),
		),
		mcp.WithString("bucket",
			mcp.Description("Time-of-day bucket: morning, afternoon, evening, night, unknown."),
			mcp.Enum("morning", "afternoon", "evening", "night", "unknown"),
		),
		mcp.WithString("source",
			mcp.Description("Source platform: reddit or bsky."),
			mcp.Enum("reddit", "bsky"),
		),
		mcp.WithBoolean("feedback_only",
			mcp.Description("Only return actionable feedback records (default: false)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of records (default: 50, max: 200)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		opts := store.QueryOpts{Limit: 50}
		if route, err := req.RequireString("route"); err == nil && route != "" {
			opts.RouteID = route
		}
		if bucket, err := req.RequireString("bucket"); err == nil && bucket != "" {
			opts.TimeBucket = feedback.TimeBucket(bucket)
		}
		if src, err := req.RequireString("source"); err == nil && src != "" {
			opts.Source = feedback.Source(src)
		}
		if only, err := req.RequireBool("feedback_only"); err == nil {
			opts.OnlyFeedback = only
		}
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			limit := int(limitVal)
			if limit > 200 {
				limit = 200
			}
			if limit > 0 {
				opts.Limit = limit
			}
		}

		records, err := st.QueryRecords(ctx, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query error: %v", err)), nil
		}
		data, _ := json.MarshalIndent(records, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerSummaryTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("route_summary",
		mcp.WithDescription("Aggregate feedback per route: record counts, actionable feedback counts, average sentiment, sarcasm counts."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		sums, err := st.SummarizeRoutes(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("summary error: %v", err)), nil
		}
		data, _ := json.MarshalIndent(sums, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("pipeline_stats",
		mcp.WithDescription("Store-wide statistics: total runs, records, distinct routes, database size."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}
		data, _ := json.MarshalIndent(stats, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRunsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("recent_runs",
		mcp.WithDescription("List recent pipeline runs with their unit, record, degradation, orphan, and cycle counts."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs (default: 10, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		limit := 10
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			limit = int(limitVal)
			if limit > 100 {
				limit = 100
			}
			if limit <= 0 {
				limit = 10
			}
		}

		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("runs error: %v", err)), nil
		}
		data, _ := json.MarshalIndent(runs, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}
