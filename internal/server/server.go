// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package server exposes repository maps as MCP tools.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/petar-djukic/go-repomap/internal/logging"
	"github.com/petar-djukic/go-repomap/internal/repomap"
	"github.com/petar-djukic/go-repomap/pkg/types"
)

// Backend is what the tools call into.
type Backend interface {
	Map(ctx context.Context, req types.Request) (*types.MapOutput, error)
	QuotaStates() []types.QuotaState
	SearchCode(ctx context.Context, query string, limit int) ([]types.SearchResult, error)
}

// Server is an MCP server with the repository map tools registered.
type Server struct {
	mcpServer *mcp.Server
	backend   Backend
	logger    *slog.Logger
	now       func() time.Time
}

// New registers the tools on a fresh MCP server.
func New(backend Backend, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: "go-repomap", Version: version}, nil),
		backend:   backend,
		logger:    logger,
		now:       time.Now,
	}
	s.registerTools()
	return s
}

// Run serves the tools on transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server started")
	return s.mcpServer.Run(ctx, transport)
}

type getRepoMapArgs struct {
	Owner      string `json:"owner" jsonschema:"repository owner or organization"`
	Repo       string `json:"repo" jsonschema:"repository name"`
	MaxFiles   int    `json:"max_files,omitempty" jsonschema:"maximum source files to analyze (default 100)"`
	MaxSymbols int    `json:"max_symbols,omitempty" jsonschema:"maximum symbols in the map (default 50)"`
	Format     string `json:"format,omitempty" jsonschema:"text or json (default text)"`
}

type rateLimitArgs struct{}

type searchCodeArgs struct {
	Query string `json:"query" jsonschema:"GitHub code search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum results (default 10)"`
}

type quotaStatus struct {
	types.QuotaState
	ResetInSeconds int64 `json:"reset_in_seconds"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_repo_map",
		Description: "Build a ranked map of the most important symbols of a GitHub repository, grouped by file.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args getRepoMapArgs) (*mcp.CallToolResult, any, error) {
		out, err := s.backend.Map(ctx, types.Request{
			Owner:      args.Owner,
			Repo:       args.Repo,
			MaxFiles:   args.MaxFiles,
			MaxSymbols: args.MaxSymbols,
		})
		if err != nil {
			s.logger.Warn("get_repo_map failed", "repository", args.Owner+"/"+args.Repo, "error", err)
			return errorResult(err), nil, nil
		}
		if args.Format == "json" {
			return jsonResult(out)
		}
		return textResult(repomap.RenderText(out)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "rate_limit_status",
		Description: "Report the remaining GitHub API quota of each tier and when it resets.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args rateLimitArgs) (*mcp.CallToolResult, any, error) {
		now := s.now()
		states := s.backend.QuotaStates()
		out := make([]quotaStatus, 0, len(states))
		for _, st := range states {
			var in int64
			if st.ResetAt.After(now) {
				in = int64(st.ResetAt.Sub(now).Round(time.Second) / time.Second)
			}
			out = append(out, quotaStatus{QuotaState: st, ResetInSeconds: in})
		}
		return jsonResult(out)
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "search_code",
		Description: "Search code on GitHub. Uses the search quota tier.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchCodeArgs) (*mcp.CallToolResult, any, error) {
		if args.Query == "" {
			return errorResult(fmt.Errorf("query is required")), nil, nil
		}
		hits, err := s.backend.SearchCode(ctx, args.Query, args.Limit)
		if err != nil {
			return errorResult(err), nil, nil
		}
		return jsonResult(hits)
	})
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encoding result: %w", err)
	}
	return textResult(string(data)), nil, nil
}

// errorResult reports a tool failure to the client. Classified errors lead
// with their kind so callers can branch on it.
func errorResult(err error) *mcp.CallToolResult {
	msg := err.Error()
	if kind := types.KindOf(err); kind != "" && !strings.HasPrefix(msg, string(kind)) {
		msg = string(kind) + ": " + msg
	}
	res := textResult(msg)
	res.IsError = true
	return res
}
