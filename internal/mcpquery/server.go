// Package mcpquery exposes a read-only MCP tool server over the
// engine: search_patterns, list_sources, get_pattern, health. It is
// grounded in the teacher's mcpserver.go/mcptools.go/mcptypes.go
// (StreamableHTTPServerTransport, protocol.NewTool,
// server.RegisterTool, CallToolResult/TextContent JSON-encoding
// convention), repurposed from Docker-container introspection to
// engine introspection. Like the teacher's own `--mcp-server` flag,
// this surface is optional and off by default; it is not the
// renderer and carries none of the TUI's interactive surface.
package mcpquery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
	"github.com/ThinkInAIXYZ/go-mcp/transport"

	"github.com/nanook72/logradar/internal/diag"
	"github.com/nanook72/logradar/internal/engine"
	"github.com/nanook72/logradar/internal/pattern"
)

// Version is reported in the health tool's response.
var Version = "dev"

// SearchPatternsArgs is the search_patterns tool's argument schema.
type SearchPatternsArgs struct {
	Query string `json:"query,omitempty" description:"Fuzzy query to rank pattern canonical strings against. Empty returns all patterns in snapshot order."`
	Limit int    `json:"limit,omitempty" description:"Maximum number of ranked results to return (default: 20)."`
}

// GetPatternArgs is the get_pattern tool's argument schema.
type GetPatternArgs struct {
	Signature uint64 `json:"signature" description:"The pattern's signature_hash, as returned by search_patterns."`
}

// Server wraps a go-mcp server bound to one Engine.
type Server struct {
	eng       *engine.Engine
	mcpServer *server.Server
	addr      string
}

// NewServer builds the MCP tool server; it does not start listening
// until Start is called.
func NewServer(eng *engine.Engine, addr string) (*Server, error) {
	t := transport.NewStreamableHTTPServerTransport(
		addr,
		transport.WithStreamableHTTPServerTransportOptionEndpoint("/mcp"),
		transport.WithStreamableHTTPServerTransportOptionStateMode(transport.Stateful),
	)

	ms, err := server.NewServer(t, server.WithServerInfo(protocol.Implementation{
		Name:    "logradar-mcp",
		Version: Version,
	}))
	if err != nil {
		return nil, fmt.Errorf("mcpquery: create server: %w", err)
	}

	s := &Server{eng: eng, mcpServer: ms, addr: addr}
	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) registerTools() error {
	searchTool, err := protocol.NewTool(
		"search_patterns",
		"Fuzzy-search aggregated log patterns by canonical text",
		SearchPatternsArgs{},
	)
	if err != nil {
		return fmt.Errorf("mcpquery: create search_patterns tool: %w", err)
	}
	s.mcpServer.RegisterTool(searchTool, s.handleSearchPatterns)

	listSourcesTool, err := protocol.NewTool(
		"list_sources",
		"List every registered ingest source and its lifecycle state",
		struct{}{},
	)
	if err != nil {
		return fmt.Errorf("mcpquery: create list_sources tool: %w", err)
	}
	s.mcpServer.RegisterTool(listSourcesTool, s.handleListSources)

	getPatternTool, err := protocol.NewTool(
		"get_pattern",
		"Fetch one pattern's full aggregated state by signature_hash",
		GetPatternArgs{},
	)
	if err != nil {
		return fmt.Errorf("mcpquery: create get_pattern tool: %w", err)
	}
	s.mcpServer.RegisterTool(getPatternTool, s.handleGetPattern)

	healthTool, err := protocol.NewTool(
		"health",
		"Report engine runtime diagnostics: goroutines, open file descriptors, pattern count",
		struct{}{},
	)
	if err != nil {
		return fmt.Errorf("mcpquery: create health tool: %w", err)
	}
	s.mcpServer.RegisterTool(healthTool, s.handleHealth)

	return nil
}

// Start runs the MCP server; it blocks until the transport stops.
func (s *Server) Start() error {
	return s.mcpServer.Run()
}

// Shutdown gracefully stops the MCP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.mcpServer.Shutdown(ctx)
}

func textResult(v interface{}) (*protocol.CallToolResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpquery: marshal result: %w", err)
	}
	return &protocol.CallToolResult{
		Content: []protocol.Content{
			&protocol.TextContent{Type: "text", Text: string(body)},
		},
	}, nil
}

func (s *Server) handleSearchPatterns(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	args := new(SearchPatternsArgs)
	if err := protocol.VerifyAndUnmarshal(request.RawArguments, args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}

	snap := s.eng.Snapshot()
	ranked := s.eng.FuzzySearch(args.Query)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	type hit struct {
		Signature pattern.Signature `json:"signature"`
		Canonical string            `json:"canonical"`
		Score     int               `json:"score"`
		CountTotal uint64           `json:"count_total"`
	}
	out := make([]hit, 0, len(ranked))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(snap.Patterns) {
			continue
		}
		p := snap.Patterns[r.Index]
		out = append(out, hit{
			Signature:  p.Signature,
			Canonical:  p.Canonical,
			Score:      r.Score,
			CountTotal: p.CountTotal,
		})
	}

	return textResult(out)
}

func (s *Server) handleListSources(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	snap := s.eng.Snapshot()

	type src struct {
		ID        string `json:"id"`
		Kind      string `json:"kind"`
		State     string `json:"state"`
		StartedAt string `json:"started_at"`
		Error     string `json:"error,omitempty"`
	}
	out := make([]src, 0, len(snap.Sources))
	for _, info := range snap.Sources {
		entry := src{
			ID:        info.ID,
			Kind:      info.Descriptor.Kind.String(),
			State:     info.State.String(),
			StartedAt: info.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if info.LastErr != nil {
			entry.Error = info.LastErr.Error()
		}
		out = append(out, entry)
	}

	return textResult(out)
}

func (s *Server) handleGetPattern(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	args := new(GetPatternArgs)
	if err := protocol.VerifyAndUnmarshal(request.RawArguments, args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	snap := s.eng.Snapshot()
	for _, p := range snap.Patterns {
		if uint64(p.Signature) == args.Signature {
			return textResult(p)
		}
	}
	return nil, fmt.Errorf("no pattern with signature %d", args.Signature)
}

func (s *Server) handleHealth(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	snap := s.eng.Snapshot()
	health := struct {
		Version      string `json:"version"`
		Goroutines   int    `json:"goroutines"`
		OpenFDs      int    `json:"open_file_descriptors"`
		SourceCount  int    `json:"source_count"`
		PatternCount int    `json:"pattern_count"`
	}{
		Version:      Version,
		Goroutines:   diag.Goroutines(),
		OpenFDs:      diag.OpenFDs(),
		SourceCount:  len(snap.Sources),
		PatternCount: len(snap.Patterns),
	}
	return textResult(health)
}

// HealthHandler is a plain net/http handler for a liveness probe
// alongside the MCP endpoint, mirroring the teacher's /health mux
// route living next to its MCP transport.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
		return
	}
	snap := s.eng.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":        "healthy",
		"source_count":  len(snap.Sources),
		"pattern_count": len(snap.Patterns),
	})
}
