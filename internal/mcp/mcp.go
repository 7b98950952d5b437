// Package mcp implements the Model Context Protocol server for Kiroku.
//
// It exposes season reports and the badge catalog to MCP-compatible agents
// through the same season.Service the HTTP API uses.
package mcp

import (
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kiroku/internal/season"
)

// Server wraps the MCP server with Kiroku's season service.
type Server struct {
	mcpServer *mcpserver.MCPServer
	season    *season.Service
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(svc *season.Service, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		season: svc,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kiroku",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions("Kiroku reports how many badge points a competitor earned in the current season. "+
			"Call kiroku_season_report with a competitor_id; read kiroku://badges for the badge catalog."),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
