// Package mcp exposes the guard to AI assistants over the Model Context
// Protocol. Commands an assistant proposes go through the same
// classification, confirmation and sandbox pipeline as every other entry
// point.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/guard"
)

// Trail is the part of the audit store exposed as a resource. Nil when
// auditing is disabled.
type Trail interface {
	Tail(ctx context.Context, limit int) ([]domain.AuditEvent, error)
}

// New creates an MCP server with all psguard tools and resources
// registered. Serve it with server.ServeStdio.
func New(g *guard.Guard, trail Trail, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"psguard",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	registerTools(s, g)
	registerResources(s, g, trail)

	return s
}
