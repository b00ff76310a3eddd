package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/guard"
)

// registerResources registers all psguard MCP resources on the given server.
func registerResources(s *server.MCPServer, g *guard.Guard, trail Trail) {
	// 1. psguard://rules - active rule catalog
	s.AddResource(
		mcplib.NewResource(
			"psguard://rules",
			"Security Rules",
			mcplib.WithResourceDescription("Active security rule catalog in evaluation order"),
			mcplib.WithMIMEType("application/json"),
		),
		handleRulesResource(g),
	)

	// 2. psguard://audit/recent - last audit events
	if trail != nil {
		s.AddResource(
			mcplib.NewResource(
				"psguard://audit/recent",
				"Recent Audit Events",
				mcplib.WithResourceDescription("The most recent validation, confirmation and execution records"),
				mcplib.WithMIMEType("application/json"),
			),
			handleAuditResource(trail),
		)
	}

	// 3. psguard://executions/{id} - execution status (resource template)
	s.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"psguard://executions/{id}",
			"Execution Status",
			mcplib.WithTemplateDescription("State and output of a specific execution"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		handleExecutionResource(g),
	)
}

func handleRulesResource(g *guard.Guard) server.ResourceHandlerFunc {
	return func(_ context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
		data, err := json.MarshalIndent(g.Rules(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling rules: %w", err)
		}
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      "psguard://rules",
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	}
}

func handleAuditResource(trail Trail) server.ResourceHandlerFunc {
	return func(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
		events, err := trail.Tail(ctx, 50)
		if err != nil {
			return nil, fmt.Errorf("reading audit trail: %w", err)
		}
		data, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling events: %w", err)
		}
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      "psguard://audit/recent",
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	}
}

func handleExecutionResource(g *guard.Guard) server.ResourceTemplateHandlerFunc {
	return func(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
		id, ok := request.Params.Arguments["id"].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("execution id is required")
		}

		st, err := g.Status(id)
		if err != nil {
			return nil, fmt.Errorf("status failed: %w", err)
		}

		data, err := json.MarshalIndent(statusJSON(st), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling status: %w", err)
		}

		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	}
}
