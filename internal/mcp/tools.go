package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/guard"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/sandbox"
)

// registerTools registers all psguard MCP tools on the given server.
func registerTools(s *server.MCPServer, g *guard.Guard) {
	// 1. psguard_validate
	s.AddTool(
		mcplib.NewTool("psguard_validate",
			mcplib.WithDescription("Classify a PowerShell command against the security rules without running it. Returns the risk level, the decision and, when confirmation is required, a token for psguard_confirm."),
			mcplib.WithString("command",
				mcplib.Required(),
				mcplib.Description("The command to classify"),
			),
			mcplib.WithString("user_role", mcplib.Description("Role of the requesting user")),
			mcplib.WithString("working_directory", mcplib.Description("Directory the command would run in")),
		),
		handleValidate(g),
	)

	// 2. psguard_scan
	s.AddTool(
		mcplib.NewTool("psguard_scan",
			mcplib.WithDescription("Statically scan a PowerShell script for dangerous constructs. Returns the findings and whether the script is safe to present."),
			mcplib.WithString("script",
				mcplib.Required(),
				mcplib.Description("The script text to scan"),
			),
		),
		handleScan(g),
	)

	// 3. psguard_execute
	s.AddTool(
		mcplib.NewTool("psguard_execute",
			mcplib.WithDescription("Validate a command and, when allowed, run it in the sandbox. A decision of await_confirmation means the command did NOT run; ask the user and call psguard_confirm or psguard_deny with the returned token."),
			mcplib.WithString("command",
				mcplib.Required(),
				mcplib.Description("The command to run"),
			),
			mcplib.WithNumber("timeout_seconds", mcplib.Description("Execution timeout override in seconds")),
			mcplib.WithBoolean("no_wait", mcplib.Description("Return the execution ID immediately instead of waiting for the result")),
			mcplib.WithString("user_role", mcplib.Description("Role of the requesting user")),
			mcplib.WithString("working_directory", mcplib.Description("Directory the command runs in")),
		),
		handleExecute(g),
	)

	// 4. psguard_confirm
	s.AddTool(
		mcplib.NewTool("psguard_confirm",
			mcplib.WithDescription("Confirm a pending command after explicit user approval and run it. Tokens are single use and expire."),
			mcplib.WithString("token",
				mcplib.Required(),
				mcplib.Description("Confirmation token from a previous validate or execute call"),
			),
		),
		handleConfirm(g),
	)

	// 5. psguard_deny
	s.AddTool(
		mcplib.NewTool("psguard_deny",
			mcplib.WithDescription("Deny a pending command. The token is discarded and the command never runs."),
			mcplib.WithString("token",
				mcplib.Required(),
				mcplib.Description("Confirmation token to discard"),
			),
		),
		handleDeny(g),
	)

	// 6. psguard_status
	s.AddTool(
		mcplib.NewTool("psguard_status",
			mcplib.WithDescription("Report the state and output of an execution, including output captured so far while it is still running."),
			mcplib.WithString("execution_id",
				mcplib.Required(),
				mcplib.Description("ID returned by psguard_execute"),
			),
		),
		handleStatus(g),
	)

	// 7. psguard_cancel
	s.AddTool(
		mcplib.NewTool("psguard_cancel",
			mcplib.WithDescription("Cancel a queued or running execution."),
			mcplib.WithString("execution_id",
				mcplib.Required(),
				mcplib.Description("ID returned by psguard_execute"),
			),
		),
		handleCancel(g),
	)
}

// commandContext builds the classification context from the optional
// request arguments.
func commandContext(request mcplib.CallToolRequest) *domain.CommandContext {
	args := request.GetArguments()
	role, _ := args["user_role"].(string)
	wd, _ := args["working_directory"].(string)
	return &domain.CommandContext{
		UserRole:         role,
		WorkingDirectory: wd,
		Timestamp:        time.Now(),
	}
}

func handleValidate(g *guard.Guard) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		command, err := request.RequireString("command")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		out, err := g.Check(ctx, command, commandContext(request))
		if err != nil && out == nil {
			return errorResult(fmt.Sprintf("validation failed: %v", err)), nil
		}
		return jsonResult(out)
	}
}

func handleScan(g *guard.Guard) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		script, err := request.RequireString("script")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		out, err := g.Scan(ctx, script)
		if err != nil {
			return errorResult(fmt.Sprintf("scan failed: %v", err)), nil
		}
		return jsonResult(out)
	}
}

func handleExecute(g *guard.Guard) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		command, err := request.RequireString("command")
		if err != nil {
			return errorResult(err.Error()), nil
		}

		args := request.GetArguments()
		timeout, _ := args["timeout_seconds"].(float64)
		noWait, _ := args["no_wait"].(bool)

		out, err := g.Execute(ctx, command, commandContext(request), guard.ExecuteOptions{
			TimeoutSeconds: int(timeout),
			NoWait:         noWait,
		})
		if err != nil {
			return errorResult(fmt.Sprintf("execution failed: %v", err)), nil
		}
		return jsonResult(out)
	}
}

func handleConfirm(g *guard.Guard) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		token, err := request.RequireString("token")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		out, err := g.Confirm(ctx, token, guard.ExecuteOptions{})
		if err != nil {
			return errorResult(fmt.Sprintf("confirmation failed: %v", err)), nil
		}
		return jsonResult(out)
	}
}

func handleDeny(g *guard.Guard) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		token, err := request.RequireString("token")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		if err := g.Deny(ctx, token); err != nil {
			return errorResult(fmt.Sprintf("deny failed: %v", err)), nil
		}
		return textResult("confirmation denied, the command was discarded"), nil
	}
}

func handleStatus(g *guard.Guard) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		id, err := request.RequireString("execution_id")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		st, err := g.Status(id)
		if err != nil {
			return errorResult(fmt.Sprintf("status failed: %v", err)), nil
		}
		return jsonResult(statusJSON(st))
	}
}

func handleCancel(g *guard.Guard) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		id, err := request.RequireString("execution_id")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		if err := g.Cancel(id); err != nil {
			return errorResult(fmt.Sprintf("cancel failed: %v", err)), nil
		}
		return textResult("cancellation requested"), nil
	}
}

// statusJSON flattens an execution snapshot; the Err field does not
// marshal as an error value, so it becomes a string.
func statusJSON(st *sandbox.Status) map[string]any {
	payload := map[string]any{
		"execution_id": st.ID,
		"command":      st.Command,
		"state":        st.State,
		"stdout":       st.Stdout,
		"stderr":       st.Stderr,
	}
	if st.Result != nil {
		payload["result"] = st.Result
	}
	if st.Err != nil {
		payload["error"] = st.Err.Error()
	}
	return payload
}

// jsonResult marshals v to JSON and returns it as a text content result.
func jsonResult(v interface{}) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(string(data))},
	}, nil
}

// textResult returns a plain text content result.
func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(text)},
	}
}

// errorResult returns a tool result that indicates an error occurred.
func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(msg)},
		IsError: true,
	}
}
