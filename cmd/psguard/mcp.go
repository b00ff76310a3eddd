package main

import (
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/mcp"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server (stdio)",
		Long: "Serves psguard tools over the Model Context Protocol on stdin/stdout\n" +
			"so AI coding assistants can validate, scan and run commands through\n" +
			"the guard.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			e, err := buildEnv(cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			var trail mcp.Trail
			if e.store != nil {
				trail = e.store
			}

			s := mcp.New(e.guard, trail, version)
			return mcpserver.ServeStdio(s)
		},
	}
}
