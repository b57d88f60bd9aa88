package main

import (
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/compeek/compeek/internal/executor"
	"github.com/compeek/compeek/internal/toolserver"
)

func newMCPCmd(a *app) *cobra.Command {
	var containerURL, apiToken string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP over stdio, forwarding tool calls to a container",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if containerURL == "" {
				containerURL = a.cfg.Agent.ContainerURL
			}
			if apiToken == "" {
				apiToken = a.cfg.Agent.ContainerToken
			}

			exec := executor.NewHTTP(containerURL, apiToken, a.log,
				executor.WithHealthTimeout(time.Duration(a.cfg.Agent.HealthCheckTimeout)*time.Second))

			stderr := cmd.ErrOrStderr()
			if !exec.HealthCheck(ctx) {
				fmt.Fprintf(stderr, "Warning: Container at %s is not responding.\n", containerURL)
				fmt.Fprintln(stderr, "Make sure a container is running compeek serve.")
			}

			stdio := server.NewStdioServer(toolserver.NewMCPServer(exec, a.log))
			fmt.Fprintf(stderr, "compeek MCP server started (stdio) -> %s\n", containerURL)
			if err := stdio.Listen(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&containerURL, "container-url", "", "Tool server URL (default agent.containerUrl)")
	cmd.Flags().StringVar(&apiToken, "api-token", "", "Bearer token for the tool server")
	return cmd
}
