package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/aretw0/mpcgate/internal/cli"
	"github.com/aretw0/mpcgate/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes a running coordinator to AI agents as read-only MCP tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		coord, err := coordinatorClient(cmd)
		if err != nil {
			return err
		}

		// Logs must stay off stdout, which carries JSON-RPC in stdio mode.
		logger, err := cli.NewLogger(os.Stderr, "info", "text")
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		log.SetOutput(os.Stderr)

		srv := mcp.NewServer(coord)

		switch transport {
		case "stdio":
			slog.Info("Starting mpcgate MCP Server (Stdio)...")
			return srv.ServeStdio()
		case "sse":
			slog.Info("Starting mpcgate MCP Server (SSE)", "port", port)
			ctx := cli.NewSignalContext(context.Background())
			defer ctx.Cancel()

			if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			slog.Info("MCP Server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
	mcpCmd.Flags().String("url", "", "Coordination server URL (defaults to COORDINATION_SERVER_URL)")
}
