package main

import (
	"context"

	"github.com/spf13/cobra"

	"lattice/internal/logging"
	mcpserver "lattice/internal/mcp"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio for agent integration",
	Long: `Starts an MCP server over stdin/stdout exposing the query tools
(lookup_entity, graph_metrics, get_timeline, run_correlation, score_claim)
so agent clients can interrogate the investigation store directly.

The server monitors for parent process death and self-terminates when the
client disconnects, preventing zombie server processes.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Store().Close()

	srv := mcpserver.NewServer(engine)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	mcpserver.WatchParent(ctx, cancel)

	logging.New("mcp").Info("starting lattice MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
