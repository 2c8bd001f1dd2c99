package main

import (
	"context"

	"github.com/spf13/cobra"

	"droidbench/internal/logging"
	mcpserver "droidbench/internal/mcp"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var serveFlags struct {
	noHistory bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing the scoring engines as tools
(action_coverage, exact_match, page_coverage, list_cases, score_run).

The server exits when its parent process goes away.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveFlags.noHistory, "no-history", false, "do not record score_run results in the history database")
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := logging.New("mcp")
	opts := mcpserver.Options{Config: cfg, Logger: log}
	if !serveFlags.noHistory {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Store = st
	}
	// A model that cannot be built now surfaces as a page tool error later.
	if e, err := newEmbedder("", log); err == nil {
		opts.Embedder = e
		opts.Cache = openCache(e, false, log)
		defer saveCache(opts.Cache, log)
	} else {
		log.Warn("embedding model unavailable", "model", cfg.Model, "error", err)
	}

	srv := mcpserver.NewServer(opts)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	mcpserver.WatchParent(ctx, cancel, log)

	log.Info("starting droidbench MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
