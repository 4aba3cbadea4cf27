package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	headymcp "github.com/valter-silva-au/heady-conductor/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the heady MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the heady MCP server on stdio",
	Long: `Start the heady MCP server on stdio transport.

The server exposes the conductor as MCP tools that AI coding assistants can
call: analyze_request, orchestrate, query_capabilities, check_service_health,
get_summary, get_metrics, get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil || Planner == nil || Dispatcher == nil {
			return fmt.Errorf("registry not initialized")
		}

		srv := headymcp.NewServer(headymcp.Deps{
			Store:       Store,
			Planner:     Planner,
			Dispatcher:  Dispatcher,
			MetricsCalc: MetricsCalc,
			AlertEngine: AlertEngine,
		}, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
