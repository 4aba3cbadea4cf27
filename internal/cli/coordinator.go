package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/heady-conductor/internal/coordinator"
)

var coordinatorListen string

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the reference task coordinator",
	Long: `Run an in-memory coordinator that serves the worker API under /api:

  GET  /api/tasks?worker_id=ID   drain the queued tasks of a worker
  POST /api/tasks                enqueue {worker_id, task_type, payload}
  POST /api/task/complete        record a task result
  POST /api/register             register a worker
  GET  /api/status               queues, workers and recent results

Queues are lost when the process exits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := coordinatorListen
		if addr == "" && Config != nil {
			addr = Config.Coordinator.Listen
		}
		if addr == "" {
			return fmt.Errorf("no listen address (set --listen or coordinator.listen)")
		}

		opts := []coordinator.Option{coordinator.WithLogger(Logger)}
		if Events != nil {
			opts = append(opts, coordinator.WithEventLogger(Events))
		}
		srv := coordinator.NewServer(opts...)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	coordinatorCmd.Flags().StringVar(&coordinatorListen, "listen", "", "Listen address (default from coordinator.listen)")
	rootCmd.AddCommand(coordinatorCmd)
}
