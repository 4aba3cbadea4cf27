package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valter-silva-au/heady-conductor/internal/worker"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// coordinatorTimeout bounds each request a worker makes to the coordinator.
const coordinatorTimeout = 10 * time.Second

var (
	workerRoles []string
	workerID    string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run task pollers against the coordinator",
	Long: `Run one task poller per role. Each poller registers with the coordinator,
then fetches, executes and reports tasks until interrupted.

Roles: manager, jules, observer, atlas. Defaults come from worker.roles in
.hcconfig; worker.overrides.<role> adjusts the settings of a single role.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pollers, err := buildPollers(workerRoles, workerID)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runWorkers(ctx, pollers); err != nil {
			return fmt.Errorf("running workers: %w", err)
		}
		for _, p := range pollers {
			st := p.Stats()
			Logger.Info("worker stopped",
				zap.String("worker_id", p.WorkerID()),
				zap.Int("polls", st.Polls),
				zap.Int("completed", st.Completed),
				zap.Int("failed", st.Failed))
		}
		return nil
	},
}

// buildPollers creates one poller per role. With several roles a shared
// worker id is suffixed with the role name.
func buildPollers(roles []string, id string) ([]*worker.Poller, error) {
	if Config == nil || ConfigMgr == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	if len(roles) == 0 {
		roles = Config.Worker.Roles
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("no worker roles configured")
	}

	client := worker.NewCoordinatorClient(Config.Coordinator.URL, coordinatorTimeout)
	pollers := make([]*worker.Poller, 0, len(roles))
	for _, name := range roles {
		wc, err := ConfigMgr.WorkerConfigFor(Config, name)
		if err != nil {
			return nil, err
		}
		pid := resolveWorkerID(id, Config.Worker.ID, wc, name, len(roles) > 1)

		role, err := worker.NewRole(name, worker.RoleDeps{Dispatcher: Dispatcher, WorkerID: pid})
		if err != nil {
			return nil, err
		}
		opts := []worker.PollerOption{worker.WithPollerLogger(Logger)}
		if Events != nil {
			opts = append(opts, worker.WithPollerEvents(Events))
		}
		pollers = append(pollers, worker.NewPoller(worker.Config{
			WorkerID:     pid,
			PollInterval: wc.PollInterval,
		}, role, client, opts...))
	}
	return pollers, nil
}

// resolveWorkerID prefers --id, then a per-role override, then worker.id,
// then the role name.
func resolveWorkerID(flagID, sharedID string, wc models.WorkerConfig, role string, multi bool) string {
	if flagID == "" && wc.ID != sharedID {
		return wc.ID
	}
	id := flagID
	if id == "" {
		id = sharedID
	}
	if id == "" {
		return role
	}
	if multi {
		return id + "-" + role
	}
	return id
}

func runWorkers(ctx context.Context, pollers []*worker.Poller) error {
	return worker.NewSupervisor(Logger, pollers...).Run(ctx)
}

func init() {
	workerCmd.Flags().StringSliceVar(&workerRoles, "roles", nil, "Comma-separated roles to run (default from worker.roles)")
	workerCmd.Flags().StringVar(&workerID, "id", "", "Worker id (default from worker.id, else the role name)")
	rootCmd.AddCommand(workerCmd)
}
