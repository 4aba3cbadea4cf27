// Package internal provides the App struct that wires all components of
// Heady Conductor together and initializes the CLI layer.
package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/valter-silva-au/heady-conductor/internal/cli"
	"github.com/valter-silva-au/heady-conductor/internal/core"
	"github.com/valter-silva-au/heady-conductor/internal/observability"
	"github.com/valter-silva-au/heady-conductor/internal/storage"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// HomeEnv overrides base path discovery.
const HomeEnv = "HEADY_HOME"

// App holds all service dependencies for Heady Conductor.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.GlobalConfig
	Logger    *zap.Logger

	// Storage layer
	Store      storage.CapabilityStore
	Discoverer *storage.Discoverer
	Watcher    *storage.SnapshotWatcher

	// Core services
	Planner    core.Planner
	Dispatcher core.Dispatcher

	// Observability
	EventLog    observability.EventLog
	Events      core.EventLogger
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier

	cancelWatch context.CancelFunc
}

// Options adjust App construction.
type Options struct {
	// Verbose raises the log level to debug.
	Verbose bool
}

// NewApp creates and wires all components of Heady Conductor. basePath is
// the directory holding .hcconfig, the registry and the event log.
func NewApp(basePath string, opts Options) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	// --- Logging ---
	app.Logger, err = observability.NewLogger(cfg.Log.Level, cfg.Log.Format, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	// --- Storage layer ---
	if err := os.MkdirAll(registryDir(cfg.Registry), 0o755); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}
	backend, err := storage.NewBackend(cfg.Registry.Backend, cfg.Registry.Path)
	if err != nil {
		return nil, err
	}
	app.Store = storage.NewCapabilityStore(backend)
	app.Discoverer = storage.NewDiscoverer(basePath, app.Logger)
	if err := app.loadRegistry(); err != nil {
		_ = app.Store.Close()
		return nil, err
	}

	if cfg.Registry.Watch && cfg.Registry.Backend != storage.BackendBadger {
		w, err := storage.NewSnapshotWatcher(app.Store, cfg.Registry.Path, app.Logger)
		if err != nil {
			// Non-fatal: the registry still works without live reloads.
			app.Logger.Warn("registry watcher disabled", zap.Error(err))
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			app.Watcher, app.cancelWatch = w, cancel
			w.Start(ctx)
		}
	}

	// --- Observability ---
	eventLogPath := filepath.Join(basePath, observability.DefaultEventLogFile)
	eventLog, err := observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		// Non-fatal: metrics and the event trail are disabled.
		app.Logger.Warn("event log disabled", zap.String("path", eventLogPath), zap.Error(err))
	} else {
		app.EventLog = eventLog
		app.Events = observability.NewRecorder(eventLog)
		app.MetricsCalc = observability.NewMetricsCalculator(eventLog)
	}
	app.AlertEngine = observability.NewAlertEngine(app.Store, app.EventLog, cfg.Alerts)
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.Slack.WebhookURL)
	}

	// --- Core services ---
	app.Planner = core.NewPlanner(app.Store)
	dispatchOpts := []core.DispatcherOption{core.WithLogger(app.Logger)}
	if app.Events != nil {
		dispatchOpts = append(dispatchOpts, core.WithEventLogger(app.Events))
	}
	if cfg.Health.Probe {
		dispatchOpts = append(dispatchOpts, core.WithHealthChecker(core.NewHTTPHealthChecker(cfg.Health.Timeout)))
	}
	app.Dispatcher = core.NewDispatcher(app.Store, app.Planner, dispatchOpts...)

	app.wireCLI()
	return app, nil
}

// loadRegistry loads the persisted registry. A missing or corrupt snapshot is
// rebuilt by discovery and saved.
func (a *App) loadRegistry() error {
	err := a.Store.Load()
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrSnapshotMissing) && !errors.Is(err, storage.ErrStoreCorrupt) {
		return fmt.Errorf("loading registry: %w", err)
	}
	a.Logger.Info("rebuilding registry from discovery", zap.String("reason", err.Error()))
	if err := a.Store.Replace(a.Discoverer.Discover()); err != nil {
		return fmt.Errorf("saving discovered registry: %w", err)
	}
	return nil
}

func (a *App) wireCLI() {
	cli.BasePath = a.BasePath
	cli.Config = a.Config
	cli.ConfigMgr = a.ConfigMgr
	cli.Logger = a.Logger
	cli.Store = a.Store
	cli.Discoverer = a.Discoverer
	cli.Planner = a.Planner
	cli.Dispatcher = a.Dispatcher
	cli.Events = a.Events

	cli.EventLog = a.EventLog
	cli.AlertEngine = a.AlertEngine
	cli.MetricsCalc = a.MetricsCalc
	cli.Notifier = a.Notifier
}

// Close releases resources held by the App: the registry watcher, the
// registry backend and the event log file handle. It is safe to call on a
// partially wired App.
func (a *App) Close() error {
	var errs []error
	if a.cancelWatch != nil {
		a.cancelWatch()
	}
	if a.Watcher != nil {
		errs = append(errs, a.Watcher.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.EventLog != nil {
		errs = append(errs, a.EventLog.Close())
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}

func registryDir(rc models.RegistryConfig) string {
	if rc.Backend == storage.BackendBadger {
		return rc.Path
	}
	return filepath.Dir(rc.Path)
}

// ResolveBasePath determines the base directory. It checks HEADY_HOME, then
// walks up from the current directory looking for .hcconfig, then falls back
// to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for d := dir; ; {
		if _, err := os.Stat(filepath.Join(d, core.ConfigFileName)); err == nil {
			return d
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	return dir
}
