package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/valter-silva-au/heady-conductor/internal/core"
	"github.com/valter-silva-au/heady-conductor/internal/observability"
	"github.com/valter-silva-au/heady-conductor/internal/storage"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// --- Mocks shared by the command tests ---

type metricsMock struct {
	calcFn func(since time.Time) (*observability.Metrics, error)
}

func (m *metricsMock) Calculate(since time.Time) (*observability.Metrics, error) {
	return m.calcFn(since)
}

type alertsMock struct {
	evaluateFn func() ([]observability.Alert, error)
}

func (m *alertsMock) Evaluate() ([]observability.Alert, error) {
	return m.evaluateFn()
}

type notifierMock struct {
	notifyFn func(alerts []observability.Alert) error
}

func (m *notifierMock) Notify(_ context.Context, alerts []observability.Alert) error {
	return m.notifyFn(alerts)
}

// setupRegistry points the package services at a fresh seeded registry and
// restores the previous values when the test ends.
func setupRegistry(t *testing.T) storage.CapabilityStore {
	t.Helper()

	origStore, origPlanner, origDispatcher := Store, Planner, Dispatcher
	origDiscoverer, origConfig, origConfigMgr := Discoverer, Config, ConfigMgr
	origEventLog, origMetrics, origAlerts := EventLog, MetricsCalc, AlertEngine
	t.Cleanup(func() {
		Store, Planner, Dispatcher = origStore, origPlanner, origDispatcher
		Discoverer, Config, ConfigMgr = origDiscoverer, origConfig, origConfigMgr
		EventLog, MetricsCalc, AlertEngine = origEventLog, origMetrics, origAlerts
	})

	dir := t.TempDir()
	store := storage.NewCapabilityStore(storage.NewJSONBackend(filepath.Join(dir, "registry.json")))
	snap := &storage.Snapshot{
		Nodes: []models.Node{
			{Name: "LENS", Role: "monitor", PrimaryTool: "heady_monitor", Triggers: []string{"monitor"}, Status: models.NodeAvailable},
		},
		Workflows: []models.Workflow{
			{Name: "deploy-system", Description: "Deploy everything", SlashCommand: "/deploy-system", Status: models.NodeAvailable},
		},
		Skills:   storage.BuiltinSkills(),
		Services: storage.BuiltinServices(),
		Tools: []models.Tool{
			{Name: "heady_monitor", Category: "ops", Status: models.NodeAvailable},
		},
	}
	if err := store.Replace(snap); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	Store = store
	Planner = core.NewPlanner(store)
	Dispatcher = core.NewDispatcher(store, Planner)
	Discoverer = storage.NewDiscoverer(dir, nil)
	Config = core.DefaultGlobalConfig()
	ConfigMgr = core.NewConfigurationManager(dir)
	return store
}

// resetRootFlags clears the legacy action flags, which keep their values
// between Execute calls.
func resetRootFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		requestFlag, queryFlag, categoryFlag = "", "", ""
		summaryFlag, healthFlag = false, false
		workflowFlag, nodeFlag, inputFlag = "", "", ""
	}
	reset()
	t.Cleanup(reset)
}

// runCLI executes the root command with args and returns what it printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetRootFlags(t)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := Execute()
	return stdout.String(), err
}
