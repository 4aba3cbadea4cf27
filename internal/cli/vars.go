package cli

import (
	"go.uber.org/zap"

	"github.com/valter-silva-au/heady-conductor/internal/core"
	"github.com/valter-silva-au/heady-conductor/internal/observability"
	"github.com/valter-silva-au/heady-conductor/internal/storage"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath   string
	Config     *models.GlobalConfig
	ConfigMgr  core.ConfigurationManager
	Logger     = zap.NewNop()
	Store      storage.CapabilityStore
	Discoverer *storage.Discoverer
	Planner    core.Planner
	Dispatcher core.Dispatcher
	Events     core.EventLogger
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)
