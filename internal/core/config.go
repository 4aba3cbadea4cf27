// Package core contains the business logic for Heady Conductor: request
// planning, plan dispatch, handler registration, service health checking and
// configuration.
package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// ConfigFileName is the name of the global configuration file (YAML, no
// extension) in the base path.
const ConfigFileName = ".hcconfig"

// EnvPrefix prefixes environment variables that override configuration keys,
// e.g. HEADY_COORDINATOR_URL for coordinator.url.
const EnvPrefix = "HEADY"

// Known worker roles.
var validRoles = map[string]bool{
	"manager":  true,
	"jules":    true,
	"observer": true,
	"atlas":    true,
}

var validBackends = map[string]bool{"json": true, "badger": true}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// ConfigurationManager loads and validates configuration from .hcconfig, an
// optional .env file and HEADY_* environment variables.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	// WorkerConfigFor returns the worker settings for role with any
	// worker.overrides.<role> block merged on top.
	WorkerConfigFor(cfg *models.GlobalConfig, role string) (models.WorkerConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
}

type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads files
// relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultGlobalConfig returns the configuration used when no file is present.
func DefaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		Registry: models.RegistryConfig{
			Path:    filepath.Join(".heady", "registry.json"),
			Backend: "json",
		},
		Coordinator: models.CoordinatorConfig{
			URL:    "http://localhost:3300/api",
			Listen: ":3300",
		},
		Worker: models.WorkerConfig{
			ID:           "",
			Roles:        []string{"manager"},
			PollInterval: 5 * time.Second,
		},
		Health: models.HealthConfig{
			Probe:   false,
			Timeout: 5 * time.Second,
		},
		Log: models.LogConfig{
			Level:  "info",
			Format: "console",
		},
		Alerts: models.AlertConfig{
			UnhealthyServices: 1,
			ErrorRate:         0.2,
			ActiveNodeMinutes: 30,
		},
	}
}

// LoadGlobalConfig reads .hcconfig from the base path. A missing file yields
// the defaults, still subject to environment overrides.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	// A .env file only seeds variables that are not already set.
	envFile := filepath.Join(cm.basePath, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("registry.path", cfg.Registry.Path)
	v.SetDefault("registry.backend", cfg.Registry.Backend)
	v.SetDefault("registry.watch", cfg.Registry.Watch)
	v.SetDefault("coordinator.url", cfg.Coordinator.URL)
	v.SetDefault("coordinator.listen", cfg.Coordinator.Listen)
	v.SetDefault("worker.id", cfg.Worker.ID)
	v.SetDefault("worker.roles", cfg.Worker.Roles)
	v.SetDefault("worker.poll_interval", cfg.Worker.PollInterval)
	v.SetDefault("health.probe", cfg.Health.Probe)
	v.SetDefault("health.timeout", cfg.Health.Timeout)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.slack.webhook_url", "")
	v.SetDefault("alerts.unhealthy_services", cfg.Alerts.UnhealthyServices)
	v.SetDefault("alerts.error_rate", cfg.Alerts.ErrorRate)
	v.SetDefault("alerts.active_node_minutes", cfg.Alerts.ActiveNodeMinutes)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	cfg.Registry.Path = v.GetString("registry.path")
	cfg.Registry.Backend = v.GetString("registry.backend")
	cfg.Registry.Watch = v.GetBool("registry.watch")
	cfg.Coordinator.URL = v.GetString("coordinator.url")
	cfg.Coordinator.Listen = v.GetString("coordinator.listen")
	cfg.Worker.ID = v.GetString("worker.id")
	cfg.Worker.Roles = v.GetStringSlice("worker.roles")
	cfg.Worker.PollInterval = v.GetDuration("worker.poll_interval")
	cfg.Health.Probe = v.GetBool("health.probe")
	cfg.Health.Timeout = v.GetDuration("health.timeout")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.Notifications.Enabled = v.GetBool("notifications.enabled")
	cfg.Notifications.Slack.WebhookURL = v.GetString("notifications.slack.webhook_url")
	cfg.Alerts.UnhealthyServices = v.GetInt("alerts.unhealthy_services")
	cfg.Alerts.ErrorRate = v.GetFloat64("alerts.error_rate")
	cfg.Alerts.ActiveNodeMinutes = v.GetInt("alerts.active_node_minutes")

	if v.IsSet("worker.overrides") {
		var overrides map[string]models.WorkerConfig
		if err := v.UnmarshalKey("worker.overrides", &overrides); err != nil {
			return nil, fmt.Errorf("parsing worker.overrides: %w", err)
		}
		cfg.Worker.Overrides = overrides
	}

	if !filepath.IsAbs(cfg.Registry.Path) {
		cfg.Registry.Path = filepath.Join(cm.basePath, cfg.Registry.Path)
	}
	return cfg, nil
}

func (cm *viperConfigManager) WorkerConfigFor(cfg *models.GlobalConfig, role string) (models.WorkerConfig, error) {
	base := models.WorkerConfig{
		ID:           cfg.Worker.ID,
		PollInterval: cfg.Worker.PollInterval,
		Roles:        []string{role},
	}
	if override, ok := cfg.Worker.Overrides[role]; ok {
		override.Roles = nil
		override.Overrides = nil
		if err := mergo.Merge(&base, override, mergo.WithOverride); err != nil {
			return models.WorkerConfig{}, fmt.Errorf("merging worker override for %s: %w", role, err)
		}
	}
	if base.ID == "" {
		base.ID = role
	}
	return base, nil
}

// ValidateConfig checks the configuration and reports every invalid key in a
// single error.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.Registry.Path == "" {
		errs = append(errs, "registry.path must not be empty")
	}
	if !validBackends[cfg.Registry.Backend] {
		errs = append(errs, fmt.Sprintf("registry.backend %q is invalid, must be one of: json, badger", cfg.Registry.Backend))
	}
	if cfg.Coordinator.URL == "" {
		errs = append(errs, "coordinator.url must not be empty")
	}
	if cfg.Worker.PollInterval <= 0 {
		errs = append(errs, fmt.Sprintf("worker.poll_interval must be positive, got %s", cfg.Worker.PollInterval))
	}
	for _, r := range cfg.Worker.Roles {
		if !validRoles[r] {
			errs = append(errs, fmt.Sprintf("worker.roles entry %q is invalid, must be one of: manager, jules, observer, atlas", r))
		}
	}
	for r := range cfg.Worker.Overrides {
		if !validRoles[r] {
			errs = append(errs, fmt.Sprintf("worker.overrides key %q is not a known role", r))
		}
	}
	if cfg.Health.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("health.timeout must be positive, got %s", cfg.Health.Timeout))
	}
	if !validLogLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid, must be one of: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("log.format %q is invalid, must be json or console", cfg.Log.Format))
	}
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL == "" {
		errs = append(errs, "notifications.slack.webhook_url is required when notifications are enabled")
	}
	if cfg.Alerts.ErrorRate < 0 || cfg.Alerts.ErrorRate > 1 {
		errs = append(errs, fmt.Sprintf("alerts.error_rate must be between 0 and 1, got %g", cfg.Alerts.ErrorRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
