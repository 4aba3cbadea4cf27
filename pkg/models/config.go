package models

import "time"

// RegistryConfig controls where and how the capability snapshot is stored.
type RegistryConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	Backend string `yaml:"backend" mapstructure:"backend"`
	Watch   bool   `yaml:"watch" mapstructure:"watch"`
}

// CoordinatorConfig holds the coordinator endpoint used by workers and the
// listen address of the reference coordinator.
type CoordinatorConfig struct {
	URL    string `yaml:"url" mapstructure:"url"`
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// WorkerConfig configures a task poller. Overrides are merged on top of the
// base settings for the named role.
type WorkerConfig struct {
	ID           string                  `yaml:"id" mapstructure:"id"`
	Roles        []string                `yaml:"roles" mapstructure:"roles"`
	PollInterval time.Duration           `yaml:"poll_interval" mapstructure:"poll_interval"`
	Overrides    map[string]WorkerConfig `yaml:"overrides,omitempty" mapstructure:"overrides"`
}

// HealthConfig controls service health checking.
type HealthConfig struct {
	Probe   bool          `yaml:"probe" mapstructure:"probe"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SlackConfig holds the Slack webhook settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// NotificationConfig controls alert notifications.
type NotificationConfig struct {
	Enabled bool        `yaml:"enabled" mapstructure:"enabled"`
	Slack   SlackConfig `yaml:"slack" mapstructure:"slack"`
}

// AlertConfig holds alert thresholds.
type AlertConfig struct {
	UnhealthyServices int     `yaml:"unhealthy_services" mapstructure:"unhealthy_services"`
	ErrorRate         float64 `yaml:"error_rate" mapstructure:"error_rate"`
	ActiveNodeMinutes int     `yaml:"active_node_minutes" mapstructure:"active_node_minutes"`
}

// GlobalConfig holds system-wide settings read from .hcconfig via Viper.
type GlobalConfig struct {
	Registry      RegistryConfig     `yaml:"registry" mapstructure:"registry"`
	Coordinator   CoordinatorConfig  `yaml:"coordinator" mapstructure:"coordinator"`
	Worker        WorkerConfig       `yaml:"worker" mapstructure:"worker"`
	Health        HealthConfig       `yaml:"health" mapstructure:"health"`
	Log           LogConfig          `yaml:"log" mapstructure:"log"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
	Alerts        AlertConfig        `yaml:"alerts" mapstructure:"alerts"`
}
