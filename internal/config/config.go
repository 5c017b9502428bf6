// Package config defines the overseer configuration, its defaults, and the
// viper wiring that loads it from file and environment.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete overseer configuration.
type Config struct {
	State    StateConfig    `mapstructure:"state"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Gaming   GamingConfig   `mapstructure:"gaming"`
	Session  SessionConfig  `mapstructure:"session"`
	Learning LearningConfig `mapstructure:"learning"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Handoff  HandoffConfig  `mapstructure:"handoff"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StateConfig controls where the durable workflow state lives.
type StateConfig struct {
	// Dir is the run directory holding the state document, logs, and
	// learning data. Empty means the current working directory.
	Dir string `mapstructure:"dir"`
	// FileName is the state document's file name within Dir.
	FileName string `mapstructure:"file_name"`
}

// RetryConfig bounds how often a failed unit is re-attempted.
type RetryConfig struct {
	// MaxRetries is the per-phase retry budget.
	MaxRetries int `mapstructure:"max_retries"`
	// SessionMaxRetries is the tighter per-session crash budget.
	SessionMaxRetries int `mapstructure:"session_max_retries"`
}

// GamingConfig tunes the gaming detector. The weights are observed
// heuristics, kept configurable rather than hard-coded.
type GamingConfig struct {
	// IdenticalErrorWeight is added when an attempt repeats the previous
	// attempt's error text verbatim.
	IdenticalErrorWeight float64 `mapstructure:"identical_error_weight"`
	// CategorySwitchWeight is added when the failure category changes
	// without the pass count improving.
	CategorySwitchWeight float64 `mapstructure:"category_switch_weight"`
	// BlockThreshold is the score above which retries are refused.
	BlockThreshold float64 `mapstructure:"block_threshold"`
}

// SessionConfig carries the execution-stage budgets handed to workers.
type SessionConfig struct {
	MaxSessions        int `mapstructure:"max_sessions"`
	MaxIterations      int `mapstructure:"max_iterations"`
	CheckpointInterval int `mapstructure:"checkpoint_interval"`
}

// LearningConfig controls metric capture.
type LearningConfig struct {
	// Enabled toggles metric capture; recommendations need captured data.
	Enabled bool `mapstructure:"enabled"`
	// Dir is where the JSONL topic logs live. Empty means <state.dir>/learning.
	Dir string `mapstructure:"dir"`
}

// CleanupConfig controls helper-process termination.
type CleanupConfig struct {
	// Keywords are the process-name fragments the cleaner targets.
	Keywords []string `mapstructure:"keywords"`
	// TimeoutSeconds bounds one enumerate-and-kill pass.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HandoffConfig controls stage-transition artifacts.
type HandoffConfig struct {
	// TaskFileName is the YAML task descriptor written for the next stage.
	TaskFileName string `mapstructure:"task_file_name"`
}

// LoggingConfig controls the structured log output.
type LoggingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// MaxSizeMB rotates the log file past this size (0 disables rotation).
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is how many rotated files to keep.
	MaxBackups int `mapstructure:"max_backups"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		State: StateConfig{
			FileName: "workflow_state.json",
		},
		Retry: RetryConfig{
			MaxRetries:        3,
			SessionMaxRetries: 2,
		},
		Gaming: GamingConfig{
			IdenticalErrorWeight: 0.2,
			CategorySwitchWeight: 0.1,
			BlockThreshold:       0.5,
		},
		Session: SessionConfig{
			MaxSessions:        50,
			MaxIterations:      20,
			CheckpointInterval: 5,
		},
		Learning: LearningConfig{
			Enabled: true,
		},
		Cleanup: CleanupConfig{
			Keywords:       []string{"playwright", "mcp-server", "chrome"},
			TimeoutSeconds: 10,
		},
		Handoff: HandoffConfig{
			TaskFileName: "task.yaml",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers all defaults with viper so partial config files and
// environment overrides merge cleanly.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("state.dir", defaults.State.Dir)
	viper.SetDefault("state.file_name", defaults.State.FileName)

	viper.SetDefault("retry.max_retries", defaults.Retry.MaxRetries)
	viper.SetDefault("retry.session_max_retries", defaults.Retry.SessionMaxRetries)

	viper.SetDefault("gaming.identical_error_weight", defaults.Gaming.IdenticalErrorWeight)
	viper.SetDefault("gaming.category_switch_weight", defaults.Gaming.CategorySwitchWeight)
	viper.SetDefault("gaming.block_threshold", defaults.Gaming.BlockThreshold)

	viper.SetDefault("session.max_sessions", defaults.Session.MaxSessions)
	viper.SetDefault("session.max_iterations", defaults.Session.MaxIterations)
	viper.SetDefault("session.checkpoint_interval", defaults.Session.CheckpointInterval)

	viper.SetDefault("learning.enabled", defaults.Learning.Enabled)
	viper.SetDefault("learning.dir", defaults.Learning.Dir)

	viper.SetDefault("cleanup.keywords", defaults.Cleanup.Keywords)
	viper.SetDefault("cleanup.timeout_seconds", defaults.Cleanup.TimeoutSeconds)

	viper.SetDefault("handoff.task_file_name", defaults.Handoff.TaskFileName)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and
// validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded configuration is unusable.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// StatePath resolves the state document's full path.
func (c *Config) StatePath() string {
	return filepath.Join(c.State.Dir, c.State.FileName)
}

// LearningDir resolves the learning data directory.
func (c *Config) LearningDir() string {
	if c.Learning.Dir != "" {
		return c.Learning.Dir
	}
	return filepath.Join(c.State.Dir, "learning")
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "overseer")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".overseer"
	}
	return filepath.Join(home, ".config", "overseer")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
