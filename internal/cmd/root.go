// Package cmd implements the overseer CLI. The commands stand in for the
// external orchestrator: they initialize a run, inspect progress, validate
// stage handoffs, clean up helper processes, and surface tuning advice.
package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/overseerhq/overseer/internal/config"
	"github.com/overseerhq/overseer/internal/logging"
	"github.com/overseerhq/overseer/internal/procclean"
	"github.com/overseerhq/overseer/internal/recovery"
	"github.com/overseerhq/overseer/internal/state"
)

var rootCmd = &cobra.Command{
	Use:   "overseer",
	Short: "Control core for multi-stage autonomous development workflows",
	Long: `Overseer tracks a planning → execution → validation pipeline in a durable
state document, decides when failed work is retried or abandoned, validates
stage handoffs, and tunes its own configuration from completed runs.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/overseer/config.yaml)")
	rootCmd.PersistentFlags().StringP("dir", "d", "", "run directory holding the state document (default: current directory)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("state.dir", rootCmd.PersistentFlags().Lookup("dir"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("OVERSEER")
	// Replace dots with underscores for nested keys in env vars
	// e.g., OVERSEER_RETRY_MAX_RETRIES for retry.max_retries
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// stateManager builds the state manager for the configured run directory.
func stateManager(cfg *config.Config) *state.Manager {
	return state.NewManager(cfg.StatePath())
}

// buildLogger builds the run logger, or a nop logger when logging is off.
func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLogger(cfg.State.Dir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}

// buildCleaner builds the process cleaner from the cleanup section.
func buildCleaner(cfg *config.Config, log *logging.Logger) *procclean.Cleaner {
	return procclean.New(log,
		procclean.WithKeywords(cfg.Cleanup.Keywords),
		procclean.WithTimeout(time.Duration(cfg.Cleanup.TimeoutSeconds)*time.Second))
}

// recoveryConfig maps the retry and gaming sections onto the error handler's
// policy. This is the only place the two meet; the handler never reads viper.
func recoveryConfig(cfg *config.Config) recovery.Config {
	return recovery.Config{
		MaxRetries:           cfg.Retry.MaxRetries,
		SessionMaxRetries:    cfg.Retry.SessionMaxRetries,
		IdenticalErrorWeight: cfg.Gaming.IdenticalErrorWeight,
		CategorySwitchWeight: cfg.Gaming.CategorySwitchWeight,
		BlockThreshold:       cfg.Gaming.BlockThreshold,
	}
}
