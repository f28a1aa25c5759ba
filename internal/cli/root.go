// Package cli is the lockerd command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"smart-locker-backend/config"
)

const defaultConfigPath = "./config/config.yaml"

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "lockerd",
	Short:         "Smart locker controller",
	Long:          `Drives locker doors through GPIO or an I2C port expander and runs the deposit/pickup code lifecycle.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath(cfgFile)
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load configuration from %s: %w", path, err)
		}
		cfg = loaded
		logger = initLogger(cfg.LogLevel, cmd.ErrOrStderr())
		logger.Debug("configuration loaded", "path", path)
		return nil
	},
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// configPath resolves the flag, then CONFIG_PATH, then the default.
func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return defaultConfigPath
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $CONFIG_PATH or "+defaultConfigPath+")")
}
