package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xnetvn/monitord/internal/config"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var (
	configPath string
	envPath    string
)

var rootCmd = &cobra.Command{
	Use:   "monitord",
	Short: "Service and resource monitoring daemon",
	Long: `monitord watches configured services and host resources, restarts
what it can recover, and alerts through email, Telegram, Slack,
Discord, and webhooks when it cannot.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		"/etc/monitord/config.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-file",
		"/etc/monitord/.env", "path to an optional .env file")
}

// loadConfig loads the .env file and then the configuration document.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envPath); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// effectiveVersion prefers the configured app_version over the build stamp,
// so packaged deployments can pin what the update checker compares against.
func effectiveVersion(cfg *config.Config) string {
	if cfg != nil && cfg.General.AppVersion != "" {
		return cfg.General.AppVersion
	}
	return version
}

// setupLogging configures the process logger from the general section.
func setupLogging(cfg *config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if !config.BoolOr(cfg.General.Logging.Enabled, true) {
		log.SetOutput(io.Discard)
		return log, nil
	}

	level, err := logrus.ParseLevel(cfg.General.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if path := cfg.General.Logging.File; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}
	return log, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
