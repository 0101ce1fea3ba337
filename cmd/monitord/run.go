package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xnetvn/monitord/internal/daemon"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the monitoring daemon",
	Long: `Load the configuration, start monitoring, and keep running until
SIGTERM or SIGINT. SIGHUP reloads the configuration; a bad reload is
rejected and the previous configuration stays active.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("%v", err)
		}
		log, err := setupLogging(cfg)
		if err != nil {
			fatal("%v", err)
		}

		if err := writePIDFile(cfg.General.PIDFile); err != nil {
			fatal("%v", err)
		}
		defer os.Remove(cfg.General.PIDFile)

		rt, err := daemon.BuildRuntime(cfg, effectiveVersion(cfg), nil, log)
		if err != nil {
			fatal("%v", err)
		}
		d := daemon.New(rt, effectiveVersion(cfg), nil, log)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		go func() {
			for range hup {
				log.Info("SIGHUP received, reloading configuration")
				fresh, err := loadConfig()
				if err != nil {
					log.WithError(err).Error("reload failed, keeping current configuration")
					continue
				}
				if err := d.Reload(fresh); err != nil {
					log.WithError(err).Error("reload failed, keeping current configuration")
				}
			}
		}()

		log.WithField("version", effectiveVersion(cfg)).Info("monitord starting")
		if err := d.Run(ctx); err != nil {
			fatal("%v", err)
		}
		log.Info("monitord stopped")
	},
}

// writePIDFile records our PID, refusing to clobber a live daemon's file.
func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if raw, err := os.ReadFile(path); err == nil {
		if pid, err := strconv.Atoi(string(trimmed(raw))); err == nil && pidAlive(pid) {
			return fmt.Errorf("already running with pid %d (%s)", pid, path)
		}
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func trimmed(raw []byte) []byte {
	for len(raw) > 0 && (raw[len(raw)-1] == '\n' || raw[len(raw)-1] == ' ') {
		raw = raw[:len(raw)-1]
	}
	return raw
}

// pidAlive reports whether a process with the given pid exists.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
