package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xnetvn/monitord/internal/journal"
)

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent events from the journal",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("%v", err)
		}
		if cfg.General.WorkDir == "" {
			fatal("general.work_dir is not configured, no journal to read")
		}

		j, err := journal.Open(filepath.Join(cfg.General.WorkDir, "events.db"))
		if err != nil {
			fatal("%v", err)
		}
		defer j.Close()

		entries, err := j.Recent(eventsLimit)
		if err != nil {
			fatal("%v", err)
		}
		if len(entries) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Println(gray("no events recorded"))
			return
		}

		for _, e := range entries {
			fmt.Printf("%s  %s  %-22s %s\n",
				e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				severityColor(e.Severity)(fmt.Sprintf("%-8s", e.Severity)),
				e.Type,
				e.Message)
			if e.Detail != "" {
				gray := color.New(color.FgHiBlack).SprintFunc()
				fmt.Printf("    %s\n", gray(e.Detail))
			}
		}
	},
}

func severityColor(severity string) func(a ...interface{}) string {
	switch severity {
	case "critical":
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case "error":
		return color.New(color.FgRed).SprintFunc()
	case "warning":
		return color.New(color.FgYellow).SprintFunc()
	case "debug":
		return color.New(color.FgHiBlack).SprintFunc()
	default:
		return color.New(color.FgGreen).SprintFunc()
	}
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "maximum entries to show")
	rootCmd.AddCommand(eventsCmd)
}
