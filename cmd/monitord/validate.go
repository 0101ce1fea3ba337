package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  `Parse and validate the configuration file without starting the daemon.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			red := color.New(color.FgRed).SprintFunc()
			fatal("%s %v", red("configuration invalid:"), err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s %s\n", green("✓"), configPath)
		fmt.Printf("  services monitored: %d\n", len(cfg.ServiceMonitor.Services))

		channels := 0
		for _, enabled := range []bool{
			cfg.Notifications.Email.Enabled,
			cfg.Notifications.Telegram.Enabled,
			cfg.Notifications.Slack.Enabled,
			cfg.Notifications.Discord.Enabled,
			cfg.Notifications.Webhook.Enabled,
		} {
			if enabled {
				channels++
			}
		}
		fmt.Printf("  notification channels: %d\n", channels)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
