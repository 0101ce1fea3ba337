package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xnetvn/monitord/internal/checks"
	"github.com/xnetvn/monitord/internal/update"
)

var checkUpdateCmd = &cobra.Command{
	Use:   "check-update",
	Short: "Check for a newer release",
	Long:  `Query the release endpoint once, ignoring the configured check interval.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("%v", err)
		}
		log, err := setupLogging(cfg)
		if err != nil {
			fatal("%v", err)
		}

		current := effectiveVersion(cfg)
		checker := update.New(
			cfg.UpdateChecker, current,
			checks.NetworkOptions{OnlyIPv4: cfg.Network.OnlyIPv4},
			nil, nil, nil, log.WithField("component", "update"),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		rel, err := checker.FetchLatest(ctx)
		if err != nil {
			fatal("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		fmt.Printf("current: %s\n", current)
		fmt.Printf("latest:  %s\n", rel.Tag)
		switch update.Compare(current, rel.Tag) {
		case update.Less:
			fmt.Printf("%s %s\n", yellow("update available:"), rel.ReleaseURL)
		case update.Incomparable:
			fmt.Printf("%s\n", yellow("versions are not comparable"))
		default:
			fmt.Printf("%s\n", green("up to date"))
		}
	},
}

func init() {
	rootCmd.AddCommand(checkUpdateCmd)
}
