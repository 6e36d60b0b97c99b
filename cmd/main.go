package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/testbridge-backend/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "testbridge",
		Short: "TestBridge - test management service",
		Long: `TestBridge manages projects, test suites, cases, plans and results
behind a versioned REST API with live notification counts.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.MigrateCmd())
	rootCmd.AddCommand(cli.StatsCmd())
	rootCmd.AddCommand(cli.UserCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
