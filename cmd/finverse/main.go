package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/finverse/finverse/internal/app"
)

var (
	rootCmd = &cobra.Command{
		Use:           "finverse",
		Short:         "Financial statements, payouts and feature registry for the Finverse platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the finverse version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	version = "dev"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	rootCmd.AddCommand(versionCmd, serveCmd, statementCmd(), cacheCmd(), jobsCmd())
	if err := rootCmd.Execute(); err != nil {
		slog.Default().Error("finverse", slog.Any("error", err))
		os.Exit(1)
	}
}
