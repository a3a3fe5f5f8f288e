// Package main contains the entrypoint for the nlud daemon and its CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "nlud",
	Short: "NLU model lifecycle daemon",
	Long: `nlud mounts bots, watches their intent and entity definitions, and keeps
one trained NLU model per bot language up to date. Without a subcommand it
runs the daemon.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context(), configPath)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (defaults to ./config.yaml when present)")
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statusCmd())

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
