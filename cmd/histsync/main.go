package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/histsync/cmd/histsync/commands"
	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/logger"
	"github.com/teranos/histsync/version"
)

var rootCmd = &cobra.Command{
	Use:   "histsync",
	Short: "histsync - Shell history sync",
	Long: `histsync - Append-only shell history, synchronised across hosts.

Every host appends to its own chains; a sync pass compares per-chain
record counts with the server, then uploads what the server is missing
and downloads what this host is missing.

Available commands:
  sync    - Run one sync pass against the configured server
  status  - Show the chains held locally
  push    - Append a command to this host's history
  server  - Run the reference sync server
  am      - Manage histsync configuration ("I am")
  version - Show version information

Examples:
  histsync am init                   # Write a default config
  histsync push -- git status        # Record a command
  histsync sync --dry-run            # Show what a sync would move
  histsync sync -v                   # Sync with progress logging`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		logger.Debugw("Running command", "command", cmd.CommandPath(), "version", version.Version)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON on stderr")

	rootCmd.AddCommand(commands.SyncCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.PushCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Debugw("Command failed", logger.FieldError, fmt.Sprintf("%+v", err))
		logger.Cleanup()
		fmt.Fprintln(os.Stderr, "Error:", errors.UserMessage(err))
		os.Exit(1)
	}
}
