package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/crosspost/cmd/crosspost/commands"
	"github.com/teranos/crosspost/logger"
)

var rootCmd = &cobra.Command{
	Use:   "crosspost",
	Short: "crosspost - scheduled multi-platform publishing",
	Long: `crosspost - scheduled multi-platform publishing.

Publishes drafts to external blogging platforms at their scheduled time.
Every processing pass is started by a trigger (HTTP, cron, or this CLI);
passes from several processes may overlap safely.

Available commands:
  serve   - Start the HTTP trigger server (optionally with a cron trigger)
  process - Run one processing pass and print the summary
  jobs    - Inspect and administer scheduled jobs
  db      - Manage the database schema
  am      - Show crosspost configuration
  version - Show build information

Examples:
  crosspost serve --cron="@every 1m"
  crosspost process --json
  crosspost jobs ls --status failed
  crosspost am show --format yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return commands.InitLogging(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a TOML config file (skips the config cascade)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ProcessCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
