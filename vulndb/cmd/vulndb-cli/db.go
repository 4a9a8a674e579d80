package main

import (
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Commands to work with the hash run ledger",
}

var dbCleanCmd = &cobra.Command{
	Use:   "clean <key>",
	Short: "Remove the recorded hash runs of a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runDBClean,
}

var gcFlags = struct {
	dryRun     bool
	failedOnly bool
}{}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runDBMigrate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show hash collection runs per key",
	RunE:  runStatus,
}

func runDBClean(cmd *cobra.Command, args []string) error {
	_, err := App().Ledger.CleanupKey(
		cmd.OutOrStdout(),
		args[0],
		gcFlags.failedOnly,
		gcFlags.dryRun,
	)
	return err
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	return App().Ledger.Migrate()
}

func runStatus(cmd *cobra.Command, args []string) error {
	summaries, err := App().Ledger.Summaries()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Runs", "Failures", "Versions Added", "Last Started"})
	for _, summary := range summaries {
		table.Append([]string{
			summary.TargetKey,
			strconv.Itoa(summary.Runs),
			strconv.Itoa(summary.Failures),
			strconv.Itoa(summary.VersionsAdded),
			summary.LastStarted.Format("2006-01-02 15:04:05"),
		})
	}
	table.Render()
	return nil
}

func init() {
	dbCmd.PersistentFlags().BoolVarP(&gcFlags.dryRun, "dry-run", "n", false, "Only show the records found")
	dbCleanCmd.Flags().BoolVar(&gcFlags.failedOnly, "failed", false, "Only remove failed runs")

	dbCmd.AddCommand(dbCleanCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(statusCmd)
}
