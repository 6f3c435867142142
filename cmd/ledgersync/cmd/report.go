package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/ledgersync/pkg/migrate"
)

var reportRunID string

// reportCmd represents the report command.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the audit report of a migration run",
	Long: `Render the full audit report of a migration run.

Shows:
- Outcome counts and documents created per type
- Source total vs imported total reconciliation
- Placeholder accounts created for unmapped ledgers
- Parties derived from descriptions, awaiting review
- Per-mutation failures with their stage and message

Defaults to the latest run when --run is not given.

Example:
  ledgersync report
  ledgersync report --run 0b26c3e1-...`,
	Run: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportRunID, "run", "", "run id (default: latest run)")
}

func runReport(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	conn, store := openStore(cfg)
	defer conn.Close()

	runID := reportRunID
	if runID == "" {
		run, err := store.LatestRun(cfg.Migration.Company)
		exitOnError(err, "failed to look up runs")
		if run == nil {
			fmt.Printf("No migration runs for company %q\n", cfg.Migration.Company)
			return
		}
		runID = run.ID
	}

	summary, err := migrate.BuildSummary(store, runID)
	exitOnError(err, "failed to build report")
	summary.WriteText(os.Stdout)
}
