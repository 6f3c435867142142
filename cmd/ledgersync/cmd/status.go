package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/ledgersync/pkg/db"
)

// statusCmd represents the status command.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the latest migration run",
	Long: `Show the status, checkpoint, and outcome counters of the latest
migration run for the configured company.

Example:
  ledgersync status`,
	Run: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	conn, store := openStore(cfg)
	defer conn.Close()

	run, err := store.LatestRun(cfg.Migration.Company)
	exitOnError(err, "failed to look up runs")
	if run == nil {
		fmt.Printf("No migration runs for company %q\n", cfg.Migration.Company)
		return
	}

	status := string(run.Status)
	if run.Status == db.RunStatusCompleted && run.Failed > 0 {
		status = fmt.Sprintf("completed with %d failures", run.Failed)
	}

	fmt.Printf("Run:        %s\n", run.ID)
	fmt.Printf("Company:    %s\n", run.Company)
	fmt.Printf("Status:     %s\n", status)
	fmt.Printf("Checkpoint: %d\n", run.Checkpoint)
	fmt.Printf("Outcomes:   %d created, %d skipped, %d failed, %d warnings\n",
		run.Created, run.Skipped, run.Failed, run.Warnings)
	fmt.Printf("Started:    %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.FinishedAt.Valid {
		fmt.Printf("Finished:   %s\n", run.FinishedAt.Time.Format("2006-01-02 15:04:05"))
	}
	if run.PauseRequested && run.Status == db.RunStatusRunning {
		fmt.Println("A pause has been requested and takes effect at the next batch boundary")
	}
	if run.Attention {
		fmt.Println("This run NEEDS ATTENTION: its failure rate exceeded the threshold")
	}
}
