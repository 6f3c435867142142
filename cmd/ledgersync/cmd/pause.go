package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// pauseCmd represents the pause command.
var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Request a pause of the active migration run",
	Long: `Request that the active migration run pause at the next batch
boundary. The run finishes the batch it is working on, commits its
checkpoint, and stops cleanly. Continue it later with 'ledgersync resume'.

Example:
  ledgersync pause`,
	Run: runPause,
}

func runPause(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	conn, store := openStore(cfg)
	defer conn.Close()

	run, err := store.ActiveRun(cfg.Migration.Company)
	exitOnError(err, "failed to look up active run")
	if run == nil {
		fmt.Println("No active run to pause")
		return
	}

	exitOnError(store.RequestPause(run.ID), "failed to request pause")
	fmt.Printf("Pause requested for run %s; it will stop at the next batch boundary\n", run.ID)
}
