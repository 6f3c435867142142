package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var fromCheckpoint int64

// resumeCmd represents the resume command.
var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused or failed migration run",
	Long: `Resume the paused or failed migration run from its last committed
checkpoint.

The checkpoint can be rewound with --from-checkpoint to reprocess a range;
duplicate detection keeps reprocessing safe, already imported mutations are
skipped.

Example:
  ledgersync resume
  ledgersync resume --from-checkpoint 12000`,
	Run: runResume,
}

func init() {
	resumeCmd.Flags().Int64Var(&fromCheckpoint, "from-checkpoint", -1,
		"rewind the checkpoint to this mutation id before resuming")
}

func runResume(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	conn, store := openStore(cfg)
	defer conn.Close()

	driver := buildDriver(cfg)
	docs := buildDocStore(cfg)
	runner := newRunner(cfg, store, docs, driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := runner.Resume(ctx, cfg.Migration.Company, fromCheckpoint)
	exitOnError(err, "resume failed")

	printSummary(store, run.ID)
}
