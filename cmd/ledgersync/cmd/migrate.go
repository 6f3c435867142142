package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/ledgersync/pkg/builder"
	"github.com/pigeonworks-llc/ledgersync/pkg/config"
	"github.com/pigeonworks-llc/ledgersync/pkg/db"
	"github.com/pigeonworks-llc/ledgersync/pkg/ledger"
	"github.com/pigeonworks-llc/ledgersync/pkg/mapping"
	"github.com/pigeonworks-llc/ledgersync/pkg/migrate"
	"github.com/pigeonworks-llc/ledgersync/pkg/party"
	"github.com/pigeonworks-llc/ledgersync/pkg/source"
)

var allowBounded bool

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run a full history migration",
	Long: `Migrate the complete transaction history from the source
bookkeeping service into the target accounting system.

This command:
1. Verifies source connectivity (fatal if unreachable)
2. Pages through the mutation history in order
3. Maps ledger codes to accounts, resolving counterparties as it goes
4. Builds and persists one target document per mutation
5. Commits a checkpoint after every batch

Only one run can be active per company; a paused or interrupted run is
continued with 'ledgersync resume'.

Example:
  ledgersync migrate
  ledgersync migrate --allow-bounded`,
	Run: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&allowBounded, "allow-bounded", false,
		"permit migration over the legacy driver's bounded history window")
}

func runMigrate(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	conn, store := openStore(cfg)
	defer conn.Close()

	driver := buildDriver(cfg)
	docs := buildDocStore(cfg)
	runner := newRunner(cfg, store, docs, driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := runner.Start(ctx, cfg.Migration.Company)
	if errors.Is(err, db.ErrRunActive) {
		exitOnError(err, "another run is already active, pause-resume or wait for it")
	}
	exitOnError(err, "migration failed")

	printSummary(store, run.ID)
}

// newRunner wires the orchestrator with per-run resolvers.
func newRunner(cfg *config.Config, store *db.Store, docs ledger.DocumentStore, driver source.Driver) *migrate.Runner {
	profile := mapping.DefaultProfile()
	if cfg.Migration.ProfilePath != "" {
		loaded, err := mapping.LoadProfile(cfg.Migration.ProfilePath)
		exitOnError(err, "failed to load mapping profile")
		profile = loaded
	}

	epsilon, err := decimal.NewFromString(cfg.Migration.AmountEpsilon)
	exitOnError(err, "invalid AMOUNT_EPSILON")

	buildCfg := builder.Config{
		Epsilon:           epsilon,
		ReceivableAccount: cfg.Migration.ReceivableAccount,
		PayableAccount:    cfg.Migration.PayableAccount,
		ClearingAccount:   cfg.Migration.ClearingAccount,
		ClearingPatterns:  cfg.Migration.ClearingPatterns,
		SkipZeroAmountFor: cfg.Migration.SkipZeroAmountFor,
	}

	company := cfg.Migration.Company
	newBuilder := func(runID string) *builder.Builder {
		accounts := mapping.NewResolver(store, docs, profile, company, runID)
		parties := party.NewResolver(driver, store, docs, company, slog.Default())
		return builder.New(accounts, parties, buildCfg, slog.Default())
	}

	return migrate.NewRunner(driver, store, docs, newBuilder, migrate.Config{
		Workers:          cfg.Migration.Workers,
		MaxRetries:       cfg.Migration.MaxRetries,
		FailureThreshold: cfg.Migration.FailureThreshold,
		AllowBounded:     allowBounded || cfg.Migration.AllowBounded,
	}, slog.Default())
}

// printSummary renders the post-run audit report.
func printSummary(store *db.Store, runID string) {
	summary, err := migrate.BuildSummary(store, runID)
	if err != nil {
		slog.Error("Failed to build run summary", "run_id", runID, "error", err)
		return
	}
	fmt.Println()
	summary.WriteText(os.Stdout)
}
