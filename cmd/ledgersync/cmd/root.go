// Package cmd provides CLI commands for ledgersync.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/pigeonworks-llc/ledgersync/pkg/config"
	"github.com/pigeonworks-llc/ledgersync/pkg/db"
	"github.com/pigeonworks-llc/ledgersync/pkg/ledger"
	"github.com/pigeonworks-llc/ledgersync/pkg/source"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ledgersync",
	Short: "Migrate bookkeeping-service history into a double-entry ledger",
	Long: `ledgersync migrates the complete transaction history of an external
bookkeeping service into a double-entry accounting system.

It supports:
- Paginated fetching over the service's REST API (legacy SOAP for checks)
- Ledger-code to account mapping with placeholder fallback
- Counterparty resolution with description-derived fallback
- Duplicate prevention keyed on the source mutation id
- Resumable, pausable runs with per-batch checkpoints
- Audit reporting with total reconciliation

Example:
  ledgersync migrate
  ledgersync status
  ledgersync report`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Setup logging
		logLevel := slog.LevelInfo
		if debug {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(statsCmd)
}

// Helper function to get config file path.
func getConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "" // Will use default .env loading
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}

// loadConfig loads and validates configuration.
func loadConfig() *config.Config {
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")
	exitOnError(cfg.Validate(), "invalid configuration")
	return cfg
}

// openStore opens the local state database. Caller closes the connection.
func openStore(cfg *config.Config) (*db.Connection, *db.Store) {
	conn, err := db.Open(cfg.StateDB)
	exitOnError(err, "failed to open state database")
	exitOnError(db.InitializeSchema(conn), "failed to initialize schema")
	return conn, db.NewStore(conn)
}

// buildDriver constructs the configured source driver.
func buildDriver(cfg *config.Config) source.Driver {
	switch cfg.Source.Driver {
	case "legacy":
		return source.NewLegacyDriver(source.LegacyConfig{
			SOAPURL:       cfg.Source.SOAPURL,
			Username:      cfg.Source.SOAPUsername,
			SecurityCode1: cfg.Source.SOAPCode1,
			SecurityCode2: cfg.Source.SOAPCode2,
			Timeout:       cfg.Source.Timeout,
		})
	default:
		return source.NewRESTDriver(source.RESTConfig{
			BaseURL:  cfg.Source.RESTURL,
			APIKey:   cfg.Source.APIKey,
			PageSize: cfg.Source.PageSize,
			Timeout:  cfg.Source.Timeout,
			Limiter:  rate.NewLimiter(rate.Limit(cfg.Source.RatePerSecond), 10),
		})
	}
}

// buildDocStore constructs the document-persistence collaborator client.
func buildDocStore(cfg *config.Config) ledger.DocumentStore {
	if cfg.Target.Memory {
		slog.Warn("Using in-memory document store, nothing will be persisted")
		return ledger.NewMemStore()
	}
	return ledger.NewHTTPStore(ledger.HTTPStoreConfig{
		BaseURL: cfg.Target.APIURL,
		APIKey:  cfg.Target.APIKey,
		Timeout: cfg.Source.Timeout,
	})
}
