package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/ledgersync/pkg/db"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display migration statistics",
	Long: `Display statistics about the migration state for the configured
company.

Shows:
- Account mappings by origin (manual, auto, placeholder)
- Parties derived from descriptions
- Cumulative counters of the latest run

Example:
  ledgersync stats`,
	Run: runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	conn, store := openStore(cfg)
	defer conn.Close()

	company := cfg.Migration.Company

	manual, err := store.ListMappings(company, db.OriginManual)
	exitOnError(err, "failed to list mappings")
	auto, err := store.ListMappings(company, db.OriginAuto)
	exitOnError(err, "failed to list mappings")
	placeholder, err := store.ListMappings(company, db.OriginPlaceholder)
	exitOnError(err, "failed to list mappings")
	derived, err := store.ListDerivedParties(company)
	exitOnError(err, "failed to list derived parties")

	fmt.Println("\n=== Migration Statistics ===")
	fmt.Printf("Manual mappings:      %d\n", len(manual))
	fmt.Printf("Auto mappings:        %d\n", len(auto))
	fmt.Printf("Placeholder mappings: %d\n", len(placeholder))
	fmt.Printf("Derived parties:      %d\n", len(derived))

	run, err := store.LatestRun(company)
	exitOnError(err, "failed to look up runs")
	if run == nil {
		fmt.Println("Last run:             (never)")
		fmt.Println()
		return
	}

	fmt.Printf("Last run:             %s (%s)\n", run.ID, run.Status)
	fmt.Printf("Documents created:    %d\n", run.Created)
	fmt.Printf("Imported total:       %s\n", run.ImportedTotal)
	fmt.Println()
}
