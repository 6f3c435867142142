package migrate

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/ledgersync/pkg/db"
)

// Summary is the audit report for one run: outcome counts, document counts,
// total reconciliation, and everything queued for manual review.
type Summary struct {
	Run            *db.MigrationRun
	DocCounts      map[string]int
	Variance       decimal.Decimal
	Gaps           []db.MappingGapEvent
	DerivedParties []db.PartyRecord
	Failures       []db.FailureEvent
}

// BuildSummary assembles the audit summary for a run.
func BuildSummary(store *db.Store, runID string) (*Summary, error) {
	run, err := store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	counts, err := store.CountsByDocType(runID)
	if err != nil {
		return nil, err
	}
	gaps, err := store.ListMappingGaps(runID)
	if err != nil {
		return nil, err
	}
	parties, err := store.ListDerivedParties(run.Company)
	if err != nil {
		return nil, err
	}
	failures, err := store.ListFailures(runID)
	if err != nil {
		return nil, err
	}

	return &Summary{
		Run:            run,
		DocCounts:      counts,
		Variance:       run.SourceTotal.Sub(run.ImportedTotal),
		Gaps:           gaps,
		DerivedParties: parties,
		Failures:       failures,
	}, nil
}

// StatusLine renders the run state for operators, calling out completed runs
// that still carry failures.
func (s *Summary) StatusLine() string {
	switch s.Run.Status {
	case db.RunStatusCompleted:
		if s.Run.Failed > 0 {
			return fmt.Sprintf("completed with %d failures", s.Run.Failed)
		}
		return "completed"
	default:
		return string(s.Run.Status)
	}
}

// WriteText renders the summary as a plain-text report.
func (s *Summary) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Migration run %s (%s)\n", s.Run.ID, s.Run.Company)
	fmt.Fprintf(w, "Status:     %s", s.StatusLine())
	if s.Run.Attention {
		fmt.Fprint(w, "  [NEEDS ATTENTION]")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Checkpoint: %d\n", s.Run.Checkpoint)
	fmt.Fprintf(w, "Outcomes:   %d created, %d skipped, %d failed, %d warnings\n",
		s.Run.Created, s.Run.Skipped, s.Run.Failed, s.Run.Warnings)

	if len(s.DocCounts) > 0 {
		fmt.Fprintln(w, "\nDocuments created:")
		types := make([]string, 0, len(s.DocCounts))
		for t := range s.DocCounts {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %-20s %d\n", t, s.DocCounts[t])
		}
	}

	fmt.Fprintln(w, "\nReconciliation:")
	fmt.Fprintf(w, "  Source total:   %s\n", s.Run.SourceTotal)
	fmt.Fprintf(w, "  Imported total: %s\n", s.Run.ImportedTotal)
	fmt.Fprintf(w, "  Variance:       %s\n", s.Variance)

	if len(s.Gaps) > 0 {
		fmt.Fprintf(w, "\nUnmapped ledgers (%d):\n", len(s.Gaps))
		for _, g := range s.Gaps {
			fmt.Fprintf(w, "  ledger %d -> %s", g.SourceLedgerID, g.PlaceholderAccount)
			if g.Note != "" {
				fmt.Fprintf(w, "  (%s)", g.Note)
			}
			fmt.Fprintln(w)
		}
	}

	if len(s.DerivedParties) > 0 {
		fmt.Fprintf(w, "\nParties derived from descriptions, awaiting review (%d):\n", len(s.DerivedParties))
		for _, p := range s.DerivedParties {
			fmt.Fprintf(w, "  %-10s %s\n", p.Role, p.PartyRef)
		}
	}

	if len(s.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures (%d):\n", len(s.Failures))
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  mutation %d [%s]: %s\n", f.MutationID, f.Stage, f.Message)
		}
	}
}
