// Package migrate orchestrates a full history migration: paging through the
// source, classifying and building documents in a bounded worker pool,
// detecting duplicates, and committing checkpoints per batch so an
// interrupted run resumes without re-importing anything.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/ledgersync/pkg/builder"
	"github.com/pigeonworks-llc/ledgersync/pkg/db"
	"github.com/pigeonworks-llc/ledgersync/pkg/ledger"
	"github.com/pigeonworks-llc/ledgersync/pkg/source"
)

// ErrBoundedDriver is returned when a full migration is attempted over a
// driver that only sees a recent window of history.
var ErrBoundedDriver = errors.New("driver only exposes a bounded history window; pass --allow-bounded to use it anyway")

// documentTypes are the target types a mutation can land in, checked during
// duplicate detection.
var documentTypes = []ledger.DocType{
	ledger.DocSalesInvoice,
	ledger.DocPurchaseInvoice,
	ledger.DocPaymentEntry,
	ledger.DocJournalEntry,
}

// Config tunes the orchestrator.
type Config struct {
	Workers          int     // concurrent builders per batch, default 4
	FailureThreshold float64 // failed/processed ratio that flags the run, default 0.10
	AllowBounded     bool    // permit migration over a bounded driver
	MaxRetries       int     // attempts for transient failures
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 0.10
	}
}

// BuilderFunc creates the document builder for a run. Builders are per-run:
// their mapping resolvers attribute placeholder creations to the run id.
type BuilderFunc func(runID string) *builder.Builder

// Runner drives one migration run end to end.
type Runner struct {
	driver     source.Driver
	store      *db.Store
	docs       ledger.DocumentStore
	newBuilder BuilderFunc
	builder    *builder.Builder
	cfg        Config
	retry      retryPolicy
	logger     *slog.Logger

	locks keyedMutex
}

// NewRunner wires the orchestrator.
func NewRunner(driver source.Driver, store *db.Store, docs ledger.DocumentStore, newBuilder BuilderFunc, cfg Config, logger *slog.Logger) *Runner {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	retry := defaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		retry.maxAttempts = cfg.MaxRetries
	}
	return &Runner{
		driver:     driver,
		store:      store,
		docs:       docs,
		newBuilder: newBuilder,
		cfg:        cfg,
		retry:      retry,
		logger:     logger,
	}
}

// Start begins a new run for a company. A second start while a run is active
// fails fast with db.ErrRunActive. Connectivity problems are fatal before any
// state is created.
func (r *Runner) Start(ctx context.Context, company string) (*db.MigrationRun, error) {
	if r.driver.Bounded() && !r.cfg.AllowBounded {
		return nil, ErrBoundedDriver
	}
	if err := r.retry.withRetry(ctx, func() error { return r.driver.Ping(ctx) }); err != nil {
		return nil, fmt.Errorf("source connectivity check failed: %w", err)
	}

	run, err := r.store.CreateRun(company, 0)
	if err != nil {
		return nil, err
	}
	r.builder = r.newBuilder(run.ID)
	r.logger.Info("migration run started", "run_id", run.ID, "company", company)
	return run, r.loop(ctx, run)
}

// Resume continues a paused or failed run from its last committed checkpoint.
// fromCheckpoint >= 0 rewinds the checkpoint first; duplicate detection keeps
// the rewind safe.
func (r *Runner) Resume(ctx context.Context, company string, fromCheckpoint int64) (*db.MigrationRun, error) {
	run, err := r.store.ActiveRun(company)
	if err != nil {
		return nil, err
	}
	if run == nil {
		// A failed run is not active but stays resumable at its last good
		// checkpoint.
		run, err = r.store.LatestRun(company)
		if err != nil {
			return nil, err
		}
	}
	if run == nil {
		return nil, fmt.Errorf("no resumable run for company %q: %w", company, db.ErrRunNotFound)
	}
	switch run.Status {
	case db.RunStatusPaused, db.RunStatusFailed:
	default:
		return nil, fmt.Errorf("run %s is %s, only paused or failed runs can be resumed", run.ID, run.Status)
	}

	if fromCheckpoint >= 0 {
		if err := r.store.RewindCheckpoint(run.ID, fromCheckpoint); err != nil {
			return nil, err
		}
		run.Checkpoint = fromCheckpoint
	}
	if err := r.store.MarkResumed(run.ID); err != nil {
		return nil, err
	}
	r.builder = r.newBuilder(run.ID)
	r.logger.Info("migration run resumed", "run_id", run.ID, "checkpoint", run.Checkpoint)
	return run, r.loop(ctx, run)
}

// loop pages through the source until history is exhausted, a pause is
// requested, or fetching fails beyond retry.
func (r *Runner) loop(ctx context.Context, run *db.MigrationRun) error {
	checkpoint := run.Checkpoint
	cursor := ""

	for {
		var page source.Page
		err := r.retry.withRetry(ctx, func() error {
			var ferr error
			page, ferr = r.driver.FetchPage(ctx, cursor)
			return ferr
		})
		if err != nil {
			// The run stays resumable at the last committed checkpoint.
			r.recordFailure(run, 0, "fetch", err, nil)
			if finErr := r.store.FinishRun(run.ID, db.RunStatusFailed, true); finErr != nil {
				r.logger.Error("failed to mark run failed", "run_id", run.ID, "error", finErr)
			}
			return fmt.Errorf("failed fetching page at checkpoint %d: %w", checkpoint, err)
		}

		batch := make([]source.Mutation, 0, len(page.Mutations))
		for _, m := range page.Mutations {
			if m.ID > checkpoint {
				batch = append(batch, m)
			}
		}
		sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })

		if len(batch) > 0 {
			stats := r.processBatch(ctx, run, batch)
			checkpoint = batch[len(batch)-1].ID
			if err := r.store.AdvanceCheckpoint(run.ID, checkpoint, stats); err != nil {
				return fmt.Errorf("failed to commit checkpoint %d: %w", checkpoint, err)
			}
			r.logger.Info("batch committed",
				"run_id", run.ID, "checkpoint", checkpoint,
				"created", stats.Created, "skipped", stats.Skipped, "failed", stats.Failed)
		}

		if paused, err := r.store.PauseRequested(run.ID); err != nil {
			return err
		} else if paused {
			if err := r.store.MarkPaused(run.ID); err != nil {
				return err
			}
			r.logger.Info("migration run paused", "run_id", run.ID, "checkpoint", checkpoint)
			return nil
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return r.finalize(run)
}

func (r *Runner) finalize(run *db.MigrationRun) error {
	final, err := r.store.GetRun(run.ID)
	if err != nil {
		return err
	}

	processed := final.Created + final.Skipped + final.Failed
	attention := false
	if processed > 0 {
		attention = float64(final.Failed)/float64(processed) > r.cfg.FailureThreshold
	}
	if err := r.store.FinishRun(run.ID, db.RunStatusCompleted, attention); err != nil {
		return err
	}

	r.logger.Info("migration run completed",
		"run_id", run.ID,
		"created", final.Created, "skipped", final.Skipped,
		"failed", final.Failed, "warnings", final.Warnings,
		"attention", attention)
	return nil
}

// processBatch runs the batch through a bounded worker pool and folds the
// per-mutation outcomes into one stats delta.
func (r *Runner) processBatch(ctx context.Context, run *db.MigrationRun, batch []source.Mutation) db.RunStats {
	type outcome struct {
		created  bool
		skipped  bool
		failed   bool
		warnings int
		amount   decimal.Decimal
	}

	outcomes := make([]outcome, len(batch))
	sem := make(chan struct{}, r.cfg.Workers)
	var wg sync.WaitGroup

	for i, m := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, m source.Mutation) {
			defer wg.Done()
			defer func() { <-sem }()

			created, warnings, err := r.processOne(ctx, run, m)
			switch {
			case err != nil:
				outcomes[i] = outcome{failed: true}
			case created:
				outcomes[i] = outcome{created: true, warnings: warnings, amount: m.Amount.Abs()}
			default:
				outcomes[i] = outcome{skipped: true}
			}
		}(i, m)
	}
	wg.Wait()

	stats := db.RunStats{SourceTotal: decimal.Zero, ImportedTotal: decimal.Zero}
	for i, o := range outcomes {
		stats.SourceTotal = stats.SourceTotal.Add(batch[i].Amount.Abs())
		stats.Warnings += o.warnings
		switch {
		case o.created:
			stats.Created++
			stats.ImportedTotal = stats.ImportedTotal.Add(o.amount)
		case o.skipped:
			stats.Skipped++
		case o.failed:
			stats.Failed++
		}
	}
	return stats
}

// processOne takes a single mutation through duplicate check, build, and
// persist. Errors are recorded as failure events and isolated: the caller
// moves on to the next mutation.
func (r *Runner) processOne(ctx context.Context, run *db.MigrationRun, m source.Mutation) (created bool, warnings int, err error) {
	unlock := r.locks.lock(m.ID)
	defer unlock()

	if dup, err := r.alreadyImported(ctx, run.Company, m.ID); err != nil {
		r.recordFailure(run, m.ID, "persist", err, &m)
		return false, 0, err
	} else if dup {
		r.logger.Debug("mutation already imported", "mutation_id", m.ID)
		return false, 0, nil
	}

	if !m.Type.Valid() {
		err := fmt.Errorf("unknown mutation type %d", int(m.Type))
		r.recordFailure(run, m.ID, "classify", err, &m)
		return false, 0, err
	}

	result, err := r.builder.Build(ctx, m)
	if err != nil {
		r.recordFailure(run, m.ID, "build", err, &m)
		return false, 0, err
	}
	if result.Skipped {
		r.logger.Info("mutation skipped", "mutation_id", m.ID, "reason", result.SkipReason)
		return false, 0, nil
	}
	for _, w := range result.Warnings {
		r.logger.Warn("mutation imported with warning", "mutation_id", m.ID, "warning", w)
	}

	doc := result.Doc
	var docID string
	err = r.retry.withRetry(ctx, func() error {
		var cerr error
		docID, cerr = r.docs.Create(ctx, doc.Type, doc.StoreFields())
		return cerr
	})
	if err != nil {
		r.recordFailure(run, m.ID, "persist", err, &m)
		return false, 0, err
	}

	if err := r.store.RecordImported(run.ID, run.Company, m.ID, string(doc.Type), docID, doc.Total); err != nil {
		if errors.Is(err, db.ErrAlreadyImported) {
			return false, 0, nil
		}
		r.recordFailure(run, m.ID, "persist", err, &m)
		return false, 0, err
	}

	return true, len(result.Warnings), nil
}

// alreadyImported checks the local index first, then the document store, so a
// wiped local database still never produces duplicates.
func (r *Runner) alreadyImported(ctx context.Context, company string, mutationID int64) (bool, error) {
	imported, err := r.store.HasImported(company, mutationID)
	if err != nil || imported {
		return imported, err
	}

	for _, docType := range documentTypes {
		id, err := r.docs.Find(ctx, docType, ledger.Fields{"source_mutation_id": mutationID})
		if err != nil {
			return false, fmt.Errorf("duplicate check against %s failed: %w", docType, err)
		}
		if id != "" {
			return true, nil
		}
	}
	return false, nil
}

func (r *Runner) recordFailure(run *db.MigrationRun, mutationID int64, stage string, cause error, m *source.Mutation) {
	payload := ""
	if m != nil {
		raw, err := json.Marshal(map[string]interface{}{
			"id":          m.ID,
			"type":        int(m.Type),
			"date":        m.Date,
			"amount":      m.Amount.String(),
			"description": m.Description,
		})
		if err == nil {
			payload = string(raw)
		}
	}

	event := db.FailureEvent{
		RunID:      run.ID,
		Company:    run.Company,
		MutationID: mutationID,
		Stage:      stage,
		Message:    cause.Error(),
		Payload:    payload,
	}
	if err := r.store.RecordFailure(event); err != nil {
		r.logger.Error("failed to record failure event",
			"run_id", run.ID, "mutation_id", mutationID, "error", err)
	}
	r.logger.Error("mutation failed",
		"run_id", run.ID, "mutation_id", mutationID, "stage", stage, "error", cause)
}

// keyedMutex serializes check-and-create per mutation id so two workers can
// never race the same mutation into two documents. Entries are refcounted and
// dropped on release, keeping the map bounded by the batch size rather than
// the run's full history.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id int64) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*keyedLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
