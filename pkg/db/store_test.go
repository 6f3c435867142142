package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	conn, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := InitializeSchema(conn); err != nil {
		t.Fatalf("InitializeSchema() failed: %v", err)
	}
	return NewStore(conn)
}

func TestCreateRunEnforcesSingleActiveRun(t *testing.T) {
	store := newTestStore(t)

	run, err := store.CreateRun("acme", 0)
	if err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}

	if _, err := store.CreateRun("acme", 0); !errors.Is(err, ErrRunActive) {
		t.Errorf("second CreateRun() = %v, expected ErrRunActive", err)
	}

	// A different company is not blocked.
	if _, err := store.CreateRun("other", 0); err != nil {
		t.Errorf("CreateRun() for other company failed: %v", err)
	}

	// A paused run still holds the lock.
	if err := store.MarkPaused(run.ID); err != nil {
		t.Fatalf("MarkPaused() failed: %v", err)
	}
	if _, err := store.CreateRun("acme", 0); !errors.Is(err, ErrRunActive) {
		t.Errorf("CreateRun() with paused run = %v, expected ErrRunActive", err)
	}

	// A finished run releases it.
	if err := store.FinishRun(run.ID, RunStatusCompleted, false); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}
	if _, err := store.CreateRun("acme", 0); err != nil {
		t.Errorf("CreateRun() after finish failed: %v", err)
	}
}

func TestAdvanceCheckpointIsMonotonic(t *testing.T) {
	store := newTestStore(t)

	run, err := store.CreateRun("acme", 0)
	if err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}

	stats := RunStats{Created: 2, SourceTotal: decimal.RequireFromString("10.00"), ImportedTotal: decimal.RequireFromString("10.00")}
	if err := store.AdvanceCheckpoint(run.ID, 100, stats); err != nil {
		t.Fatalf("AdvanceCheckpoint() failed: %v", err)
	}

	// A lower checkpoint never rewinds, but its stats still accumulate.
	if err := store.AdvanceCheckpoint(run.ID, 50, RunStats{Skipped: 1, SourceTotal: decimal.Zero, ImportedTotal: decimal.Zero}); err != nil {
		t.Fatalf("AdvanceCheckpoint() failed: %v", err)
	}

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.Checkpoint != 100 {
		t.Errorf("checkpoint = %d, expected 100", got.Checkpoint)
	}
	if got.Created != 2 || got.Skipped != 1 {
		t.Errorf("counters = created %d skipped %d, expected 2 and 1", got.Created, got.Skipped)
	}
	if !got.ImportedTotal.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("imported total = %s, expected 10.00", got.ImportedTotal)
	}
}

func TestRewindCheckpoint(t *testing.T) {
	store := newTestStore(t)

	run, err := store.CreateRun("acme", 0)
	if err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	if err := store.AdvanceCheckpoint(run.ID, 500, RunStats{SourceTotal: decimal.Zero, ImportedTotal: decimal.Zero}); err != nil {
		t.Fatalf("AdvanceCheckpoint() failed: %v", err)
	}

	if err := store.RewindCheckpoint(run.ID, 200); err != nil {
		t.Fatalf("RewindCheckpoint() failed: %v", err)
	}

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.Checkpoint != 200 {
		t.Errorf("checkpoint = %d, expected 200 after rewind", got.Checkpoint)
	}
}

func TestPauseFlow(t *testing.T) {
	store := newTestStore(t)

	run, err := store.CreateRun("acme", 0)
	if err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}

	requested, err := store.PauseRequested(run.ID)
	if err != nil {
		t.Fatalf("PauseRequested() failed: %v", err)
	}
	if requested {
		t.Error("PauseRequested() = true on a fresh run")
	}

	if err := store.RequestPause(run.ID); err != nil {
		t.Fatalf("RequestPause() failed: %v", err)
	}
	requested, err = store.PauseRequested(run.ID)
	if err != nil {
		t.Fatalf("PauseRequested() failed: %v", err)
	}
	if !requested {
		t.Error("PauseRequested() = false after RequestPause()")
	}

	if err := store.MarkPaused(run.ID); err != nil {
		t.Fatalf("MarkPaused() failed: %v", err)
	}
	got, _ := store.GetRun(run.ID)
	if got.Status != RunStatusPaused {
		t.Errorf("status = %s, expected paused", got.Status)
	}

	if err := store.MarkResumed(run.ID); err != nil {
		t.Fatalf("MarkResumed() failed: %v", err)
	}
	got, _ = store.GetRun(run.ID)
	if got.Status != RunStatusRunning {
		t.Errorf("status = %s, expected running", got.Status)
	}
	if got.PauseRequested {
		t.Error("pause_requested should be cleared on resume")
	}
}

func TestPutMappingFirstWriteWins(t *testing.T) {
	store := newTestStore(t)

	first := AccountMapping{Company: "acme", SourceLedgerID: 1300, TargetAccount: "Debtors", AccountType: "receivable", Origin: OriginAuto}
	if err := store.PutMapping(first); err != nil {
		t.Fatalf("PutMapping() failed: %v", err)
	}

	second := first
	second.TargetAccount = "Something Else"
	if err := store.PutMapping(second); err != nil {
		t.Fatalf("PutMapping() conflict failed: %v", err)
	}

	got, err := store.GetMapping("acme", 1300)
	if err != nil {
		t.Fatalf("GetMapping() failed: %v", err)
	}
	if got == nil || got.TargetAccount != "Debtors" {
		t.Errorf("mapping = %+v, expected first write to win", got)
	}
}

func TestRecordImportedRejectsDuplicates(t *testing.T) {
	store := newTestStore(t)

	amount := decimal.RequireFromString("100.00")
	if err := store.RecordImported("run-1", "acme", 1345, "Sales Invoice", "SI-00001", amount); err != nil {
		t.Fatalf("RecordImported() failed: %v", err)
	}

	err := store.RecordImported("run-2", "acme", 1345, "Sales Invoice", "SI-00002", amount)
	if !errors.Is(err, ErrAlreadyImported) {
		t.Errorf("RecordImported() duplicate = %v, expected ErrAlreadyImported", err)
	}

	imported, err := store.HasImported("acme", 1345)
	if err != nil {
		t.Fatalf("HasImported() failed: %v", err)
	}
	if !imported {
		t.Error("HasImported() = false for a recorded mutation")
	}

	counts, err := store.CountsByDocType("run-1")
	if err != nil {
		t.Fatalf("CountsByDocType() failed: %v", err)
	}
	if counts["Sales Invoice"] != 1 {
		t.Errorf("counts = %v, expected 1 Sales Invoice", counts)
	}
}

func TestPartyRecords(t *testing.T) {
	store := newTestStore(t)

	rec := PartyRecord{Company: "acme", SourceRelationID: "REL001", Role: "customer", PartyRef: "Acme Webshops B.V."}
	if err := store.PutParty(rec); err != nil {
		t.Fatalf("PutParty() failed: %v", err)
	}

	got, err := store.FindParty("acme", "customer", "REL001", "")
	if err != nil {
		t.Fatalf("FindParty() failed: %v", err)
	}
	if got == nil || got.PartyRef != "Acme Webshops B.V." {
		t.Errorf("FindParty() = %+v", got)
	}

	derived := PartyRecord{Company: "acme", Role: "customer", PartyRef: "invoice adj", Derived: true}
	if err := store.PutParty(derived); err != nil {
		t.Fatalf("PutParty() derived failed: %v", err)
	}

	byRef, err := store.FindParty("acme", "customer", "", "invoice adj")
	if err != nil {
		t.Fatalf("FindParty() by ref failed: %v", err)
	}
	if byRef == nil || !byRef.Derived {
		t.Errorf("FindParty() by ref = %+v, expected derived record", byRef)
	}

	list, err := store.ListDerivedParties("acme")
	if err != nil {
		t.Fatalf("ListDerivedParties() failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListDerivedParties() returned %d records, expected 1", len(list))
	}
}

func TestEvents(t *testing.T) {
	store := newTestStore(t)

	gap := MappingGapEvent{RunID: "run-1", Company: "acme", SourceLedgerID: 4242, PlaceholderAccount: "Unmapped Income (Migration)", Note: "hint: donations"}
	if err := store.RecordMappingGap(gap); err != nil {
		t.Fatalf("RecordMappingGap() failed: %v", err)
	}
	gaps, err := store.ListMappingGaps("run-1")
	if err != nil {
		t.Fatalf("ListMappingGaps() failed: %v", err)
	}
	if len(gaps) != 1 || gaps[0].SourceLedgerID != 4242 {
		t.Errorf("ListMappingGaps() = %+v", gaps)
	}

	failure := FailureEvent{RunID: "run-1", Company: "acme", MutationID: 500, Stage: "build", Message: "boom"}
	if err := store.RecordFailure(failure); err != nil {
		t.Fatalf("RecordFailure() failed: %v", err)
	}
	failures, err := store.ListFailures("run-1")
	if err != nil {
		t.Fatalf("ListFailures() failed: %v", err)
	}
	if len(failures) != 1 || failures[0].MutationID != 500 {
		t.Errorf("ListFailures() = %+v", failures)
	}
}
