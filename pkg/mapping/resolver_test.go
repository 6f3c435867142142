package mapping

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pigeonworks-llc/ledgersync/pkg/db"
	"github.com/pigeonworks-llc/ledgersync/pkg/ledger"
)

func newTestResolver(t *testing.T) (*Resolver, *db.Store, *ledger.MemStore) {
	t.Helper()

	conn, err := db.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := db.InitializeSchema(conn); err != nil {
		t.Fatalf("InitializeSchema() failed: %v", err)
	}

	store := db.NewStore(conn)
	docs := ledger.NewMemStore()
	return NewResolver(store, docs, DefaultProfile(), "acme", "run-1"), store, docs
}

func TestResolvePersistedMappingWins(t *testing.T) {
	resolver, store, _ := newTestResolver(t)
	ctx := context.Background()

	// A manual mapping beats any ruleset suggestion for the same code.
	err := store.PutMapping(db.AccountMapping{
		Company: "acme", SourceLedgerID: 4100,
		TargetAccount: "Membership Income", AccountType: "income", Origin: db.OriginManual,
	})
	if err != nil {
		t.Fatalf("PutMapping() failed: %v", err)
	}

	ref, err := resolver.Resolve(ctx, 4100, "", DirectionIncome)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if ref.Account != "Membership Income" || ref.Origin != db.OriginManual {
		t.Errorf("Resolve() = %+v, expected the manual mapping", ref)
	}
}

func TestResolveRulesetCreatesAutoMapping(t *testing.T) {
	resolver, store, docs := newTestResolver(t)
	ctx := context.Background()

	ref, err := resolver.Resolve(ctx, 1300, "", DirectionBalance)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if ref.Account != "Debtors" || ref.Type != TypeReceivable {
		t.Errorf("Resolve(1300) = %+v, expected Debtors/receivable", ref)
	}

	persisted, err := store.GetMapping("acme", 1300)
	if err != nil {
		t.Fatalf("GetMapping() failed: %v", err)
	}
	if persisted == nil || persisted.Origin != db.OriginAuto {
		t.Errorf("persisted mapping = %+v, expected origin auto", persisted)
	}

	// The account document was created in the target system.
	id, err := docs.Find(ctx, ledger.DocAccount, ledger.Fields{"account_name": "Debtors"})
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	if id == "" {
		t.Error("account document for Debtors was not created")
	}
}

func TestResolveUnmappedCreatesPlaceholderOnce(t *testing.T) {
	resolver, store, docs := newTestResolver(t)
	ctx := context.Background()

	ref, err := resolver.Resolve(ctx, 12345, "mystery ledger", DirectionIncome)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if ref.Account != PlaceholderIncome {
		t.Errorf("Resolve() account = %q, expected %q", ref.Account, PlaceholderIncome)
	}
	if ref.Origin != db.OriginPlaceholder {
		t.Errorf("Resolve() origin = %s, expected placeholder", ref.Origin)
	}

	// Resolving the same id again reuses the placeholder.
	again, err := resolver.Resolve(ctx, 12345, "mystery ledger", DirectionIncome)
	if err != nil {
		t.Fatalf("second Resolve() failed: %v", err)
	}
	if again.Account != ref.Account {
		t.Errorf("second Resolve() = %q, expected %q", again.Account, ref.Account)
	}

	// Exactly one gap event, despite two resolves.
	gaps, err := store.ListMappingGaps("run-1")
	if err != nil {
		t.Fatalf("ListMappingGaps() failed: %v", err)
	}
	if len(gaps) != 1 {
		t.Fatalf("gap events = %d, expected exactly 1", len(gaps))
	}
	if gaps[0].SourceLedgerID != 12345 || gaps[0].PlaceholderAccount != PlaceholderIncome {
		t.Errorf("gap event = %+v", gaps[0])
	}

	// The placeholder document is flagged.
	fields := findAccountFields(t, docs, PlaceholderIncome)
	if fields["is_migration_placeholder"] != true {
		t.Error("placeholder account document is not flagged")
	}
}

func TestResolvePlaceholderScopedByDirection(t *testing.T) {
	resolver, _, _ := newTestResolver(t)
	ctx := context.Background()

	tests := []struct {
		dir      Direction
		expected string
	}{
		{DirectionIncome, PlaceholderIncome},
		{DirectionExpense, PlaceholderExpense},
		{DirectionBalance, PlaceholderBalance},
	}

	// Distinct unmapped ids so each resolve takes the placeholder path.
	id := int64(20000)
	for _, tt := range tests {
		ref, err := resolver.Resolve(ctx, id, "", tt.dir)
		if err != nil {
			t.Fatalf("Resolve(dir=%s) failed: %v", tt.dir, err)
		}
		if ref.Account != tt.expected {
			t.Errorf("Resolve(dir=%s) = %q, expected %q", tt.dir, ref.Account, tt.expected)
		}
		id++
	}
}

func findAccountFields(t *testing.T, docs *ledger.MemStore, name string) ledger.Fields {
	t.Helper()
	ctx := context.Background()

	id, err := docs.Find(ctx, ledger.DocAccount, ledger.Fields{"account_name": name})
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	if id == "" {
		t.Fatalf("account %q not found", name)
	}
	fields, err := docs.Get(ctx, ledger.DocAccount, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	return fields
}
