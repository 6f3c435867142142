package builder

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/ledgersync/pkg/ledger"
	"github.com/pigeonworks-llc/ledgersync/pkg/mapping"
	"github.com/pigeonworks-llc/ledgersync/pkg/party"
	"github.com/pigeonworks-llc/ledgersync/pkg/source"
)

// stubAccounts resolves every ledger id to a deterministic account name and
// records which ids were asked for.
type stubAccounts struct {
	resolved []int64
}

func (s *stubAccounts) Resolve(ctx context.Context, ledgerID int64, hint string, dir mapping.Direction) (mapping.AccountRef, error) {
	s.resolved = append(s.resolved, ledgerID)
	return mapping.AccountRef{Account: fmt.Sprintf("Account %d", ledgerID)}, nil
}

type stubParties struct{}

func (stubParties) Resolve(ctx context.Context, relationID, description string, role party.Role) (party.Ref, error) {
	name := relationID
	if name == "" {
		name = party.DeriveName(description)
	}
	if name == "" {
		name = party.UnknownCounterparty
	}
	return party.Ref{Name: name, Role: role, Derived: relationID == ""}, nil
}

func newTestBuilder(cfg Config) (*Builder, *stubAccounts) {
	accounts := &stubAccounts{}
	return New(accounts, stubParties{}, cfg, nil), accounts
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBuildRouting(t *testing.T) {
	tests := []struct {
		name     string
		mutation source.Mutation
		docType  ledger.DocType
		kind     ledger.PaymentKind
	}{
		{
			"opening balance to journal entry",
			source.Mutation{ID: 1, Type: source.TypeOpeningBalance, Date: "2019-01-01", Amount: dec("100"),
				Rows: []source.Row{{LedgerID: 1010, Amount: dec("100")}}},
			ledger.DocJournalEntry, "",
		},
		{
			"purchase invoice",
			source.Mutation{ID: 2, Type: source.TypePurchaseInvoice, Date: "2019-01-02", Amount: dec("50"), RelationID: "REL003",
				Rows: []source.Row{{LedgerID: 5020, Amount: dec("50")}}},
			ledger.DocPurchaseInvoice, "",
		},
		{
			"sales invoice",
			source.Mutation{ID: 3, Type: source.TypeSalesInvoice, Date: "2019-01-03", Amount: dec("75"), RelationID: "REL001",
				Rows: []source.Row{{LedgerID: 8000, Amount: dec("75")}}},
			ledger.DocSalesInvoice, "",
		},
		{
			"payment received",
			source.Mutation{ID: 4, Type: source.TypePaymentReceived, Date: "2019-01-04", Amount: dec("75"), LedgerID: 1010, RelationID: "REL001",
				Rows: []source.Row{{LedgerID: 1300, Amount: dec("75")}}},
			ledger.DocPaymentEntry, ledger.PaymentReceive,
		},
		{
			"payment sent",
			source.Mutation{ID: 5, Type: source.TypePaymentSent, Date: "2019-01-05", Amount: dec("50"), LedgerID: 1010, RelationID: "REL003",
				Rows: []source.Row{{LedgerID: 1600, Amount: dec("50")}}},
			ledger.DocPaymentEntry, ledger.PaymentPay,
		},
		{
			"money received",
			source.Mutation{ID: 6, Type: source.TypeMoneyReceived, Date: "2019-01-06", Amount: dec("20"), LedgerID: 1010,
				Rows: []source.Row{{LedgerID: 8100, Amount: dec("20")}}},
			ledger.DocPaymentEntry, ledger.PaymentTransfer,
		},
		{
			"money paid",
			source.Mutation{ID: 7, Type: source.TypeMoneyPaid, Date: "2019-01-07", Amount: dec("30"), LedgerID: 1010,
				Rows: []source.Row{{LedgerID: 6200, Amount: dec("30")}}},
			ledger.DocPaymentEntry, ledger.PaymentTransfer,
		},
		{
			"memorial to journal entry",
			source.Mutation{ID: 8, Type: source.TypeMemorial, Date: "2019-01-08", Amount: dec("10"),
				Rows: []source.Row{{LedgerID: 8200, Amount: dec("10")}, {LedgerID: 1300, Amount: dec("-10")}}},
			ledger.DocJournalEntry, "",
		},
		{
			"manual entry to journal entry",
			source.Mutation{ID: 9, Type: source.TypeManualEntry, Date: "2019-01-09", Amount: dec("5"),
				Rows: []source.Row{{LedgerID: 9000, Amount: dec("5")}}},
			ledger.DocJournalEntry, "",
		},
		{
			"correction to journal entry",
			source.Mutation{ID: 10, Type: source.TypeCorrection, Date: "2019-01-10", Amount: dec("5"),
				Rows: []source.Row{{LedgerID: 9000, Amount: dec("5")}}},
			ledger.DocJournalEntry, "",
		},
		{
			"reversal to journal entry",
			source.Mutation{ID: 11, Type: source.TypeReversal, Date: "2019-01-11", Amount: dec("5"),
				Rows: []source.Row{{LedgerID: 9000, Amount: dec("5")}}},
			ledger.DocJournalEntry, "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBuilder(Config{})
			result, err := b.Build(context.Background(), tt.mutation)
			if err != nil {
				t.Fatalf("Build() failed: %v", err)
			}
			if result.Skipped {
				t.Fatalf("Build() skipped: %s", result.SkipReason)
			}
			if result.Doc.Type != tt.docType {
				t.Errorf("doc type = %s, expected %s", result.Doc.Type, tt.docType)
			}
			if result.Doc.PaymentKind != tt.kind {
				t.Errorf("payment kind = %q, expected %q", result.Doc.PaymentKind, tt.kind)
			}
			if result.Doc.SourceMutationID != tt.mutation.ID {
				t.Errorf("source mutation id = %d, expected %d", result.Doc.SourceMutationID, tt.mutation.ID)
			}
		})
	}
}

func TestBuildUnknownTypeFails(t *testing.T) {
	b, _ := newTestBuilder(Config{})
	_, err := b.Build(context.Background(), source.Mutation{
		ID: 99, Type: source.MutationType(42), Amount: dec("10"),
		Rows: []source.Row{{LedgerID: 1, Amount: dec("10")}},
	})
	if err == nil {
		t.Error("Build() accepted an unknown type code")
	}
}

// A sales invoice with no relation derives its party
// from the description and resolves its line from the mutation-level ledger.
func TestBuildSalesInvoiceWithDerivedParty(t *testing.T) {
	b, accounts := newTestBuilder(Config{})
	m := source.Mutation{
		ID: 1345, Type: source.TypeSalesInvoice, Date: "2019-03-01",
		Amount: dec("100.00"), LedgerID: 1300, Description: "invoice adj",
		Rows: []source.Row{{Amount: dec("100.00")}},
	}

	result, err := b.Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	doc := result.Doc
	if doc.Type != ledger.DocSalesInvoice {
		t.Errorf("doc type = %s, expected Sales Invoice", doc.Type)
	}
	if doc.Party != "invoice adj" {
		t.Errorf("party = %q, expected derived %q", doc.Party, "invoice adj")
	}
	if !doc.Total.Equal(dec("100.00")) {
		t.Errorf("total = %s, expected 100.00", doc.Total)
	}
	// The row has no own ledger id, so the mutation-level 1300 is used.
	if len(accounts.resolved) != 1 || accounts.resolved[0] != 1300 {
		t.Errorf("resolved ledgers = %v, expected [1300]", accounts.resolved)
	}
}

// Row-level ledger ids win over the mutation-level one.
func TestBuildUsesRowLevelLedgerIDs(t *testing.T) {
	b, accounts := newTestBuilder(Config{})
	m := source.Mutation{
		ID: 20, Type: source.TypeSalesInvoice, Date: "2019-03-02",
		Amount: dec("100.00"), LedgerID: 1300, RelationID: "REL001",
		Rows: []source.Row{
			{LedgerID: 8000, Amount: dec("40.00")},
			{LedgerID: 8010, Amount: dec("60.00")},
		},
	}

	result, err := b.Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if len(result.Doc.Lines) != 2 {
		t.Fatalf("lines = %d, expected 2", len(result.Doc.Lines))
	}
	if result.Doc.Lines[0].Account != "Account 8000" || result.Doc.Lines[1].Account != "Account 8010" {
		t.Errorf("line accounts = %q, %q", result.Doc.Lines[0].Account, result.Doc.Lines[1].Account)
	}
	if len(accounts.resolved) != 2 {
		t.Errorf("resolved ledgers = %v", accounts.resolved)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("warnings = %v, expected none for matching totals", result.Warnings)
	}
}

// Row amounts 40.00 + 59.99 against reported total 100.00: the document is
// still built from the two lines, with an integrity warning for the 0.01
// variance.
func TestBuildWarnsOnLineSumVariance(t *testing.T) {
	b, _ := newTestBuilder(Config{})
	m := source.Mutation{
		ID: 21, Type: source.TypeSalesInvoice, Date: "2019-03-03",
		Amount: dec("100.00"), RelationID: "REL001",
		Rows: []source.Row{
			{LedgerID: 8000, Amount: dec("40.00")},
			{LedgerID: 8010, Amount: dec("59.99")},
		},
	}

	result, err := b.Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if result.Skipped {
		t.Fatal("Build() skipped a mutation with a variance")
	}
	if len(result.Doc.Lines) != 2 {
		t.Errorf("lines = %d, expected the document built from both rows", len(result.Doc.Lines))
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v, expected exactly one variance warning", result.Warnings)
	}
	if !result.Doc.Total.Equal(dec("100.00")) {
		t.Errorf("total = %s, the reported total stays authoritative", result.Doc.Total)
	}
}

// Balanced journal rows sum to zero while the mutation reports the moved
// amount; that shape is consistent, not a variance.
func TestBuildBalancedJournalRowsDoNotWarn(t *testing.T) {
	b, _ := newTestBuilder(Config{})
	m := source.Mutation{
		ID: 24, Type: source.TypeMemorial, Date: "2019-03-05", Amount: dec("10.00"),
		Rows: []source.Row{
			{LedgerID: 8200, Amount: dec("10.00")},
			{LedgerID: 1300, Amount: dec("-10.00")},
		},
	}

	result, err := b.Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("warnings = %v, expected none for balanced rows", result.Warnings)
	}

	// A balanced booking whose positive side misses the total still warns.
	m.ID = 25
	m.Rows[0].Amount = dec("9.50")
	m.Rows[1].Amount = dec("-9.50")
	result, err = b.Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("warnings = %v, expected one variance warning", result.Warnings)
	}
}

func TestBuildClearingAccountForPlatformInvoices(t *testing.T) {
	b, _ := newTestBuilder(Config{})

	m := source.Mutation{
		ID: 22, Type: source.TypeSalesInvoice, Date: "2019-03-04",
		Amount: dec("99.99"), RelationID: "REL001",
		Description: "WooCommerce order bundle week 3",
		Rows:        []source.Row{{LedgerID: 8000, Amount: dec("99.99")}},
	}
	result, err := b.Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if result.Doc.PartyAccount != "Te Ontvangen Bedragen" {
		t.Errorf("party account = %q, expected the clearing account", result.Doc.PartyAccount)
	}

	// A regular invoice keeps the receivable account.
	m.ID = 23
	m.Description = "membership fee"
	result, err = b.Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if result.Doc.PartyAccount != "Debtors" {
		t.Errorf("party account = %q, expected Debtors", result.Doc.PartyAccount)
	}
}

func TestBuildSkipsEmptyAndPolicyZero(t *testing.T) {
	b, _ := newTestBuilder(Config{SkipZeroAmountFor: []string{"autobooker"}})
	ctx := context.Background()

	empty := source.Mutation{ID: 30, Type: source.TypeSalesInvoice, Amount: decimal.Zero}
	result, err := b.Build(ctx, empty)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if !result.Skipped {
		t.Error("empty mutation was not skipped")
	}

	policyZero := source.Mutation{
		ID: 31, Type: source.TypeSalesInvoice, Amount: decimal.Zero,
		Description: "Autobooker sync entry",
		Rows:        []source.Row{{LedgerID: 8000, Amount: decimal.Zero}},
	}
	result, err = b.Build(ctx, policyZero)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if !result.Skipped {
		t.Error("policy-listed zero-amount mutation was not skipped")
	}

	// Zero-amount mutations outside the policy list import normally.
	plainZero := policyZero
	plainZero.ID = 32
	plainZero.Description = "manual correction"
	result, err = b.Build(ctx, plainZero)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if result.Skipped {
		t.Errorf("zero-amount mutation skipped without policy: %s", result.SkipReason)
	}
}

func TestBuildOpeningBalanceDropsZeroRows(t *testing.T) {
	b, _ := newTestBuilder(Config{})
	m := source.Mutation{
		ID: 40, Type: source.TypeOpeningBalance, Date: "2019-01-01", Amount: dec("100"),
		Rows: []source.Row{
			{LedgerID: 1010, Amount: dec("100")},
			{LedgerID: 1020, Amount: decimal.Zero},
		},
	}

	result, err := b.Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if len(result.Doc.Lines) != 1 {
		t.Errorf("lines = %d, expected the zero row dropped", len(result.Doc.Lines))
	}
}

func TestBuildMemorialBalancesAgainstParty(t *testing.T) {
	b, _ := newTestBuilder(Config{})
	m := source.Mutation{
		ID: 41, Type: source.TypeMemorial, Date: "2019-02-28", Amount: dec("12.30"),
		RelationID:  "REL002",
		Description: "Memorial correction member fee",
		Rows:        []source.Row{{LedgerID: 8200, Amount: dec("12.30")}},
	}

	result, err := b.Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	doc := result.Doc
	if len(doc.Lines) != 2 {
		t.Fatalf("lines = %d, expected a counter line against the party", len(doc.Lines))
	}
	if doc.Party == "" {
		t.Error("memorial with relation should carry the party")
	}
	counter := doc.Lines[1]
	if counter.Account != "Debtors" {
		t.Errorf("counter account = %q, expected Debtors for a positive amount", counter.Account)
	}
	if !counter.Amount.Equal(dec("-12.30")) {
		t.Errorf("counter amount = %s, expected -12.30", counter.Amount)
	}
}

func TestBuildPaymentLegs(t *testing.T) {
	b, _ := newTestBuilder(Config{})
	m := source.Mutation{
		ID: 50, Type: source.TypePaymentReceived, Date: "2019-01-28",
		Amount: dec("100.00"), LedgerID: 1010, RelationID: "REL001",
		Rows: []source.Row{{LedgerID: 1300, Amount: dec("100.00")}},
	}

	result, err := b.Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	doc := result.Doc
	if doc.PartyAccount != "Account 1010" {
		t.Errorf("bank leg = %q, expected the mutation-level ledger's account", doc.PartyAccount)
	}
	if doc.CounterAccount != "Debtors" {
		t.Errorf("counter leg = %q, expected Debtors", doc.CounterAccount)
	}
}
