// Package builder classifies source mutations by type code and assembles the
// target documents. It owns the routing table, the clearing-account rule for
// bulk-settlement platforms, and the zero-amount skip policy. It never
// persists anything itself.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/ledgersync/pkg/ledger"
	"github.com/pigeonworks-llc/ledgersync/pkg/mapping"
	"github.com/pigeonworks-llc/ledgersync/pkg/party"
	"github.com/pigeonworks-llc/ledgersync/pkg/source"
)

// Config tunes document assembly. Zero values fall back to defaults via
// ApplyDefaults.
type Config struct {
	// Epsilon is the tolerance when comparing the line sum against the
	// mutation total. Mismatches beyond it are warnings, never errors.
	Epsilon decimal.Decimal

	// ReceivableAccount and PayableAccount are the default invoice party
	// legs when no clearing rule applies.
	ReceivableAccount string
	PayableAccount    string

	// ClearingAccount receives the party leg of invoices whose description
	// matches one of ClearingPatterns. Bulk-settlement platforms pay many
	// invoices in one transfer, so their receivables clear through a
	// dedicated account instead of the regular one.
	ClearingAccount  string
	ClearingPatterns []string

	// SkipZeroAmountFor lists integration names whose zero-amount entries
	// are skipped by policy. All other zero-amount mutations import
	// normally.
	SkipZeroAmountFor []string
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Epsilon.IsZero() {
		c.Epsilon = decimal.New(1, -2) // 0.01
	}
	if c.ReceivableAccount == "" {
		c.ReceivableAccount = "Debtors"
	}
	if c.PayableAccount == "" {
		c.PayableAccount = "Creditors"
	}
	if c.ClearingAccount == "" {
		c.ClearingAccount = "Te Ontvangen Bedragen"
	}
	if c.ClearingPatterns == nil {
		c.ClearingPatterns = []string{"woocommerce", "factuursturen"}
	}
}

// Result is the outcome of building one mutation. Exactly one of Doc or
// Skipped is meaningful.
type Result struct {
	Doc        *ledger.Document
	Skipped    bool
	SkipReason string
	Warnings   []string
}

// AccountResolver resolves a source ledger id to a target account.
type AccountResolver interface {
	Resolve(ctx context.Context, ledgerID int64, hint string, dir mapping.Direction) (mapping.AccountRef, error)
}

// PartyResolver resolves a counterparty.
type PartyResolver interface {
	Resolve(ctx context.Context, relationID, description string, role party.Role) (party.Ref, error)
}

// Builder assembles target documents from canonical mutations.
type Builder struct {
	accounts AccountResolver
	parties  PartyResolver
	cfg      Config
	logger   *slog.Logger
}

// New creates a Builder. cfg defaults are applied.
func New(accounts AccountResolver, parties PartyResolver, cfg Config, logger *slog.Logger) *Builder {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{accounts: accounts, parties: parties, cfg: cfg, logger: logger}
}

// Build classifies the mutation and assembles its target document. A nil-doc
// result with Skipped set means the mutation was intentionally not imported.
func (b *Builder) Build(ctx context.Context, m source.Mutation) (Result, error) {
	if !m.Type.Valid() {
		return Result{}, fmt.Errorf("unknown mutation type %d for mutation %d", int(m.Type), m.ID)
	}

	if len(m.Rows) == 0 && m.Amount.IsZero() {
		return Result{Skipped: true, SkipReason: "empty mutation"}, nil
	}

	if m.Amount.IsZero() && m.RowTotal().IsZero() {
		if name, ok := matchAny(m.Description, b.cfg.SkipZeroAmountFor); ok {
			return Result{
				Skipped:    true,
				SkipReason: fmt.Sprintf("zero-amount entry for %s", name),
			}, nil
		}
	}

	switch m.Type {
	case source.TypeOpeningBalance:
		return b.buildOpeningBalance(ctx, m)
	case source.TypePurchaseInvoice:
		return b.buildInvoice(ctx, m, ledger.DocPurchaseInvoice)
	case source.TypeSalesInvoice:
		return b.buildInvoice(ctx, m, ledger.DocSalesInvoice)
	case source.TypePaymentReceived:
		return b.buildPayment(ctx, m, ledger.PaymentReceive)
	case source.TypePaymentSent:
		return b.buildPayment(ctx, m, ledger.PaymentPay)
	case source.TypeMoneyReceived, source.TypeMoneyPaid:
		return b.buildTransfer(ctx, m)
	default: // 7-10
		return b.buildJournalEntry(ctx, m)
	}
}

// rowDirection picks the placeholder direction for unmapped row accounts.
func rowDirection(t source.MutationType) mapping.Direction {
	switch t {
	case source.TypeSalesInvoice:
		return mapping.DirectionIncome
	case source.TypePurchaseInvoice:
		return mapping.DirectionExpense
	default:
		return mapping.DirectionBalance
	}
}

// buildLines resolves every row to a document line and checks the line sum
// against the mutation total.
func (b *Builder) buildLines(ctx context.Context, m source.Mutation, dir mapping.Direction) ([]ledger.Line, []string, error) {
	lines := make([]ledger.Line, 0, len(m.Rows))
	for _, row := range m.Rows {
		hint := row.Description
		if hint == "" {
			hint = m.Description
		}
		ref, err := b.accounts.Resolve(ctx, m.EffectiveLedgerID(row), hint, dir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve ledger %d: %w", m.EffectiveLedgerID(row), err)
		}
		lines = append(lines, ledger.Line{
			Account:     ref.Account,
			Amount:      row.Amount,
			Description: row.Description,
			VATCode:     row.VATCode,
		})
	}

	var warnings []string
	if len(m.Rows) > 0 && !m.Amount.IsZero() {
		total := m.Amount.Abs()
		diff := m.RowTotal().Abs().Sub(total).Abs()

		// Balanced journal rows sum to zero while the mutation still reports
		// the moved amount; the positive side is the comparable figure there.
		positive := decimal.Zero
		for _, row := range m.Rows {
			if row.Amount.IsPositive() {
				positive = positive.Add(row.Amount)
			}
		}
		if alt := positive.Sub(total).Abs(); alt.LessThan(diff) {
			diff = alt
		}

		if diff.GreaterThanOrEqual(b.cfg.Epsilon) {
			w := fmt.Sprintf("line sum %s differs from mutation total %s by %s",
				m.RowTotal().Abs(), m.Amount.Abs(), diff)
			warnings = append(warnings, w)
			b.logger.Warn("line sum does not match mutation total",
				"mutation_id", m.ID, "line_sum", m.RowTotal().String(),
				"total", m.Amount.String())
		}
	}
	return lines, warnings, nil
}

func (b *Builder) buildOpeningBalance(ctx context.Context, m source.Mutation) (Result, error) {
	lines := make([]ledger.Line, 0, len(m.Rows))
	for _, row := range m.Rows {
		if row.Amount.IsZero() {
			continue
		}
		ref, err := b.accounts.Resolve(ctx, m.EffectiveLedgerID(row), row.Description, mapping.DirectionBalance)
		if err != nil {
			return Result{}, fmt.Errorf("failed to resolve ledger %d: %w", m.EffectiveLedgerID(row), err)
		}
		lines = append(lines, ledger.Line{
			Account:     ref.Account,
			Amount:      row.Amount,
			Description: row.Description,
			VATCode:     row.VATCode,
		})
	}
	if len(lines) == 0 {
		return Result{Skipped: true, SkipReason: "opening balance with no non-zero rows"}, nil
	}

	doc := &ledger.Document{
		Type:             ledger.DocJournalEntry,
		SourceMutationID: m.ID,
		Date:             m.Date,
		Title:            docTitle(m),
		Total:            m.Amount.Abs(),
		Remarks:          m.Description,
		Lines:            lines,
	}
	return Result{Doc: doc}, nil
}

func (b *Builder) buildInvoice(ctx context.Context, m source.Mutation, docType ledger.DocType) (Result, error) {
	role := party.RoleCustomer
	partyAccount := b.cfg.ReceivableAccount
	if docType == ledger.DocPurchaseInvoice {
		role = party.RoleSupplier
		partyAccount = b.cfg.PayableAccount
	}
	if _, ok := matchAny(m.Description, b.cfg.ClearingPatterns); ok {
		partyAccount = b.cfg.ClearingAccount
	}

	partyRef, err := b.parties.Resolve(ctx, m.RelationID, m.Description, role)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve party for mutation %d: %w", m.ID, err)
	}

	lines, warnings, err := b.buildLines(ctx, m, rowDirection(m.Type))
	if err != nil {
		return Result{}, err
	}

	title := m.InvoiceNumber
	if title == "" {
		title = docTitle(m)
	}

	doc := &ledger.Document{
		Type:             docType,
		SourceMutationID: m.ID,
		Date:             m.Date,
		Title:            title,
		Party:            partyRef.Name,
		PartyAccount:     partyAccount,
		Total:            m.Amount.Abs(),
		Remarks:          m.Description,
		Lines:            lines,
	}
	return Result{Doc: doc, Warnings: warnings}, nil
}

func (b *Builder) buildPayment(ctx context.Context, m source.Mutation, kind ledger.PaymentKind) (Result, error) {
	role := party.RoleCustomer
	counter := b.cfg.ReceivableAccount
	if kind == ledger.PaymentPay {
		role = party.RoleSupplier
		counter = b.cfg.PayableAccount
	}

	// The mutation-level ledger id is the bank account the money moved
	// through; rows carry the settled invoice side.
	bank, err := b.accounts.Resolve(ctx, m.LedgerID, m.Description, mapping.DirectionBalance)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve bank ledger %d: %w", m.LedgerID, err)
	}

	partyRef, err := b.parties.Resolve(ctx, m.RelationID, m.Description, role)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve party for mutation %d: %w", m.ID, err)
	}

	lines, warnings, err := b.buildLines(ctx, m, mapping.DirectionBalance)
	if err != nil {
		return Result{}, err
	}

	doc := &ledger.Document{
		Type:             ledger.DocPaymentEntry,
		SourceMutationID: m.ID,
		Date:             m.Date,
		Title:            docTitle(m),
		Party:            partyRef.Name,
		PartyAccount:     bank.Account,
		CounterAccount:   counter,
		PaymentKind:      kind,
		Total:            m.Amount.Abs(),
		Remarks:          m.Description,
		Lines:            lines,
	}
	return Result{Doc: doc, Warnings: warnings}, nil
}

// buildTransfer handles money received/paid without a matching invoice. The
// mutation-level ledger is the bank leg, the first row the destination.
func (b *Builder) buildTransfer(ctx context.Context, m source.Mutation) (Result, error) {
	bank, err := b.accounts.Resolve(ctx, m.LedgerID, m.Description, mapping.DirectionBalance)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve bank ledger %d: %w", m.LedgerID, err)
	}

	lines, warnings, err := b.buildLines(ctx, m, mapping.DirectionBalance)
	if err != nil {
		return Result{}, err
	}

	counter := ""
	if len(lines) > 0 {
		counter = lines[0].Account
	}

	doc := &ledger.Document{
		Type:             ledger.DocPaymentEntry,
		SourceMutationID: m.ID,
		Date:             m.Date,
		Title:            docTitle(m),
		PartyAccount:     bank.Account,
		CounterAccount:   counter,
		PaymentKind:      ledger.PaymentTransfer,
		Total:            m.Amount.Abs(),
		Remarks:          m.Description,
		Lines:            lines,
	}
	return Result{Doc: doc, Warnings: warnings}, nil
}

func (b *Builder) buildJournalEntry(ctx context.Context, m source.Mutation) (Result, error) {
	lines, warnings, err := b.buildLines(ctx, m, mapping.DirectionBalance)
	if err != nil {
		return Result{}, err
	}

	doc := &ledger.Document{
		Type:             ledger.DocJournalEntry,
		SourceMutationID: m.ID,
		Date:             m.Date,
		Title:            docTitle(m),
		Total:            m.Amount.Abs(),
		Remarks:          m.Description,
		Lines:            lines,
	}

	// A single-row memorial booking against a known relation is one half of
	// an entry; balance it against the party's receivable or payable.
	if m.Type == source.TypeMemorial && len(lines) == 1 && m.RelationID != "" {
		role := party.RoleCustomer
		counter := b.cfg.ReceivableAccount
		if lines[0].Amount.IsNegative() {
			role = party.RoleSupplier
			counter = b.cfg.PayableAccount
		}
		partyRef, err := b.parties.Resolve(ctx, m.RelationID, m.Description, role)
		if err != nil {
			return Result{}, fmt.Errorf("failed to resolve party for mutation %d: %w", m.ID, err)
		}
		doc.Party = partyRef.Name
		doc.Lines = append(doc.Lines, ledger.Line{
			Account:     counter,
			Amount:      lines[0].Amount.Neg(),
			Description: m.Description,
		})
	}

	return Result{Doc: doc, Warnings: warnings}, nil
}

// docTitle builds a stable human-readable title from the type name and id.
func docTitle(m source.Mutation) string {
	title := fmt.Sprintf("%s %d", m.Type, m.ID)
	if desc := strings.TrimSpace(m.Description); desc != "" {
		if len(desc) > 50 {
			desc = desc[:50]
		}
		title = title + " - " + desc
	}
	return title
}

// matchAny reports whether s contains any of the patterns, case-insensitive,
// and returns the pattern that matched.
func matchAny(s string, patterns []string) (string, bool) {
	lower := strings.ToLower(s)
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}
