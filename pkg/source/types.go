// Package source provides clients for the bookkeeping service's transaction
// APIs and normalizes their records into one canonical schema.
//
// Two drivers exist: the legacy SOAP interface, which only exposes a bounded
// window of the most recent mutations, and the REST interface, which paginates
// through the full history under a shared rate budget. Driver-specific field
// names never leave this package.
package source

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MutationType identifies the kind of source transaction.
type MutationType int

const (
	TypeOpeningBalance  MutationType = 0
	TypePurchaseInvoice MutationType = 1
	TypeSalesInvoice    MutationType = 2
	TypePaymentReceived MutationType = 3
	TypePaymentSent     MutationType = 4
	TypeMoneyReceived   MutationType = 5
	TypeMoneyPaid       MutationType = 6
	TypeMemorial        MutationType = 7
	TypeManualEntry     MutationType = 8
	TypeCorrection      MutationType = 9
	TypeReversal        MutationType = 10
)

// String returns a human-readable label for the mutation type.
func (t MutationType) String() string {
	switch t {
	case TypeOpeningBalance:
		return "Opening Balance"
	case TypePurchaseInvoice:
		return "Purchase Invoice"
	case TypeSalesInvoice:
		return "Sales Invoice"
	case TypePaymentReceived:
		return "Payment Received"
	case TypePaymentSent:
		return "Payment Sent"
	case TypeMoneyReceived:
		return "Money Received"
	case TypeMoneyPaid:
		return "Money Paid"
	case TypeMemorial:
		return "Memorial Booking"
	case TypeManualEntry:
		return "Manual Entry"
	case TypeCorrection:
		return "Correction"
	case TypeReversal:
		return "Reversal"
	default:
		return fmt.Sprintf("Type %d", int(t))
	}
}

// Valid reports whether the type code is one the source system emits.
func (t MutationType) Valid() bool {
	return t >= TypeOpeningBalance && t <= TypeReversal
}

// Mutation is one financial transaction in the canonical schema.
// It is fetched per page and discarded after processing, never stored verbatim.
type Mutation struct {
	ID            int64
	Type          MutationType
	Date          string // YYYY-MM-DD
	Amount        decimal.Decimal
	LedgerID      int64
	RelationID    string
	InvoiceNumber string
	Description   string
	Rows          []Row
}

// Row is one line of a mutation. Multi-line mutations carry one Row per
// affected account.
type Row struct {
	LedgerID    int64
	Amount      decimal.Decimal
	Description string
	VATCode     string
}

// EffectiveLedgerID returns the ledger id to use for a row. The row-scoped id
// wins over the mutation-scoped one: a single multi-line mutation may span
// several accounts.
func (m Mutation) EffectiveLedgerID(r Row) int64 {
	if r.LedgerID != 0 {
		return r.LedgerID
	}
	return m.LedgerID
}

// RowTotal sums the row amounts. The result should match Amount; callers treat
// a mismatch as a warning, never an error.
func (m Mutation) RowTotal() decimal.Decimal {
	total := decimal.Zero
	for _, r := range m.Rows {
		total = total.Add(r.Amount)
	}
	return total
}

// Relation is a counterparty record from the source relations endpoint.
type Relation struct {
	ID          string
	Name        string
	CompanyName string
	ContactName string
	Email       string
	City        string
}

// DisplayName picks the most specific non-empty name field.
func (r Relation) DisplayName() string {
	if r.CompanyName != "" {
		return r.CompanyName
	}
	if r.Name != "" {
		return r.Name
	}
	return r.ContactName
}

// Page is one page of mutation history. An empty NextCursor means the history
// is exhausted.
type Page struct {
	Mutations  []Mutation
	NextCursor string
}
