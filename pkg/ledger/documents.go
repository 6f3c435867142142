// Package ledger defines the target document shapes produced by the migration
// and the contract of the document-persistence collaborator that stores them.
// The collaborator is external: it enforces its own schema validation, this
// package only describes what the migration hands it.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// DocType names an entity type understood by the persistence collaborator.
type DocType string

const (
	DocSalesInvoice    DocType = "Sales Invoice"
	DocPurchaseInvoice DocType = "Purchase Invoice"
	DocPaymentEntry    DocType = "Payment Entry"
	DocJournalEntry    DocType = "Journal Entry"
	DocAccount         DocType = "Account"
	DocCustomer        DocType = "Customer"
	DocSupplier        DocType = "Supplier"
)

// Fields is the schemaless field set exchanged with the persistence
// collaborator.
type Fields map[string]interface{}

// DocumentStore is the persistence collaborator consumed by the migration.
// Find returns an empty id when no document matches the filter.
type DocumentStore interface {
	Create(ctx context.Context, docType DocType, fields Fields) (string, error)
	Find(ctx context.Context, docType DocType, filter Fields) (string, error)
	Get(ctx context.Context, docType DocType, id string) (Fields, error)
}

// PaymentKind distinguishes the three payment-entry flavours.
type PaymentKind string

const (
	PaymentReceive  PaymentKind = "Receive"
	PaymentPay      PaymentKind = "Pay"
	PaymentTransfer PaymentKind = "Internal Transfer"
)

// Line is one document line, already resolved to a target account.
type Line struct {
	Account     string
	Amount      decimal.Decimal
	Description string
	VATCode     string
}

// Document is a target document ready for persistence. Every document carries
// the source mutation id for idempotency and audit.
type Document struct {
	Type             DocType
	SourceMutationID int64
	Date             string // YYYY-MM-DD
	Title            string
	Party            string
	PartyAccount     string // receivable/payable leg for invoices, bank leg for payments
	CounterAccount   string // transfer destination, payment counter leg
	PaymentKind      PaymentKind
	Total            decimal.Decimal
	Remarks          string
	Lines            []Line
}

// StoreFields flattens the document into the generic field set the
// persistence collaborator accepts. Amounts go out at a fixed two-decimal
// scale so wire values keep their cents.
func (d *Document) StoreFields() Fields {
	lines := make([]Fields, 0, len(d.Lines))
	for _, l := range d.Lines {
		lines = append(lines, Fields{
			"account":     l.Account,
			"amount":      l.Amount.StringFixed(2),
			"description": l.Description,
			"vat_code":    l.VATCode,
		})
	}

	fields := Fields{
		"source_mutation_id": d.SourceMutationID,
		"posting_date":       d.Date,
		"title":              d.Title,
		"total":              d.Total.StringFixed(2),
		"remarks":            d.Remarks,
		"lines":              lines,
	}
	if d.Party != "" {
		fields["party"] = d.Party
	}
	if d.PartyAccount != "" {
		fields["party_account"] = d.PartyAccount
	}
	if d.CounterAccount != "" {
		fields["counter_account"] = d.CounterAccount
	}
	if d.PaymentKind != "" {
		fields["payment_kind"] = string(d.PaymentKind)
	}
	return fields
}
