package emulator

import "encoding/json"

// Mutation mirrors the source API's mutation resource.
type Mutation struct {
	ID            int64       `json:"id"`
	Type          int         `json:"type"`
	Date          string      `json:"date"`
	Amount        json.Number `json:"amount"`
	LedgerID      int64       `json:"ledgerId"`
	RelationID    string      `json:"relationId,omitempty"`
	InvoiceNumber string      `json:"invoiceNumber,omitempty"`
	Description   string      `json:"description"`
	Rows          []Row       `json:"rows"`
}

// Row is one line of a mutation.
type Row struct {
	LedgerID    int64       `json:"ledgerId"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description,omitempty"`
	VATCode     string      `json:"vatCode,omitempty"`
}

// Relation mirrors the source API's relation resource.
type Relation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CompanyName string `json:"companyName,omitempty"`
	ContactName string `json:"contactName,omitempty"`
	Email       string `json:"email,omitempty"`
	City        string `json:"city,omitempty"`
}
