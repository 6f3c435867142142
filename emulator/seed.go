package emulator

import (
	"encoding/json"
	"fmt"
)

// Seed fills an empty store with a small but representative history: opening
// balances, invoices with multi-line rows, payments, transfers, and memorial
// bookings, plus the relations they reference.
func Seed(store *Store) error {
	relations := []Relation{
		{ID: "REL001", Name: "Acme Webshops", CompanyName: "Acme Webshops B.V.", Email: "finance@acme.example", City: "Amsterdam"},
		{ID: "REL002", Name: "Jansen", ContactName: "P. Jansen", Email: "p.jansen@example.org", City: "Utrecht"},
		{ID: "REL003", Name: "Office Supplies", CompanyName: "Kantoor Totaal", City: "Rotterdam"},
	}
	for _, r := range relations {
		if err := store.PutRelation(r); err != nil {
			return fmt.Errorf("failed to seed relation %s: %w", r.ID, err)
		}
	}

	mutations := []Mutation{
		{
			ID: 1, Type: 0, Date: "2019-01-01", Amount: num("2500.00"), LedgerID: 1010,
			Description: "Opening balance",
			Rows: []Row{
				{LedgerID: 1010, Amount: num("2500.00"), Description: "Bank"},
				{LedgerID: 3000, Amount: num("-2500.00"), Description: "Equity"},
			},
		},
		{
			ID: 2, Type: 2, Date: "2019-01-15", Amount: num("100.00"), LedgerID: 1300,
			RelationID: "REL001", InvoiceNumber: "INV-2019-001",
			Description: "WooCommerce order bundle week 3",
			Rows: []Row{
				{LedgerID: 8000, Amount: num("40.00"), Description: "Merchandise"},
				{LedgerID: 8010, Amount: num("59.99"), Description: "Shipping"},
			},
		},
		{
			ID: 3, Type: 1, Date: "2019-01-20", Amount: num("250.00"), LedgerID: 1600,
			RelationID: "REL003", InvoiceNumber: "KT-88421",
			Description: "Office chairs",
			Rows: []Row{
				{LedgerID: 5020, Amount: num("250.00"), Description: "Furniture", VATCode: "HIGH"},
			},
		},
		{
			ID: 4, Type: 3, Date: "2019-01-28", Amount: num("100.00"), LedgerID: 1010,
			RelationID:  "REL001",
			Description: "Payment invoice INV-2019-001",
			Rows: []Row{
				{LedgerID: 1300, Amount: num("100.00")},
			},
		},
		{
			ID: 5, Type: 4, Date: "2019-02-02", Amount: num("250.00"), LedgerID: 1010,
			RelationID:  "REL003",
			Description: "Betaling KT-88421",
			Rows: []Row{
				{LedgerID: 1600, Amount: num("250.00")},
			},
		},
		{
			ID: 6, Type: 5, Date: "2019-02-10", Amount: num("75.50"), LedgerID: 1010,
			Description: "Donation received - anonymous",
			Rows: []Row{
				{LedgerID: 8100, Amount: num("75.50")},
			},
		},
		{
			ID: 7, Type: 7, Date: "2019-02-28", Amount: num("12.30"), LedgerID: 9000,
			RelationID:  "REL002",
			Description: "Memorial correction member fee Jansen",
			Rows: []Row{
				{LedgerID: 8200, Amount: num("12.30")},
			},
		},
	}
	for _, m := range mutations {
		if err := store.PutMutation(m); err != nil {
			return fmt.Errorf("failed to seed mutation %d: %w", m.ID, err)
		}
	}

	return nil
}

func num(s string) json.Number {
	return json.Number(s)
}
