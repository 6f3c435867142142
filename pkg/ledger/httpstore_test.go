package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestHTTPStoreCreate(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody Fields

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "SINV-00042"})
	}))
	defer srv.Close()

	store := NewHTTPStore(HTTPStoreConfig{BaseURL: srv.URL, APIKey: "key"})
	id, err := store.Create(context.Background(), DocSalesInvoice, Fields{
		"source_mutation_id": 612,
		"total":              "100.00",
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if id != "SINV-00042" {
		t.Errorf("id = %q", id)
	}
	if gotPath != "/api/resource/Sales%20Invoice" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "token key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody["total"] != "100.00" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestHTTPStoreFind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("source_mutation_id") == "612" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"items": []map[string]string{{"id": "SINV-00042"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": []map[string]string{}})
	}))
	defer srv.Close()

	store := NewHTTPStore(HTTPStoreConfig{BaseURL: srv.URL, APIKey: "key"})

	id, err := store.Find(context.Background(), DocSalesInvoice, Fields{"source_mutation_id": 612})
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	if id != "SINV-00042" {
		t.Errorf("id = %q", id)
	}

	id, err = store.Find(context.Background(), DocSalesInvoice, Fields{"source_mutation_id": 999})
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	if id != "" {
		t.Errorf("id = %q, expected empty when nothing matches", id)
	}
}

func TestHTTPStoreGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := NewHTTPStore(HTTPStoreConfig{BaseURL: srv.URL, APIKey: "key"})
	if _, err := store.Get(context.Background(), DocSalesInvoice, "NOPE"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("err = %v, expected ErrDocumentNotFound", err)
	}
}

func TestDocumentStoreFields(t *testing.T) {
	doc := Document{
		Type:             DocPaymentEntry,
		SourceMutationID: 77,
		Date:             "2019-05-01",
		Title:            "Payment 77",
		Party:            "Acme Webshops B.V.",
		PartyAccount:     "Bank",
		CounterAccount:   "Debtors",
		PaymentKind:      PaymentReceive,
		Total:            decimal.RequireFromString("250.5"),
		Lines: []Line{
			{Account: "Debtors", Amount: decimal.RequireFromString("250.5")},
		},
	}

	fields := doc.StoreFields()
	if fields["source_mutation_id"] != int64(77) {
		t.Errorf("source_mutation_id = %v", fields["source_mutation_id"])
	}
	// Amounts keep their cents on the wire.
	if fields["total"] != "250.50" || fields["payment_kind"] != "Receive" {
		t.Errorf("fields = %+v", fields)
	}
	lines, ok := fields["lines"].([]Fields)
	if !ok || len(lines) != 1 || lines[0]["amount"] != "250.50" {
		t.Errorf("lines = %+v", fields["lines"])
	}

	bare := Document{Type: DocJournalEntry, SourceMutationID: 78, Total: decimal.Zero}
	fields = bare.StoreFields()
	for _, key := range []string{"party", "party_account", "counter_account", "payment_kind"} {
		if _, present := fields[key]; present {
			t.Errorf("empty %s should be omitted", key)
		}
	}
}
