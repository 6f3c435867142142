package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

const legacySessionOK = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <OpenSessionResponse xmlns="http://www.e-boekhouden.nl/soap">
      <OpenSessionResult>
        <ErrorMsg><LastErrorCode></LastErrorCode><LastErrorDescription></LastErrorDescription></ErrorMsg>
        <SessionID>{DEADBEEF-0000}</SessionID>
      </OpenSessionResult>
    </OpenSessionResponse>
  </soap:Body>
</soap:Envelope>`

const legacyMutationsOK = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <GetMutatiesResponse xmlns="http://www.e-boekhouden.nl/soap">
      <GetMutatiesResult>
        <ErrorMsg><LastErrorCode></LastErrorCode></ErrorMsg>
        <Mutaties>
          <cMutatieList>
            <MutatieNr>612</MutatieNr>
            <Soort>FactuurVerstuurd</Soort>
            <Datum>2019-03-01T00:00:00</Datum>
            <Rekening>1300</Rekening>
            <RelatieCode>REL001</RelatieCode>
            <Factuurnummer>F2019-044</Factuurnummer>
            <Omschrijving>Webshop order maart</Omschrijving>
            <MutatieRegels>
              <cMutatieListRegel>
                <BedragInclBTW>40.00</BedragInclBTW>
                <TegenrekeningCode>8000</TegenrekeningCode>
                <BTWCode>HOOG_VERK_21</BTWCode>
                <Omschrijving>order</Omschrijving>
              </cMutatieListRegel>
              <cMutatieListRegel>
                <BedragInclBTW>60.00</BedragInclBTW>
                <TegenrekeningCode>8010</TegenrekeningCode>
                <BTWCode>HOOG_VERK_21</BTWCode>
                <Omschrijving>shipping</Omschrijving>
              </cMutatieListRegel>
            </MutatieRegels>
          </cMutatieList>
          <cMutatieList>
            <MutatieNr>613</MutatieNr>
            <Soort>EenOnbekendeSoort</Soort>
            <Datum>2019-03-02</Datum>
            <Rekening></Rekening>
            <Omschrijving>correctie</Omschrijving>
          </cMutatieList>
        </Mutaties>
      </GetMutatiesResult>
    </GetMutatiesResponse>
  </soap:Body>
</soap:Envelope>`

const legacyRelationsOK = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <GetRelatiesResponse xmlns="http://www.e-boekhouden.nl/soap">
      <GetRelatiesResult>
        <ErrorMsg><LastErrorCode></LastErrorCode></ErrorMsg>
        <Relaties>
          <cRelatie>
            <Code>REL001</Code>
            <Bedrijf>Acme Webshops B.V.</Bedrijf>
            <Contactpersoon>A. de Vries</Contactpersoon>
            <Plaats>Amsterdam</Plaats>
            <Email>finance@acme.example</Email>
          </cRelatie>
        </Relaties>
      </GetRelatiesResult>
    </GetRelatiesResponse>
  </soap:Body>
</soap:Envelope>`

const legacyRelationsEmpty = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <GetRelatiesResponse xmlns="http://www.e-boekhouden.nl/soap">
      <GetRelatiesResult>
        <ErrorMsg><LastErrorCode></LastErrorCode></ErrorMsg>
        <Relaties></Relaties>
      </GetRelatiesResult>
    </GetRelatiesResponse>
  </soap:Body>
</soap:Envelope>`

const legacySessionError = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <OpenSessionResponse xmlns="http://www.e-boekhouden.nl/soap">
      <OpenSessionResult>
        <ErrorMsg>
          <LastErrorCode>AUTH001</LastErrorCode>
          <LastErrorDescription>Onjuiste beveiligingscode</LastErrorDescription>
        </ErrorMsg>
      </OpenSessionResult>
    </OpenSessionResponse>
  </soap:Body>
</soap:Envelope>`

// newLegacyTestDriver serves canned envelopes keyed by SOAPAction.
func newLegacyTestDriver(t *testing.T, responses map[string]string) *LegacyDriver {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action := strings.Trim(r.Header.Get("SOAPAction"), `"`)
		action = strings.TrimPrefix(action, "http://www.e-boekhouden.nl/soap/")
		body, ok := responses[action]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return NewLegacyDriver(LegacyConfig{
		SOAPURL:       srv.URL,
		Username:      "user",
		SecurityCode1: "code1",
		SecurityCode2: "code2",
	})
}

func TestLegacyDriverIsBounded(t *testing.T) {
	d := NewLegacyDriver(LegacyConfig{})
	if !d.Bounded() {
		t.Error("the legacy driver must report a bounded history window")
	}
}

func TestLegacyFetchPage(t *testing.T) {
	driver := newLegacyTestDriver(t, map[string]string{
		"OpenSession": legacySessionOK,
		"GetMutaties": legacyMutationsOK,
	})

	page, err := driver.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}
	if page.NextCursor != "" {
		t.Errorf("next cursor = %q, the window is a single page", page.NextCursor)
	}
	if len(page.Mutations) != 2 {
		t.Fatalf("got %d mutations, expected 2", len(page.Mutations))
	}

	m := page.Mutations[0]
	if m.ID != 612 || m.Type != TypeSalesInvoice {
		t.Errorf("mutation = id %d type %d, expected 612 as a sales invoice", m.ID, m.Type)
	}
	if m.Date != "2019-03-01" {
		t.Errorf("date = %q, expected the timestamp trimmed", m.Date)
	}
	if m.LedgerID != 1300 || m.RelationID != "REL001" || m.InvoiceNumber != "F2019-044" {
		t.Errorf("header fields = %+v", m)
	}
	if !m.Amount.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("amount = %s, expected the row sum 100.00", m.Amount)
	}
	if len(m.Rows) != 2 || m.EffectiveLedgerID(m.Rows[1]) != 8010 {
		t.Errorf("rows = %+v", m.Rows)
	}
	if m.Rows[0].VATCode != "HOOG_VERK_21" {
		t.Errorf("vat code = %q", m.Rows[0].VATCode)
	}

	// Unknown kind strings fall back to memorial rather than failing.
	if page.Mutations[1].Type != TypeMemorial {
		t.Errorf("unknown kind mapped to type %d, expected memorial", page.Mutations[1].Type)
	}
	if page.Mutations[1].LedgerID != 0 {
		t.Errorf("empty ledger code parsed as %d", page.Mutations[1].LedgerID)
	}
}

func TestLegacyFetchRelation(t *testing.T) {
	driver := newLegacyTestDriver(t, map[string]string{
		"OpenSession": legacySessionOK,
		"GetRelaties": legacyRelationsOK,
	})

	rel, err := driver.FetchRelation(context.Background(), "REL001")
	if err != nil {
		t.Fatalf("FetchRelation() failed: %v", err)
	}
	if rel.DisplayName() != "Acme Webshops B.V." || rel.City != "Amsterdam" {
		t.Errorf("relation = %+v", rel)
	}
}

func TestLegacyFetchRelationNotFound(t *testing.T) {
	driver := newLegacyTestDriver(t, map[string]string{
		"OpenSession": legacySessionOK,
		"GetRelaties": legacyRelationsEmpty,
	})

	if _, err := driver.FetchRelation(context.Background(), "REL999"); !errors.Is(err, ErrRelationNotFound) {
		t.Errorf("err = %v, expected ErrRelationNotFound", err)
	}
	if _, err := driver.FetchRelation(context.Background(), ""); !errors.Is(err, ErrRelationNotFound) {
		t.Errorf("err = %v for empty id, expected ErrRelationNotFound", err)
	}
}

func TestLegacySessionErrorSurfaces(t *testing.T) {
	driver := newLegacyTestDriver(t, map[string]string{
		"OpenSession": legacySessionError,
	})

	_, err := driver.FetchPage(context.Background(), "")
	if err == nil || !strings.Contains(err.Error(), "AUTH001") {
		t.Errorf("err = %v, expected the legacy error code to surface", err)
	}
}
