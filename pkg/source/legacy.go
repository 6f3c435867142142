package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// legacyWindow is the number of most-recent mutations the legacy interface
// exposes. Older history is simply not reachable through it.
const legacyWindow = 500

// LegacyConfig configures the bounded legacy SOAP driver.
type LegacyConfig struct {
	SOAPURL       string
	Username      string
	SecurityCode1 string
	SecurityCode2 string
	Timeout       time.Duration
}

// LegacyDriver talks to the deprecated SOAP interface. It returns only the
// most recent window of mutations and supports no pagination, which makes it
// useful for connectivity checks but unsuitable for a full migration.
type LegacyDriver struct {
	httpClient    *http.Client
	soapURL       string
	username      string
	securityCode1 string
	securityCode2 string
}

// NewLegacyDriver creates a driver for the bounded legacy interface.
func NewLegacyDriver(cfg LegacyConfig) *LegacyDriver {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &LegacyDriver{
		httpClient:    &http.Client{Timeout: timeout},
		soapURL:       cfg.SOAPURL,
		username:      cfg.Username,
		securityCode1: cfg.SecurityCode1,
		securityCode2: cfg.SecurityCode2,
	}
}

// Bounded reports that the legacy driver only sees a recent window.
func (d *LegacyDriver) Bounded() bool { return true }

// Ping opens and discards a session.
func (d *LegacyDriver) Ping(ctx context.Context) error {
	_, err := d.openSession(ctx)
	return err
}

// FetchPage returns the entire visible window in a single page. The cursor is
// ignored and NextCursor is always empty: there is nothing to paginate.
func (d *LegacyDriver) FetchPage(ctx context.Context, _ string) (Page, error) {
	sessionID, err := d.openSession(ctx)
	if err != nil {
		return Page{}, err
	}

	envelope := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
               xmlns:xsd="http://www.w3.org/2001/XMLSchema"
               xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <GetMutaties xmlns="http://www.e-boekhouden.nl/soap">
      <SessionID>%s</SessionID>
      <SecurityCode2>%s</SecurityCode2>
      <cFilter/>
    </GetMutaties>
  </soap:Body>
</soap:Envelope>`, xmlEscape(sessionID), xmlEscape(d.securityCode2))

	body, err := d.call(ctx, "GetMutaties", envelope)
	if err != nil {
		return Page{}, err
	}

	var resp legacyMutationsEnvelope
	if err := xml.Unmarshal(body, &resp); err != nil {
		return Page{}, fmt.Errorf("failed to parse mutations response: %w", err)
	}
	result := resp.Body.Response.Result
	if result.Error.Code != "" {
		return Page{}, fmt.Errorf("legacy API error %s: %s", result.Error.Code, result.Error.Description)
	}

	muts := result.Mutations
	if len(muts) > legacyWindow {
		muts = muts[len(muts)-legacyWindow:]
	}

	page := Page{Mutations: make([]Mutation, 0, len(muts))}
	for _, raw := range muts {
		page.Mutations = append(page.Mutations, raw.normalize())
	}
	return page, nil
}

// FetchRelation looks up a counterparty by relation code.
func (d *LegacyDriver) FetchRelation(ctx context.Context, relationID string) (*Relation, error) {
	if relationID == "" {
		return nil, ErrRelationNotFound
	}

	sessionID, err := d.openSession(ctx)
	if err != nil {
		return nil, err
	}

	envelope := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
               xmlns:xsd="http://www.w3.org/2001/XMLSchema"
               xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <GetRelaties xmlns="http://www.e-boekhouden.nl/soap">
      <SessionID>%s</SessionID>
      <SecurityCode2>%s</SecurityCode2>
      <cFilter>
        <Code>%s</Code>
      </cFilter>
    </GetRelaties>
  </soap:Body>
</soap:Envelope>`, xmlEscape(sessionID), xmlEscape(d.securityCode2), xmlEscape(relationID))

	body, err := d.call(ctx, "GetRelaties", envelope)
	if err != nil {
		return nil, err
	}

	var resp legacyRelationsEnvelope
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse relations response: %w", err)
	}
	result := resp.Body.Response.Result
	if result.Error.Code != "" {
		return nil, fmt.Errorf("legacy API error %s: %s", result.Error.Code, result.Error.Description)
	}
	if len(result.Relations) == 0 {
		return nil, ErrRelationNotFound
	}

	rel := result.Relations[0].normalize()
	return &rel, nil
}

// openSession opens a fresh SOAP session. The legacy interface invalidates
// sessions aggressively, so one is opened per operation rather than cached.
func (d *LegacyDriver) openSession(ctx context.Context) (string, error) {
	envelope := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
               xmlns:xsd="http://www.w3.org/2001/XMLSchema"
               xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <OpenSession xmlns="http://www.e-boekhouden.nl/soap">
      <Username>%s</Username>
      <SecurityCode1>%s</SecurityCode1>
      <SecurityCode2>%s</SecurityCode2>
    </OpenSession>
  </soap:Body>
</soap:Envelope>`, xmlEscape(d.username), xmlEscape(d.securityCode1), xmlEscape(d.securityCode2))

	body, err := d.call(ctx, "OpenSession", envelope)
	if err != nil {
		return "", err
	}

	var resp legacySessionEnvelope
	if err := xml.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse session response: %w", err)
	}
	result := resp.Body.Response.Result
	if result.Error.Code != "" {
		return "", fmt.Errorf("legacy API error %s: %s", result.Error.Code, result.Error.Description)
	}
	if result.SessionID == "" {
		return "", fmt.Errorf("legacy API returned an empty session id")
	}
	return result.SessionID, nil
}

func (d *LegacyDriver) call(ctx context.Context, action, envelope string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.soapURL, strings.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", fmt.Sprintf("%q", "http://www.e-boekhouden.nl/soap/"+action))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: action + " failed"}
	}
	return body, nil
}

// Wire types for the legacy SOAP interface. Field names follow the legacy
// schema and stay inside the package.

type legacyError struct {
	Code        string `xml:"LastErrorCode"`
	Description string `xml:"LastErrorDescription"`
}

type legacySessionEnvelope struct {
	Body struct {
		Response struct {
			Result struct {
				Error     legacyError `xml:"ErrorMsg"`
				SessionID string      `xml:"SessionID"`
			} `xml:"OpenSessionResult"`
		} `xml:"OpenSessionResponse"`
	} `xml:"Body"`
}

type legacyMutationsEnvelope struct {
	Body struct {
		Response struct {
			Result struct {
				Error     legacyError      `xml:"ErrorMsg"`
				Mutations []legacyMutation `xml:"Mutaties>cMutatieList"`
			} `xml:"GetMutatiesResult"`
		} `xml:"GetMutatiesResponse"`
	} `xml:"Body"`
}

type legacyRelationsEnvelope struct {
	Body struct {
		Response struct {
			Result struct {
				Error     legacyError      `xml:"ErrorMsg"`
				Relations []legacyRelation `xml:"Relaties>cRelatie"`
			} `xml:"GetRelatiesResult"`
		} `xml:"GetRelatiesResponse"`
	} `xml:"Body"`
}

type legacyMutation struct {
	MutatieNr     int64           `xml:"MutatieNr"`
	Soort         string          `xml:"Soort"`
	Datum         string          `xml:"Datum"`
	Rekening      string          `xml:"Rekening"`
	RelatieCode   string          `xml:"RelatieCode"`
	Factuurnummer string          `xml:"Factuurnummer"`
	Omschrijving  string          `xml:"Omschrijving"`
	Regels        []legacyMutRow  `xml:"MutatieRegels>cMutatieListRegel"`
}

type legacyMutRow struct {
	BedragInclBTW     string `xml:"BedragInclBTW"`
	TegenrekeningCode string `xml:"TegenrekeningCode"`
	BTWCode           string `xml:"BTWCode"`
	Omschrijving      string `xml:"Omschrijving"`
}

type legacyRelation struct {
	Code       string `xml:"Code"`
	Bedrijf    string `xml:"Bedrijf"`
	Contactp   string `xml:"Contactpersoon"`
	Plaats     string `xml:"Plaats"`
	Email      string `xml:"Email"`
}

// legacyKinds maps the legacy kind strings onto the numeric type codes the
// canonical schema uses.
var legacyKinds = map[string]MutationType{
	"BeginBalans":               TypeOpeningBalance,
	"FactuurOntvangen":          TypePurchaseInvoice,
	"FactuurVerstuurd":          TypeSalesInvoice,
	"FactuurbetalingOntvangen":  TypePaymentReceived,
	"FactuurbetalingVerstuurd":  TypePaymentSent,
	"GeldOntvangen":             TypeMoneyReceived,
	"GeldUitgegeven":            TypeMoneyPaid,
	"Memoriaal":                 TypeMemorial,
}

func (m legacyMutation) normalize() Mutation {
	out := Mutation{
		ID:            m.MutatieNr,
		Type:          TypeMemorial,
		Date:          trimDate(m.Datum),
		LedgerID:      parseLedgerCode(m.Rekening),
		RelationID:    m.RelatieCode,
		InvoiceNumber: m.Factuurnummer,
		Description:   m.Omschrijving,
	}
	if t, ok := legacyKinds[m.Soort]; ok {
		out.Type = t
	}

	total := decimal.Zero
	for _, row := range m.Regels {
		amount, err := decimal.NewFromString(strings.TrimSpace(row.BedragInclBTW))
		if err != nil {
			amount = decimal.Zero
		}
		total = total.Add(amount)
		out.Rows = append(out.Rows, Row{
			LedgerID:    parseLedgerCode(row.TegenrekeningCode),
			Amount:      amount,
			Description: row.Omschrijving,
			VATCode:     row.BTWCode,
		})
	}
	out.Amount = total
	return out
}

func (r legacyRelation) normalize() Relation {
	return Relation{
		ID:          r.Code,
		Name:        r.Bedrijf,
		CompanyName: r.Bedrijf,
		ContactName: r.Contactp,
		Email:       r.Email,
		City:        r.Plaats,
	}
}

func parseLedgerCode(code string) int64 {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0
	}
	id, err := strconv.ParseInt(code, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func xmlEscape(s string) string {
	var sb strings.Builder
	if err := xml.EscapeText(&sb, []byte(s)); err != nil {
		return s
	}
	return sb.String()
}
