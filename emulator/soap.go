package emulator

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const soapNamespace = "http://www.e-boekhouden.nl/soap/"

// soapKinds maps the numeric mutation types onto the kind strings the legacy
// interface speaks. Anything without a dedicated kind goes out as Memoriaal.
var soapKinds = map[int]string{
	0: "BeginBalans",
	1: "FactuurOntvangen",
	2: "FactuurVerstuurd",
	3: "FactuurbetalingOntvangen",
	4: "FactuurbetalingVerstuurd",
	5: "GeldOntvangen",
	6: "GeldUitgegeven",
}

func soapKind(t int) string {
	if kind, ok := soapKinds[t]; ok {
		return kind
	}
	return "Memoriaal"
}

type soapError struct {
	Code        string `xml:"LastErrorCode,omitempty"`
	Description string `xml:"LastErrorDescription,omitempty"`
}

type soapSessionResponse struct {
	XMLName xml.Name `xml:"OpenSessionResponse"`
	Result  struct {
		Error     soapError `xml:"ErrorMsg"`
		SessionID string    `xml:"SessionID,omitempty"`
	} `xml:"OpenSessionResult"`
}

type soapMutationsResponse struct {
	XMLName xml.Name `xml:"GetMutatiesResponse"`
	Result  struct {
		Error     soapError     `xml:"ErrorMsg"`
		Mutations []soapMutatie `xml:"Mutaties>cMutatieList"`
	} `xml:"GetMutatiesResult"`
}

type soapRelationsResponse struct {
	XMLName xml.Name `xml:"GetRelatiesResponse"`
	Result  struct {
		Error     soapError     `xml:"ErrorMsg"`
		Relations []soapRelatie `xml:"Relaties>cRelatie"`
	} `xml:"GetRelatiesResult"`
}

type soapMutatie struct {
	MutatieNr     int64              `xml:"MutatieNr"`
	Soort         string             `xml:"Soort"`
	Datum         string             `xml:"Datum"`
	Rekening      string             `xml:"Rekening"`
	RelatieCode   string             `xml:"RelatieCode"`
	Factuurnummer string             `xml:"Factuurnummer"`
	Omschrijving  string             `xml:"Omschrijving"`
	Regels        []soapMutatieRegel `xml:"MutatieRegels>cMutatieListRegel"`
}

type soapMutatieRegel struct {
	BedragInclBTW     string `xml:"BedragInclBTW"`
	TegenrekeningCode string `xml:"TegenrekeningCode"`
	BTWCode           string `xml:"BTWCode"`
	Omschrijving      string `xml:"Omschrijving"`
}

type soapRelatie struct {
	Code           string `xml:"Code"`
	Bedrijf        string `xml:"Bedrijf"`
	Contactpersoon string `xml:"Contactpersoon"`
	Plaats         string `xml:"Plaats"`
	Email          string `xml:"Email"`
}

type soapRequest struct {
	Body struct {
		OpenSession struct {
			Username      string `xml:"Username"`
			SecurityCode1 string `xml:"SecurityCode1"`
		} `xml:"OpenSession"`
		GetMutaties struct {
			SessionID string `xml:"SessionID"`
		} `xml:"GetMutaties"`
		GetRelaties struct {
			SessionID string `xml:"SessionID"`
			Filter    struct {
				Code string `xml:"Code"`
			} `xml:"cFilter"`
		} `xml:"GetRelaties"`
	} `xml:"Body"`
}

// handleLegacySOAP serves the deprecated SOAP interface on a single endpoint,
// dispatching on the SOAPAction header. Sessions travel inside the envelope,
// so the endpoint sits outside the bearer-token middleware.
func (s *Server) handleLegacySOAP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	var req soapRequest
	if err := xml.Unmarshal(raw, &req); err != nil {
		http.Error(w, "malformed envelope", http.StatusBadRequest)
		return
	}

	action := strings.TrimPrefix(strings.Trim(r.Header.Get("SOAPAction"), `"`), soapNamespace)
	switch action {
	case "OpenSession":
		s.soapOpenSession(w, req)
	case "GetMutaties":
		s.soapGetMutaties(w, req)
	case "GetRelaties":
		s.soapGetRelaties(w, req)
	default:
		http.Error(w, "unknown SOAP action", http.StatusBadRequest)
	}
}

func (s *Server) soapOpenSession(w http.ResponseWriter, req soapRequest) {
	var resp soapSessionResponse
	if req.Body.OpenSession.SecurityCode1 != s.apiKey {
		resp.Result.Error = soapError{Code: "AUTH001", Description: "invalid security code"}
		writeSOAP(w, resp)
		return
	}

	token := uuid.NewString()
	if err := s.store.PutSession(token); err != nil {
		resp.Result.Error = soapError{Code: "STORE001", Description: "failed to create session"}
		writeSOAP(w, resp)
		return
	}
	resp.Result.SessionID = token
	writeSOAP(w, resp)
}

func (s *Server) soapGetMutaties(w http.ResponseWriter, req soapRequest) {
	var resp soapMutationsResponse
	if !s.soapSessionValid(req.Body.GetMutaties.SessionID) {
		resp.Result.Error = soapError{Code: "SESSION001", Description: "invalid or expired session"}
		writeSOAP(w, resp)
		return
	}

	items, err := s.store.RecentMutations(legacyWindowSize)
	if err != nil {
		resp.Result.Error = soapError{Code: "STORE001", Description: "failed to list mutations"}
		writeSOAP(w, resp)
		return
	}

	for _, m := range items {
		out := soapMutatie{
			MutatieNr:     m.ID,
			Soort:         soapKind(m.Type),
			Datum:         m.Date + "T00:00:00",
			Rekening:      strconv.FormatInt(m.LedgerID, 10),
			RelatieCode:   m.RelationID,
			Factuurnummer: m.InvoiceNumber,
			Omschrijving:  m.Description,
		}
		for _, row := range m.Rows {
			out.Regels = append(out.Regels, soapMutatieRegel{
				BedragInclBTW:     row.Amount.String(),
				TegenrekeningCode: strconv.FormatInt(row.LedgerID, 10),
				BTWCode:           row.VATCode,
				Omschrijving:      row.Description,
			})
		}
		resp.Result.Mutations = append(resp.Result.Mutations, out)
	}
	writeSOAP(w, resp)
}

func (s *Server) soapGetRelaties(w http.ResponseWriter, req soapRequest) {
	var resp soapRelationsResponse
	if !s.soapSessionValid(req.Body.GetRelaties.SessionID) {
		resp.Result.Error = soapError{Code: "SESSION001", Description: "invalid or expired session"}
		writeSOAP(w, resp)
		return
	}

	rel, err := s.store.GetRelation(req.Body.GetRelaties.Filter.Code)
	if errors.Is(err, ErrNotFound) {
		// An empty result list, not a fault, mirrors the legacy behavior.
		writeSOAP(w, resp)
		return
	}
	if err != nil {
		resp.Result.Error = soapError{Code: "STORE001", Description: "failed to load relation"}
		writeSOAP(w, resp)
		return
	}

	company := rel.CompanyName
	if company == "" {
		// The legacy schema has no separate display name.
		company = rel.Name
	}
	resp.Result.Relations = append(resp.Result.Relations, soapRelatie{
		Code:           rel.ID,
		Bedrijf:        company,
		Contactpersoon: rel.ContactName,
		Plaats:         rel.City,
		Email:          rel.Email,
	})
	writeSOAP(w, resp)
}

func (s *Server) soapSessionValid(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	ok, err := s.store.HasSession(sessionID)
	return err == nil && ok
}

func writeSOAP(w http.ResponseWriter, payload interface{}) {
	data, err := xml.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>%s</soap:Body></soap:Envelope>`, data)
}
