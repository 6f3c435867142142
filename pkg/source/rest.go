package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	// restMaxPageSize is the hard limit the REST API imposes on a single page.
	restMaxPageSize = 500

	sessionTTL = 50 * time.Minute
)

// RESTConfig configures the modern paginated driver.
type RESTConfig struct {
	BaseURL  string
	APIKey   string // pre-shared key exchanged for a session token
	PageSize int    // default 500
	Timeout  time.Duration
	Limiter  *rate.Limiter // shared rate budget for all outbound calls
}

// RESTDriver paginates through the full mutation history of the source
// system. All requests pass through one shared rate limiter.
type RESTDriver struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pageSize   int
	limiter    *rate.Limiter

	mu            sync.Mutex
	sessionToken  string
	sessionExpiry time.Time
}

// NewRESTDriver creates a driver for the paginated REST interface.
func NewRESTDriver(cfg RESTConfig) *RESTDriver {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > restMaxPageSize {
		pageSize = restMaxPageSize
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(5), 10)
	}

	return &RESTDriver{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		pageSize:   pageSize,
		limiter:    limiter,
	}
}

// Bounded reports that the REST driver sees the full history.
func (d *RESTDriver) Bounded() bool { return false }

// Ping verifies that a session can be opened with the configured key.
func (d *RESTDriver) Ping(ctx context.Context) error {
	d.mu.Lock()
	d.sessionToken = ""
	d.mu.Unlock()
	_, err := d.session(ctx)
	return err
}

// FetchPage returns one page of mutations ordered by id. The cursor is an
// opaque string produced by a previous call.
func (d *RESTDriver) FetchPage(ctx context.Context, cursor string) (Page, error) {
	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil || parsed < 0 {
			return Page{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		offset = parsed
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(d.pageSize))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("sort", "id")

	var resp restMutationList
	if err := d.getJSON(ctx, "/v1/mutation", params, &resp); err != nil {
		return Page{}, err
	}

	page := Page{Mutations: make([]Mutation, 0, len(resp.Items))}
	for _, raw := range resp.Items {
		page.Mutations = append(page.Mutations, raw.normalize())
	}

	if len(resp.Items) == d.pageSize {
		page.NextCursor = strconv.Itoa(offset + len(resp.Items))
	}
	return page, nil
}

// FetchRelation looks up a counterparty via the relations endpoint.
func (d *RESTDriver) FetchRelation(ctx context.Context, relationID string) (*Relation, error) {
	if relationID == "" {
		return nil, ErrRelationNotFound
	}

	var raw restRelation
	err := d.getJSON(ctx, "/v1/relation/"+url.PathEscape(relationID), nil, &raw)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrRelationNotFound
		}
		return nil, err
	}

	rel := raw.normalize()
	return &rel, nil
}

// session returns a valid session token, opening a new session when the
// cached one is missing or stale.
func (d *RESTDriver) session(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sessionToken != "" && time.Now().Before(d.sessionExpiry) {
		return d.sessionToken, nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]string{
		"accessToken": d.apiKey,
		"source":      "ledgersync",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/session", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to open session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", parseAPIError(resp)
	}

	var tokenResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode session response: %w", err)
	}
	if tokenResp.Token == "" {
		return "", fmt.Errorf("session endpoint returned an empty token")
	}

	d.sessionToken = tokenResp.Token
	d.sessionExpiry = time.Now().Add(sessionTTL)
	return d.sessionToken, nil
}

// getJSON performs a rate-limited authenticated GET and decodes the response.
// A 401 means the session expired server-side before the client-side TTL
// guess; the session is reopened and the request replayed once.
func (d *RESTDriver) getJSON(ctx context.Context, path string, params url.Values, v interface{}) error {
	endpoint := d.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	for attempt := 0; ; attempt++ {
		token, err := d.session(ctx)
		if err != nil {
			return err
		}

		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", token)
		req.Header.Set("Accept", "application/json")

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to make request: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			d.mu.Lock()
			d.sessionToken = ""
			d.mu.Unlock()
			continue
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := parseAPIError(resp)
			resp.Body.Close()
			return apiErr
		}

		err = json.NewDecoder(resp.Body).Decode(v)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}

// parseAPIError turns a non-200 response into an *APIError.
func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode}
	}

	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		msg := errResp.Message
		if msg == "" {
			msg = errResp.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
}

// Wire types. These carry the REST API's field names and stay inside the
// package.

type restMutationList struct {
	Items []restMutation `json:"items"`
	Count int            `json:"count"`
}

type restMutation struct {
	ID            int64       `json:"id"`
	Type          int         `json:"type"`
	Date          string      `json:"date"`
	Amount        json.Number `json:"amount"`
	LedgerID      int64       `json:"ledgerId"`
	RelationID    string      `json:"relationId"`
	InvoiceNumber string      `json:"invoiceNumber"`
	Description   string      `json:"description"`
	Rows          []restRow   `json:"rows"`
}

type restRow struct {
	LedgerID    int64       `json:"ledgerId"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
	VATCode     string      `json:"vatCode"`
}

type restRelation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CompanyName string `json:"companyName"`
	ContactName string `json:"contactName"`
	Email       string `json:"email"`
	City        string `json:"city"`
}

func (r restMutation) normalize() Mutation {
	m := Mutation{
		ID:            r.ID,
		Type:          MutationType(r.Type),
		Date:          trimDate(r.Date),
		Amount:        decimalFromNumber(r.Amount),
		LedgerID:      r.LedgerID,
		RelationID:    r.RelationID,
		InvoiceNumber: r.InvoiceNumber,
		Description:   r.Description,
	}
	for _, row := range r.Rows {
		m.Rows = append(m.Rows, Row{
			LedgerID:    row.LedgerID,
			Amount:      decimalFromNumber(row.Amount),
			Description: row.Description,
			VATCode:     row.VATCode,
		})
	}
	return m
}

func (r restRelation) normalize() Relation {
	return Relation{
		ID:          r.ID,
		Name:        r.Name,
		CompanyName: r.CompanyName,
		ContactName: r.ContactName,
		Email:       r.Email,
		City:        r.City,
	}
}

// decimalFromNumber parses a JSON number into a decimal, treating anything
// unparseable as zero.
func decimalFromNumber(num json.Number) decimal.Decimal {
	if num.String() == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(num.String()); err == nil {
		return d
	}
	return decimal.Zero
}

// trimDate reduces a timestamp to its YYYY-MM-DD prefix.
func trimDate(date string) string {
	if len(date) > 10 {
		return date[:10]
	}
	return date
}
