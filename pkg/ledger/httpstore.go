package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPStore talks to the document-persistence collaborator over its generic
// resource API. Schema validation happens on the collaborator's side.
type HTTPStore struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// HTTPStoreConfig configures the persistence client.
type HTTPStoreConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPStore creates a DocumentStore backed by the collaborator's HTTP API.
func NewHTTPStore(cfg HTTPStoreConfig) *HTTPStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPStore{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// Create persists a new document and returns its id.
func (s *HTTPStore) Create(ctx context.Context, docType DocType, fields Fields) (string, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.resourceURL(docType, ""), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := s.do(req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Find returns the id of the first matching document, or "" when none match.
func (s *HTTPStore) Find(ctx context.Context, docType DocType, filter Fields) (string, error) {
	params := url.Values{}
	for k, v := range filter {
		params.Set(k, fmt.Sprint(v))
	}
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.resourceURL(docType, "")+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	var resp struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := s.do(req, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", nil
	}
	return resp.Items[0].ID, nil
}

// Get returns the field set of a document by id.
func (s *HTTPStore) Get(ctx context.Context, docType DocType, id string) (Fields, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.resourceURL(docType, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var fields Fields
	if err := s.do(req, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (s *HTTPStore) resourceURL(docType DocType, id string) string {
	u := s.baseURL + "/api/resource/" + url.PathEscape(string(docType))
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func (s *HTTPStore) do(req *http.Request, v interface{}) error {
	req.Header.Set("Authorization", "token "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("persistence request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrDocumentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("persistence API error (status %d): %s", resp.StatusCode, string(body))
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode persistence response: %w", err)
	}
	return nil
}
