package source

import (
	"context"
	"errors"
	"fmt"
)

// ErrRelationNotFound is returned when the relations endpoint has no record
// for the requested id.
var ErrRelationNotFound = errors.New("relation not found")

// Driver fetches transaction history from the source bookkeeping service.
// Implementations normalize their wire formats into the canonical schema
// before returning anything.
type Driver interface {
	// FetchPage returns one page of mutations ordered by id. An empty cursor
	// requests the first page; an empty Page.NextCursor signals the end.
	FetchPage(ctx context.Context, cursor string) (Page, error)

	// FetchRelation looks up a counterparty by its source relation id.
	// Returns ErrRelationNotFound when the source has no such relation.
	FetchRelation(ctx context.Context, relationID string) (*Relation, error)

	// Ping verifies connectivity and credentials without fetching history.
	Ping(ctx context.Context) error

	// Bounded reports whether the driver only sees a recent window of
	// history. Bounded drivers are suitable for connectivity checks, not for
	// a full migration.
	Bounded() bool
}

// APIError is an error response from the source API. Status codes 429 and
// 5xx are transient: the caller may retry after backing off.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("source API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("source API error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the error is worth retrying with backoff.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
