// Package party resolves source counterparty records to target parties.
// When the source has no relation data, a name is derived from the mutation
// description and the party is flagged for manual review. Missing party data
// never fails a mutation.
package party

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pigeonworks-llc/ledgersync/pkg/db"
	"github.com/pigeonworks-llc/ledgersync/pkg/ledger"
	"github.com/pigeonworks-llc/ledgersync/pkg/source"
)

// Role distinguishes the two party kinds in the target system.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSupplier Role = "supplier"
)

// UnknownCounterparty is the fallback party name when neither relation data
// nor the description yields anything usable.
const UnknownCounterparty = "Unknown Counterparty"

// Ref is a resolved target party.
type Ref struct {
	Name    string
	Role    Role
	Derived bool // name came from description text, awaiting review
}

// RelationFetcher is the subset of the source driver the resolver needs.
type RelationFetcher interface {
	FetchRelation(ctx context.Context, relationID string) (*source.Relation, error)
}

// Resolver resolves counterparties, creating target parties on first
// encounter and reusing them afterwards. Safe for concurrent workers.
type Resolver struct {
	fetcher RelationFetcher
	store   *db.Store
	docs    ledger.DocumentStore
	company string
	logger  *slog.Logger

	mu   sync.Mutex
	memo map[string]Ref
}

// NewResolver creates a party resolver.
func NewResolver(fetcher RelationFetcher, store *db.Store, docs ledger.DocumentStore, company string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		fetcher: fetcher,
		store:   store,
		docs:    docs,
		company: company,
		logger:  logger,
		memo:    make(map[string]Ref),
	}
}

// Resolve turns a relation id (possibly empty) and a description into a
// target party. Relation data wins; otherwise the name is derived from the
// description and the party marked derived.
func (r *Resolver) Resolve(ctx context.Context, relationID, description string, role Role) (Ref, error) {
	key := string(role) + "|" + relationID + "|" + description
	r.mu.Lock()
	if ref, ok := r.memo[key]; ok {
		r.mu.Unlock()
		return ref, nil
	}
	r.mu.Unlock()

	ref, err := r.resolveSlow(ctx, relationID, description, role)
	if err != nil {
		return Ref{}, err
	}

	r.mu.Lock()
	r.memo[key] = ref
	r.mu.Unlock()
	return ref, nil
}

func (r *Resolver) resolveSlow(ctx context.Context, relationID, description string, role Role) (Ref, error) {
	if relationID != "" {
		existing, err := r.store.FindParty(r.company, string(role), relationID, "")
		if err != nil {
			return Ref{}, err
		}
		if existing != nil {
			return Ref{Name: existing.PartyRef, Role: role, Derived: existing.Derived}, nil
		}

		relation, err := r.fetcher.FetchRelation(ctx, relationID)
		switch {
		case err == nil:
			name := strings.TrimSpace(relation.DisplayName())
			if name == "" {
				name = fmt.Sprintf("Relation %s", relationID)
			}
			return r.createParty(ctx, relationID, name, role, false)
		case errors.Is(err, source.ErrRelationNotFound):
			r.logger.Warn("relation not found in source, deriving party from description",
				"relation_id", relationID, "role", string(role))
		default:
			// Transient lookup trouble must not sink the mutation; the
			// derived path below still produces a usable party.
			r.logger.Warn("relation lookup failed, deriving party from description",
				"relation_id", relationID, "error", err)
		}
	}

	name := DeriveName(description)
	derived := true
	if name == "" {
		name = UnknownCounterparty
		r.logger.Warn("no party data available, using generic counterparty",
			"relation_id", relationID, "role", string(role))
	}

	existing, err := r.store.FindParty(r.company, string(role), "", name)
	if err != nil {
		return Ref{}, err
	}
	if existing != nil {
		return Ref{Name: existing.PartyRef, Role: role, Derived: existing.Derived}, nil
	}
	return r.createParty(ctx, "", name, role, derived)
}

func (r *Resolver) createParty(ctx context.Context, relationID, name string, role Role, derived bool) (Ref, error) {
	docType := ledger.DocCustomer
	if role == RoleSupplier {
		docType = ledger.DocSupplier
	}

	id, err := r.docs.Find(ctx, docType, ledger.Fields{"party_name": name})
	if err != nil {
		return Ref{}, fmt.Errorf("failed to look up party %q: %w", name, err)
	}
	if id == "" {
		fields := ledger.Fields{
			"party_name": name,
			"company":    r.company,
		}
		if relationID != "" {
			fields["source_relation_id"] = relationID
		}
		if derived {
			fields["derived_from_description"] = true
		}
		if _, err := r.docs.Create(ctx, docType, fields); err != nil {
			return Ref{}, fmt.Errorf("failed to create party %q: %w", name, err)
		}
	}

	if err := r.store.PutParty(db.PartyRecord{
		Company:          r.company,
		SourceRelationID: relationID,
		Role:             string(role),
		PartyRef:         name,
		Derived:          derived,
	}); err != nil {
		return Ref{}, err
	}

	return Ref{Name: name, Role: role, Derived: derived}, nil
}

// knownPrefixes are stripped from descriptions before deriving a party name.
var knownPrefixes = []string{
	"payment",
	"betaling",
	"invoice",
	"factuur",
	"incasso",
	"transfer",
	"overboeking",
}

// nameDelimiters cut a description down to its leading clause.
var nameDelimiters = []string{" - ", " | ", ", ", "; "}

const maxDerivedNameLen = 60

// DeriveName heuristically extracts a counterparty name from free-text
// description. Returns "" when nothing usable remains.
func DeriveName(description string) string {
	name := strings.TrimSpace(description)
	if name == "" {
		return ""
	}

	// Strip a leading label like "Betaling:" or "invoice -". A bare word is
	// kept: "invoice adj" stays "invoice adj".
	lower := strings.ToLower(name)
	for _, prefix := range knownPrefixes {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		rest := strings.TrimLeft(name[len(prefix):], " ")
		if rest == "" || (rest[0] != ':' && rest[0] != '-') {
			continue
		}
		name = strings.TrimSpace(strings.TrimLeft(rest, ":- "))
		lower = strings.ToLower(name)
	}

	for _, delim := range nameDelimiters {
		if idx := strings.Index(name, delim); idx > 0 {
			name = name[:idx]
		}
	}

	name = strings.TrimSpace(name)
	if len(name) > maxDerivedNameLen {
		name = strings.TrimSpace(name[:maxDerivedNameLen])
	}
	return name
}
