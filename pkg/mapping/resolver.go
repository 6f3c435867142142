package mapping

import (
	"context"
	"fmt"
	"sync"

	"github.com/pigeonworks-llc/ledgersync/pkg/db"
	"github.com/pigeonworks-llc/ledgersync/pkg/ledger"
)

// Placeholder account names, deterministic per direction. Keeping unmapped
// data on clearly flagged accounts isolates it from real balances.
const (
	PlaceholderIncome  = "Unmapped Income (Migration)"
	PlaceholderExpense = "Unmapped Expense (Migration)"
	PlaceholderBalance = "Unmapped Balance (Migration)"
)

// PlaceholderFor returns the placeholder account for a direction.
func PlaceholderFor(dir Direction) string {
	switch dir {
	case DirectionIncome:
		return PlaceholderIncome
	case DirectionExpense:
		return PlaceholderExpense
	default:
		return PlaceholderBalance
	}
}

// AccountRef is a resolved target account.
type AccountRef struct {
	Account string
	Type    AccountType
	Origin  db.MappingOrigin
}

// Resolver resolves source ledger ids to target accounts. One Resolver is
// created per migration run; results are memoized for the run's lifetime and
// safe for concurrent workers.
type Resolver struct {
	store   *db.Store
	docs    ledger.DocumentStore
	profile *Profile
	company string
	runID   string

	mu   sync.Mutex
	memo map[int64]AccountRef
}

// NewResolver creates a per-run resolver.
func NewResolver(store *db.Store, docs ledger.DocumentStore, profile *Profile, company, runID string) *Resolver {
	if profile == nil {
		profile = DefaultProfile()
	}
	return &Resolver{
		store:   store,
		docs:    docs,
		profile: profile,
		company: company,
		runID:   runID,
		memo:    make(map[int64]AccountRef),
	}
}

// Resolve maps a ledger id to a target account. The hint is free text (row
// description) used by keyword rules; dir scopes the placeholder when
// nothing matches. Resolve never returns a pre-existing non-placeholder
// account for an unmapped id: a miss creates a placeholder and emits exactly
// one MappingGapEvent.
func (r *Resolver) Resolve(ctx context.Context, ledgerID int64, hint string, dir Direction) (AccountRef, error) {
	r.mu.Lock()
	if ref, ok := r.memo[ledgerID]; ok {
		r.mu.Unlock()
		return ref, nil
	}
	r.mu.Unlock()

	ref, err := r.resolveSlow(ctx, ledgerID, hint, dir)
	if err != nil {
		return AccountRef{}, err
	}

	r.mu.Lock()
	// A concurrent worker may have resolved the same id; keep the first.
	if existing, ok := r.memo[ledgerID]; ok {
		ref = existing
	} else {
		r.memo[ledgerID] = ref
	}
	r.mu.Unlock()
	return ref, nil
}

func (r *Resolver) resolveSlow(ctx context.Context, ledgerID int64, hint string, dir Direction) (AccountRef, error) {
	// 1. Existing persisted mapping.
	existing, err := r.store.GetMapping(r.company, ledgerID)
	if err != nil {
		return AccountRef{}, err
	}
	if existing != nil {
		return AccountRef{
			Account: existing.TargetAccount,
			Type:    AccountType(existing.AccountType),
			Origin:  existing.Origin,
		}, nil
	}

	// 2. Ruleset suggestion.
	if suggestion, ok := r.profile.Suggest(ledgerID, hint); ok {
		if err := r.ensureAccount(ctx, suggestion.Account, suggestion.Type, false); err != nil {
			return AccountRef{}, err
		}
		if err := r.store.PutMapping(db.AccountMapping{
			Company:        r.company,
			SourceLedgerID: ledgerID,
			TargetAccount:  suggestion.Account,
			AccountType:    string(suggestion.Type),
			Origin:         db.OriginAuto,
		}); err != nil {
			return AccountRef{}, err
		}
		return AccountRef{Account: suggestion.Account, Type: suggestion.Type, Origin: db.OriginAuto}, nil
	}

	// 3. Placeholder, scoped by the caller's direction.
	return r.createPlaceholder(ctx, ledgerID, hint, dir)
}

func (r *Resolver) createPlaceholder(ctx context.Context, ledgerID int64, hint string, dir Direction) (AccountRef, error) {
	var accountType AccountType
	switch dir {
	case DirectionIncome:
		accountType = TypeIncome
	case DirectionExpense:
		accountType = TypeExpense
	default:
		dir = DirectionBalance
		accountType = TypeCurrentAsset
	}

	account := PlaceholderFor(dir)
	if err := r.ensureAccount(ctx, account, accountType, true); err != nil {
		return AccountRef{}, err
	}

	if err := r.store.PutMapping(db.AccountMapping{
		Company:        r.company,
		SourceLedgerID: ledgerID,
		TargetAccount:  account,
		AccountType:    string(accountType),
		Origin:         db.OriginPlaceholder,
	}); err != nil {
		return AccountRef{}, err
	}

	note := fmt.Sprintf("no mapping or rule matched ledger id %d", ledgerID)
	if hint != "" {
		note += fmt.Sprintf(" (hint: %q)", hint)
	}
	if err := r.store.RecordMappingGap(db.MappingGapEvent{
		RunID:              r.runID,
		Company:            r.company,
		SourceLedgerID:     ledgerID,
		PlaceholderAccount: account,
		Note:               note,
	}); err != nil {
		return AccountRef{}, err
	}

	return AccountRef{Account: account, Type: accountType, Origin: db.OriginPlaceholder}, nil
}

// ensureAccount find-or-creates the account document in the target system.
func (r *Resolver) ensureAccount(ctx context.Context, name string, accountType AccountType, placeholder bool) error {
	id, err := r.docs.Find(ctx, ledger.DocAccount, ledger.Fields{"account_name": name})
	if err != nil {
		return fmt.Errorf("failed to look up account %q: %w", name, err)
	}
	if id != "" {
		return nil
	}

	fields := ledger.Fields{
		"account_name": name,
		"account_type": string(accountType),
		"company":      r.company,
	}
	if placeholder {
		fields["is_migration_placeholder"] = true
	}
	if _, err := r.docs.Create(ctx, ledger.DocAccount, fields); err != nil {
		return fmt.Errorf("failed to create account %q: %w", name, err)
	}
	return nil
}
