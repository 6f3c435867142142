// Package mapping resolves source ledger ids to target accounts. Resolution
// order: persisted mapping, then a pluggable ruleset profile, then a
// placeholder account scoped by direction. Unmapped data never lands on an
// arbitrary pre-existing operational account.
package mapping

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AccountType is the best-guess classification a ruleset produces.
type AccountType string

const (
	TypeReceivable   AccountType = "receivable"
	TypePayable      AccountType = "payable"
	TypeBank         AccountType = "bank"
	TypeFixedAsset   AccountType = "fixed_asset"
	TypeCurrentAsset AccountType = "current_asset"
	TypeLiability    AccountType = "liability"
	TypeEquity       AccountType = "equity"
	TypeTax          AccountType = "tax"
	TypeIncome       AccountType = "income"
	TypeExpense      AccountType = "expense"
)

// Direction buckets account types for placeholder scoping.
type Direction string

const (
	DirectionIncome  Direction = "income"
	DirectionExpense Direction = "expense"
	DirectionBalance Direction = "balance"
)

// DirectionOf maps an account type onto its placeholder direction.
func DirectionOf(t AccountType) Direction {
	switch t {
	case TypeIncome:
		return DirectionIncome
	case TypeExpense:
		return DirectionExpense
	default:
		return DirectionBalance
	}
}

// CodeRange is an inclusive range of ledger codes.
type CodeRange struct {
	From int64 `yaml:"from"`
	To   int64 `yaml:"to"`
}

// Rule matches ledger codes by numeric range and/or keywords found in the
// row description. Both conditions must hold when both are present; rules
// are evaluated in order and the first match wins.
type Rule struct {
	Name     string      `yaml:"name"`
	Range    *CodeRange  `yaml:"range,omitempty"`
	Keywords []string    `yaml:"keywords,omitempty"`
	Type     AccountType `yaml:"type"`
	Account  string      `yaml:"account"`
}

// Suggestion is the outcome of a ruleset match.
type Suggestion struct {
	Account string
	Type    AccountType
}

// Profile is a swappable chart-of-accounts convention. Alternate conventions
// plug in via a YAML file without code changes.
type Profile struct {
	Name  string `yaml:"name"`
	Rules []Rule `yaml:"rules"`
}

// LoadProfile reads a ruleset profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile YAML: %w", err)
	}
	if err := profile.validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (p *Profile) validate() error {
	for i, rule := range p.Rules {
		if rule.Range == nil && len(rule.Keywords) == 0 {
			return fmt.Errorf("profile %q rule %d (%s): needs a range or keywords", p.Name, i, rule.Name)
		}
		if rule.Account == "" {
			return fmt.Errorf("profile %q rule %d (%s): missing target account", p.Name, i, rule.Name)
		}
		if rule.Type == "" {
			return fmt.Errorf("profile %q rule %d (%s): missing account type", p.Name, i, rule.Name)
		}
	}
	return nil
}

// Suggest runs the rules against a ledger code and a descriptive hint.
func (p *Profile) Suggest(code int64, hint string) (Suggestion, bool) {
	hintLower := strings.ToLower(hint)

	for _, rule := range p.Rules {
		if rule.Range != nil && (code < rule.Range.From || code > rule.Range.To) {
			continue
		}
		if len(rule.Keywords) > 0 && !containsAny(hintLower, rule.Keywords) {
			continue
		}
		return Suggestion{Account: rule.Account, Type: rule.Type}, true
	}
	return Suggestion{}, false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// DefaultProfile is a ruleset for the common Dutch small-ledger numbering
// convention: 0xxx fixed assets, 10xx-11xx bank and cash, 13xx receivables,
// 2xxx liabilities, 3xxx equity, 4xxx income (VAT codes excepted), 5xxx-7xxx
// expenses, 8xxx income, 9xxx expenses.
func DefaultProfile() *Profile {
	return &Profile{
		Name: "nl-standard",
		Rules: []Rule{
			{Name: "vat", Range: &CodeRange{From: 1500, To: 1599}, Type: TypeTax, Account: "VAT"},
			{Name: "vat-keyword", Keywords: []string{"btw", "vat"}, Type: TypeTax, Account: "VAT"},
			{Name: "fixed-assets", Range: &CodeRange{From: 1, To: 999}, Type: TypeFixedAsset, Account: "Fixed Assets"},
			{Name: "bank", Range: &CodeRange{From: 1000, To: 1199}, Type: TypeBank, Account: "Bank"},
			{Name: "receivables", Range: &CodeRange{From: 1300, To: 1399}, Type: TypeReceivable, Account: "Debtors"},
			{Name: "payables", Range: &CodeRange{From: 1600, To: 1699}, Type: TypePayable, Account: "Creditors"},
			{Name: "current-assets", Range: &CodeRange{From: 1200, To: 1999}, Type: TypeCurrentAsset, Account: "Current Assets"},
			{Name: "liabilities", Range: &CodeRange{From: 2000, To: 2999}, Type: TypeLiability, Account: "Current Liabilities"},
			{Name: "equity", Range: &CodeRange{From: 3000, To: 3999}, Type: TypeEquity, Account: "Equity"},
			{Name: "income", Range: &CodeRange{From: 4000, To: 4999}, Type: TypeIncome, Account: "Income"},
			{Name: "expenses", Range: &CodeRange{From: 5000, To: 7999}, Type: TypeExpense, Account: "Expenses"},
			{Name: "other-income", Range: &CodeRange{From: 8000, To: 8999}, Type: TypeIncome, Account: "Other Income"},
			{Name: "other-expenses", Range: &CodeRange{From: 9000, To: 9999}, Type: TypeExpense, Account: "Other Expenses"},
		},
	}
}
