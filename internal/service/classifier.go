package service

import (
	"strings"

	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/ledger"
)

// Classification is the outcome of classifying one incoming transaction.
// Empty CategoryID means unresolved: not an error, just a transaction left
// for human triage.
type Classification struct {
	CategoryID string
	RuleID     string // set only when a merchant rule won
}

// Classify assigns a category to a provider transaction: merchant rules
// first, taxonomy fallback second, none otherwise. Pure function; it does
// not touch usage counts — incrementing those is a best-effort side write
// the orchestrator performs after the batch commits.
func Classify(t ledger.ProviderTxn, rules []repository.MerchantRule, taxonomy map[string]string) Classification {
	text := t.MerchantName
	if strings.TrimSpace(text) == "" {
		text = t.Description
	}
	if mr := MatchRule(text, rules); mr != nil {
		return Classification{CategoryID: mr.CategoryID, RuleID: mr.ID}
	}
	if t.CategoryCode != "" {
		if cat, ok := taxonomy[t.CategoryCode]; ok {
			return Classification{CategoryID: cat}
		}
	}
	return Classification{}
}
