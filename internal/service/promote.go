package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jask/ledgersync/internal/database/repository"
)

// promoteThreshold is how many reviewed transactions of the same merchant
// and category it takes before a rule is worth writing.
const promoteThreshold = 2

// maxMerchantDistance treats near-identical merchant names ("WALMART #123"
// vs "WALMART #124" after normalization) as the same merchant.
const maxMerchantDistance = 2

// RulePromoter turns repeated manual categorizations into merchant rules.
// Rules are only ever added here, never deleted.
type RulePromoter struct {
	Transactions *repository.TransactionRepo
	Rules        *repository.MerchantRuleRepo
	Log          zerolog.Logger
}

// RecordManualCategory stores a human category assignment and, when the same
// merchant has now been assigned that category often enough, promotes an
// exact-match rule at user-confirmed confidence.
func (p *RulePromoter) RecordManualCategory(ctx context.Context, txnID, categoryID string) error {
	t, err := p.Transactions.Get(ctx, txnID)
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}
	if t == nil {
		return fmt.Errorf("transaction %s not found", txnID)
	}
	if err := p.Transactions.SetCategory(ctx, txnID, &categoryID); err != nil {
		return fmt.Errorf("set category: %w", err)
	}
	if t.MerchantName == nil {
		return nil
	}
	merchant := normalizeMerchant(*t.MerchantName)
	if merchant == "" {
		return nil
	}

	others, err := p.Transactions.MerchantsForCategory(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("count merchant assignments: %w", err)
	}
	count := 1 // the assignment just recorded
	for _, m := range others {
		if m == *t.MerchantName {
			continue
		}
		if levenshtein.ComputeDistance(merchant, normalizeMerchant(m)) <= maxMerchantDistance {
			count++
		}
	}
	if count < promoteThreshold {
		return nil
	}

	exists, err := p.Rules.ExistsForPattern(ctx, merchant)
	if err != nil {
		return fmt.Errorf("check existing rule: %w", err)
	}
	if exists {
		return nil
	}

	rule := repository.MerchantRule{
		ID:         uuid.NewString(),
		Pattern:    merchant, // no wildcard: exact form
		CategoryID: categoryID,
		Confidence: repository.RuleConfirmed,
	}
	if err := p.Rules.Add(ctx, rule); err != nil {
		return fmt.Errorf("promote rule: %w", err)
	}
	p.Log.Info().Str("pattern", merchant).Str("category", categoryID).Msg("merchant rule promoted")
	return nil
}

// normalizeMerchant upper-cases and collapses whitespace so pattern text
// lines up with what the matcher compares against.
func normalizeMerchant(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}
