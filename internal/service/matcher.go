package service

import (
	"strings"

	"github.com/jask/ledgersync/internal/database/repository"
)

// Merchant patterns come in four structural forms, decided by wildcard
// placement:
//
//	%X%  contains
//	X%   prefix
//	%X   suffix
//	X    exact
//
// Matching is deliberately limited to fixed-cost string operations. Regex is
// off the table: patterns are user-supplied and must not be able to trigger
// catastrophic backtracking.

// PatternMatches reports whether merchant text satisfies a rule pattern.
// Comparison is case-insensitive via upper-casing. An empty literal (after
// stripping wildcards) never matches.
func PatternMatches(pattern, text string) bool {
	hasPrefix := strings.HasPrefix(pattern, "%")
	hasSuffix := strings.HasSuffix(pattern, "%")
	literal := strings.TrimSuffix(strings.TrimPrefix(pattern, "%"), "%")
	if literal == "" {
		return false
	}
	literal = strings.ToUpper(literal)
	text = strings.ToUpper(text)

	switch {
	case hasPrefix && hasSuffix:
		return strings.Contains(text, literal)
	case hasSuffix:
		return strings.HasPrefix(text, literal)
	case hasPrefix:
		return strings.HasSuffix(text, literal)
	default:
		return text == literal
	}
}

// MatchRule returns the first rule whose pattern matches the merchant text.
// Rules must already be in evaluation order (descending usage count, ties by
// insertion order); first hit wins, no best-match scoring.
func MatchRule(text string, rules []repository.MerchantRule) *repository.MerchantRule {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	for i := range rules {
		if PatternMatches(rules[i].Pattern, text) {
			return &rules[i]
		}
	}
	return nil
}
