package repository

import (
	"context"
	"database/sql"
)

// MerchantRuleRepo stores categorization rules.
type MerchantRuleRepo struct{ db *sql.DB }

func NewMerchantRuleRepo(db *sql.DB) *MerchantRuleRepo { return &MerchantRuleRepo{db: db} }

func (r *MerchantRuleRepo) Add(ctx context.Context, mr MerchantRule) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO merchant_rules(id, pattern, category_id, confidence, usage_count, created_at)
	VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, mr.ID, mr.Pattern, mr.CategoryID, mr.Confidence, mr.UsageCount)
	return err
}

// ListRanked returns all rules in evaluation order: descending usage count,
// ties broken by insertion order. Read fresh per sync run so ranking never
// goes stale across concurrent items.
func (r *MerchantRuleRepo) ListRanked(ctx context.Context) ([]MerchantRule, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, pattern, category_id, confidence, usage_count, created_at
	FROM merchant_rules
	ORDER BY usage_count DESC, created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MerchantRule
	for rows.Next() {
		var mr MerchantRule
		if err := rows.Scan(&mr.ID, &mr.Pattern, &mr.CategoryID, &mr.Confidence, &mr.UsageCount, &mr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, mr)
	}
	return out, rows.Err()
}

// IncrementUsage bumps a rule's win counter by n. Best-effort: the caller
// ignores failures, since ranking drift is preferable to blocking a sync.
func (r *MerchantRuleRepo) IncrementUsage(ctx context.Context, id string, n int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE merchant_rules SET usage_count = usage_count + ? WHERE id = ?`, n, id)
	return err
}

// ExistsForPattern reports whether an equivalent pattern is already present.
func (r *MerchantRuleRepo) ExistsForPattern(ctx context.Context, pattern string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM merchant_rules WHERE pattern = ?`, pattern).Scan(&n)
	return n > 0, err
}

func (r *MerchantRuleRepo) Get(ctx context.Context, id string) (*MerchantRule, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, pattern, category_id, confidence, usage_count, created_at
	FROM merchant_rules WHERE id = ?`, id)
	var mr MerchantRule
	if err := row.Scan(&mr.ID, &mr.Pattern, &mr.CategoryID, &mr.Confidence, &mr.UsageCount, &mr.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &mr, nil
}
