package repository

import (
	"context"
	"database/sql"
)

// TaxonomyRepo maps provider category codes to local categories. Static
// reference data; read-only to the sync engine.
type TaxonomyRepo struct{ db *sql.DB }

func NewTaxonomyRepo(db *sql.DB) *TaxonomyRepo { return &TaxonomyRepo{db: db} }

func (r *TaxonomyRepo) Upsert(ctx context.Context, code, categoryID string) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO category_taxonomy(code, category_id) VALUES(?, ?)
	ON CONFLICT(code) DO UPDATE SET category_id=excluded.category_id;
	`, code, categoryID)
	return err
}

// Mapping loads the full code -> category table.
func (r *TaxonomyRepo) Mapping(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, category_id FROM category_taxonomy`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var code, cat string
		if err := rows.Scan(&code, &cat); err != nil {
			return nil, err
		}
		out[code] = cat
	}
	return out, rows.Err()
}
