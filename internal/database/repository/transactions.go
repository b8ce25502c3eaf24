package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const txnColumns = `id, account_id, external_id, amount_cents, txn_type, description, merchant_name,
 category_id, txn_date, pending, reviewed, source, created_at, updated_at`

// UpsertBatch applies one chunk of "added" deltas in a single database
// transaction, keyed on external_id. Re-delivery of a known external id
// updates the existing row instead of inserting a second one. An existing
// category assignment (human or prior automatic) is preserved; the incoming
// category only fills a gap.
func (r *TransactionRepo) UpsertBatch(ctx context.Context, txns []Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO transactions(
	 id, account_id, external_id, amount_cents, txn_type, description, merchant_name,
	 category_id, txn_date, pending, reviewed, source, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(external_id) DO UPDATE SET
	 amount_cents=excluded.amount_cents,
	 txn_type=excluded.txn_type,
	 description=excluded.description,
	 merchant_name=excluded.merchant_name,
	 txn_date=excluded.txn_date,
	 pending=excluded.pending,
	 category_id=COALESCE(transactions.category_id, excluded.category_id),
	 reviewed=CASE WHEN transactions.category_id IS NOT NULL THEN transactions.reviewed ELSE excluded.reviewed END,
	 updated_at=CURRENT_TIMESTAMP;
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range txns {
		if t.ExternalID == nil || strings.TrimSpace(*t.ExternalID) == "" {
			return fmt.Errorf("upsert batch: transaction %s has no external id", t.ID)
		}
		if _, err := stmt.ExecContext(ctx,
			t.ID, t.AccountID, t.ExternalID, t.AmountCents, t.TxnType, t.Description,
			t.MerchantName, t.CategoryID, t.TxnDate, t.Pending, t.Reviewed, t.Source); err != nil {
			return fmt.Errorf("upsert %s: %w", *t.ExternalID, err)
		}
	}
	return tx.Commit()
}

// UpdateFieldsBatch applies one chunk of "modified" deltas in a single
// database transaction. Only provider-owned fields change; category_id and
// reviewed are left untouched. Unknown external ids are skipped silently
// (the provider may modify a transaction this store never accepted).
func (r *TransactionRepo) UpdateFieldsBatch(ctx context.Context, updates []TransactionUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	UPDATE transactions SET
	 amount_cents=?, txn_type=?, description=?, merchant_name=?, txn_date=?, pending=?,
	 updated_at=CURRENT_TIMESTAMP
	WHERE external_id=? AND source=?;
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx,
			u.AmountCents, u.TxnType, u.Description, u.MerchantName, u.TxnDate, u.Pending,
			u.ExternalID, SourceExternal); err != nil {
			return fmt.Errorf("update %s: %w", u.ExternalID, err)
		}
	}
	return tx.Commit()
}

// DeleteBatch hard-deletes one chunk of removed external ids. Manual
// transactions are never touched.
func (r *TransactionRepo) DeleteBatch(ctx context.Context, externalIDs []string) error {
	if len(externalIDs) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(externalIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, 0, len(externalIDs)+1)
	for _, id := range externalIDs {
		args = append(args, id)
	}
	args = append(args, SourceExternal)
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE external_id IN (`+placeholders+`) AND source=?`, args...)
	return err
}

// SetCategory records a manual category assignment. reviewed tracks whether
// a category is present.
func (r *TransactionRepo) SetCategory(ctx context.Context, id string, categoryID *string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET category_id=?, reviewed=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		categoryID, categoryID != nil, id)
	return err
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+txnColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) GetByExternalID(ctx context.Context, externalID string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+txnColumns+` FROM transactions WHERE external_id = ?`, externalID)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// TransactionFilters defines list filters.
type TransactionFilters struct {
	AccountID    string
	CategoryID   string
	Unreviewed   bool
	Since, Until time.Time
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []interface{}

	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.Unreviewed {
		where = append(where, "reviewed = 0")
	}
	if !f.Since.IsZero() {
		where = append(where, "txn_date >= ?")
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		where = append(where, "txn_date < ?")
		args = append(args, f.Until)
	}

	query := `SELECT ` + txnColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY txn_date DESC, created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MerchantsForCategory returns distinct merchant names of reviewed external
// transactions carrying the given category. Used by rule promotion.
func (r *TransactionRepo) MerchantsForCategory(ctx context.Context, categoryID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT DISTINCT merchant_name FROM transactions
	WHERE category_id = ? AND reviewed = 1 AND merchant_name IS NOT NULL AND source = ?
	ORDER BY merchant_name`, categoryID, SourceExternal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// scanTransaction handles nullable fields for both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var external, merchant, category sql.NullString
	if err := row.Scan(&t.ID, &t.AccountID, &external, &t.AmountCents, &t.TxnType,
		&t.Description, &merchant, &category, &t.TxnDate, &t.Pending, &t.Reviewed,
		&t.Source, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	if external.Valid {
		t.ExternalID = &external.String
	}
	if merchant.Valid {
		t.MerchantName = &merchant.String
	}
	if category.Valid {
		t.CategoryID = &category.String
	}
	return t, nil
}
