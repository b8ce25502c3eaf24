package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// AccountRepo handles accounts.
type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Upsert(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, external_id, name, institution, account_type, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 external_id=excluded.external_id,
	 name=excluded.name,
	 institution=excluded.institution,
	 account_type=excluded.account_type,
	 updated_at=CURRENT_TIMESTAMP;
	`, a.ID, a.ExternalID, a.Name, a.Institution, a.AccountType)
	return err
}

// EnsureByExternalID resolves the provider's account id to a local account,
// creating a placeholder row the first time it is seen. The local id is
// derived deterministically so repeated syncs agree without a lookup table.
func (r *AccountRepo) EnsureByExternalID(ctx context.Context, externalID string) (Account, error) {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("acct:"+externalID)).String()
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, external_id, name, created_at, updated_at)
	VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO NOTHING;
	`, id, externalID, externalID)
	if err != nil {
		return Account{}, err
	}
	ext := externalID
	return Account{ID: id, ExternalID: &ext, Name: externalID}, nil
}

func (r *AccountRepo) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, external_id, name, institution, account_type, created_at, updated_at FROM accounts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		var ext sql.NullString
		if err := rows.Scan(&a.ID, &ext, &a.Name, &a.Institution, &a.AccountType, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if ext.Valid {
			a.ExternalID = &ext.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
