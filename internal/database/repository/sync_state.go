package repository

import (
	"context"
	"database/sql"
)

// SyncStateRepo persists per-item sync progress. The orchestrator is the
// sole writer for a given item.
type SyncStateRepo struct{ db *sql.DB }

func NewSyncStateRepo(db *sql.DB) *SyncStateRepo { return &SyncStateRepo{db: db} }

// Create registers a newly linked item with an empty cursor. Idempotent.
func (r *SyncStateRepo) Create(ctx context.Context, itemID string) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO sync_states(item_id, cursor, last_synced_at, status, created_at, updated_at)
	VALUES(?, NULL, NULL, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(item_id) DO NOTHING;
	`, itemID, StatusActive)
	return err
}

func (r *SyncStateRepo) Get(ctx context.Context, itemID string) (*SyncState, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT item_id, cursor, last_synced_at, status, created_at, updated_at
	FROM sync_states WHERE item_id = ?`, itemID)
	var st SyncState
	var cursor sql.NullString
	var last sql.NullTime
	if err := row.Scan(&st.ItemID, &cursor, &last, &st.Status, &st.CreatedAt, &st.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if cursor.Valid {
		st.Cursor = &cursor.String
	}
	if last.Valid {
		st.LastSyncedAt = &last.Time
	}
	return &st, nil
}

// Record persists the outcome of a run: resumption cursor, sync timestamp
// and status, in one statement so a crash can't tear them apart.
func (r *SyncStateRepo) Record(ctx context.Context, itemID string, cursor *string, status string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE sync_states
	SET cursor = ?, last_synced_at = CURRENT_TIMESTAMP, status = ?, updated_at = CURRENT_TIMESTAMP
	WHERE item_id = ?`, cursor, status, itemID)
	return err
}

func (r *SyncStateRepo) List(ctx context.Context) ([]SyncState, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT item_id, cursor, last_synced_at, status, created_at, updated_at
	FROM sync_states ORDER BY item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SyncState
	for rows.Next() {
		var st SyncState
		var cursor sql.NullString
		var last sql.NullTime
		if err := rows.Scan(&st.ItemID, &cursor, &last, &st.Status, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		if cursor.Valid {
			st.Cursor = &cursor.String
		}
		if last.Valid {
			st.LastSyncedAt = &last.Time
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
