package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgersync/internal/database"
	"github.com/jask/ledgersync/internal/database/repository"
)

// newTestDB opens a migrated throwaway sqlite database.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db))
	return db
}

// seedCategory inserts a category and returns its id.
func seedCategory(t *testing.T, db *sql.DB, id, name string) string {
	t.Helper()
	repo := repository.NewCategoryRepo(db)
	require.NoError(t, repo.Upsert(context.Background(), repository.Category{ID: id, Name: name}))
	return id
}

// seedAccount inserts an account the tests can attach transactions to.
func seedAccount(t *testing.T, db *sql.DB, id string) string {
	t.Helper()
	repo := repository.NewAccountRepo(db)
	require.NoError(t, repo.Upsert(context.Background(), repository.Account{
		ID: id, Name: id, Institution: "test", AccountType: "checking",
	}))
	return id
}

func strPtr(s string) *string { return &s }
