package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/ledger"
	"github.com/jask/ledgersync/internal/logger"
)

// fakeClient serves pages keyed by cursor, records every cursor it was
// asked for, and can fail or block on demand.
type fakeClient struct {
	mu    sync.Mutex
	pages map[string]ledger.Page
	fail  map[string]error
	calls []string

	started chan struct{} // closed on first call, if set
	release chan struct{} // first call blocks until closed, if set
}

func (f *fakeClient) FetchPage(ctx context.Context, token, cursor string) (ledger.Page, error) {
	f.mu.Lock()
	first := len(f.calls) == 0
	f.calls = append(f.calls, cursor)
	f.mu.Unlock()

	if first && f.started != nil {
		close(f.started)
	}
	if first && f.release != nil {
		<-f.release
	}
	if err, ok := f.fail[cursor]; ok {
		return ledger.Page{}, err
	}
	page, ok := f.pages[cursor]
	if !ok {
		return ledger.Page{}, fmt.Errorf("no page for cursor %q", cursor)
	}
	return page, nil
}

func (f *fakeClient) cursorsSeen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func addedTxn(externalID, merchant string, amount float64) ledger.ProviderTxn {
	return ledger.ProviderTxn{
		ExternalID:        externalID,
		AccountExternalID: "provider-acct-1",
		Amount:            decimal.NewFromFloat(amount),
		Description:       merchant + " PURCHASE",
		MerchantName:      merchant,
		Date:              "2026-02-10",
	}
}

// fiveSinglePages builds a 5-page stream with one added transaction per page.
func fiveSinglePages() map[string]ledger.Page {
	pages := map[string]ledger.Page{}
	cursor := ""
	for i := 1; i <= 5; i++ {
		next := fmt.Sprintf("c%d", i)
		pages[cursor] = ledger.Page{
			Added:      []ledger.ProviderTxn{addedTxn(fmt.Sprintf("ext-%d", i), "SHOP", 10)},
			NextCursor: next,
			HasMore:    i < 5,
		}
		cursor = next
	}
	return pages
}

func newTestSyncer(t *testing.T, db *sql.DB, client ledger.Client, policy Policy) *Syncer {
	t.Helper()
	txRepo := repository.NewTransactionRepo(db)
	return &Syncer{
		Client:   client,
		Token:    func(string) (string, error) { return "access-token", nil },
		States:   repository.NewSyncStateRepo(db),
		Rules:    repository.NewMerchantRuleRepo(db),
		Taxonomy: repository.NewTaxonomyRepo(db),
		Accounts: repository.NewAccountRepo(db),
		Writer:   &BatchWriter{Transactions: txRepo, ChunkSize: 100, Log: logger.Nop()},
		Policy:   policy,
		Log:      logger.Nop(),
	}
}

func linkItem(t *testing.T, db *sql.DB, itemID string) {
	t.Helper()
	require.NoError(t, repository.NewSyncStateRepo(db).Create(context.Background(), itemID))
}

func getState(t *testing.T, db *sql.DB, itemID string) *repository.SyncState {
	t.Helper()
	st, err := repository.NewSyncStateRepo(db).Get(context.Background(), itemID)
	require.NoError(t, err)
	require.NotNil(t, st)
	return st
}

func TestSyncCappedRunKeepsCursorAndResumes(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	linkItem(t, db, "item-1")

	client := &fakeClient{pages: fiveSinglePages()}
	s := newTestSyncer(t, db, client, Policy{PageCap: 2, MaxTransactions: 1000})

	res := s.Sync(ctx, "item-1")
	require.Equal(t, RunCapped, res.Status)
	require.True(t, res.Capped)
	require.Equal(t, 2, res.PagesFetched)
	require.Equal(t, 2, res.Added, "only pages 1-2 worth of transactions written")
	require.Equal(t, []string{"", "c1"}, client.cursorsSeen())

	st := getState(t, db, "item-1")
	require.NotNil(t, st.Cursor)
	require.Equal(t, "c2", *st.Cursor, "cursor from the end of page 2, not page 1 or 3")
	require.NotNil(t, st.LastSyncedAt)
	require.Equal(t, repository.StatusActive, st.Status)

	// A follow-up run with room to spare drains the remaining pages from
	// exactly where the capped run stopped.
	s2 := newTestSyncer(t, db, client, Policy{PageCap: 10, MaxTransactions: 1000})
	res = s2.Sync(ctx, "item-1")
	require.Equal(t, RunCompleted, res.Status)
	require.False(t, res.Capped)
	require.Equal(t, 3, res.PagesFetched)
	require.Equal(t, 3, res.Added)

	st = getState(t, db, "item-1")
	require.Equal(t, "c5", *st.Cursor)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count))
	require.Equal(t, 5, count)
}

func TestSyncTransactionVolumeCap(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	linkItem(t, db, "item-1")

	// Two added per page; the volume cap of 3 fires after page 2.
	pages := map[string]ledger.Page{
		"": {
			Added:      []ledger.ProviderTxn{addedTxn("ext-1", "SHOP", 10), addedTxn("ext-2", "SHOP", 10)},
			NextCursor: "c1", HasMore: true,
		},
		"c1": {
			Added:      []ledger.ProviderTxn{addedTxn("ext-3", "SHOP", 10), addedTxn("ext-4", "SHOP", 10)},
			NextCursor: "c2", HasMore: true,
		},
	}
	client := &fakeClient{pages: pages}
	s := newTestSyncer(t, db, client, Policy{PageCap: 50, MaxTransactions: 3})

	res := s.Sync(context.Background(), "item-1")
	require.Equal(t, RunCapped, res.Status)
	require.Equal(t, 2, res.PagesFetched)
	require.Equal(t, 4, res.Added, "accumulated pages are written whole")

	st := getState(t, db, "item-1")
	require.Equal(t, "c2", *st.Cursor)
}

func TestSyncCapOnFinalPageIsCompletion(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	linkItem(t, db, "item-1")

	pages := map[string]ledger.Page{
		"": {
			Added:      []ledger.ProviderTxn{addedTxn("ext-1", "SHOP", 10)},
			NextCursor: "c1", HasMore: false,
		},
	}
	client := &fakeClient{pages: pages}
	s := newTestSyncer(t, db, client, Policy{PageCap: 1, MaxTransactions: 1000})

	res := s.Sync(context.Background(), "item-1")
	require.Equal(t, RunCompleted, res.Status, "cap coinciding with end of stream leaves nothing pending")
	require.False(t, res.Capped)
}

func TestSyncCooldownPerformsNoIO(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	linkItem(t, db, "item-1")

	states := repository.NewSyncStateRepo(db)
	cur := "c9"
	require.NoError(t, states.Record(ctx, "item-1", &cur, repository.StatusActive))
	before := getState(t, db, "item-1")

	client := &fakeClient{pages: fiveSinglePages()}
	s := newTestSyncer(t, db, client, Policy{PageCap: 50, MaxTransactions: 1000, Cooldown: 5 * time.Minute})

	res := s.Sync(ctx, "item-1")
	require.Equal(t, RunCooldown, res.Status)
	require.Empty(t, client.cursorsSeen(), "zero remote calls")

	after := getState(t, db, "item-1")
	require.Equal(t, before.Cursor, after.Cursor)
	require.Equal(t, before.LastSyncedAt, after.LastSyncedAt)
	require.Equal(t, before.Status, after.Status)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count))
	require.Zero(t, count, "zero local writes")
}

func TestSyncFetchFailureKeepsForwardProgress(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	linkItem(t, db, "item-1")

	client := &fakeClient{
		pages: fiveSinglePages(),
		fail:  map[string]error{"c1": errors.New("provider 500")},
	}
	s := newTestSyncer(t, db, client, Policy{PageCap: 50, MaxTransactions: 1000})

	res := s.Sync(context.Background(), "item-1")
	require.Equal(t, RunFailed, res.Status)
	require.Contains(t, res.Err, "provider 500")
	require.Equal(t, 1, res.PagesFetched)
	require.Equal(t, 1, res.Added, "page 1 was written before the failure surfaced")

	st := getState(t, db, "item-1")
	require.NotNil(t, st.Cursor)
	require.Equal(t, "c1", *st.Cursor, "cursor from the last fully processed page survives the failure")
	require.Equal(t, repository.StatusError, st.Status)
}

func TestSyncFirstPageFailureKeepsPriorCursor(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	linkItem(t, db, "item-1")

	states := repository.NewSyncStateRepo(db)
	cur := "c3"
	require.NoError(t, states.Record(ctx, "item-1", &cur, repository.StatusActive))

	client := &fakeClient{fail: map[string]error{"c3": errors.New("timeout")}}
	s := newTestSyncer(t, db, client, Policy{PageCap: 50, MaxTransactions: 1000})

	res := s.Sync(ctx, "item-1")
	require.Equal(t, RunFailed, res.Status)
	require.Zero(t, res.PagesFetched)

	st := getState(t, db, "item-1")
	require.Equal(t, "c3", *st.Cursor, "no acknowledged progress, cursor unchanged")
	require.Equal(t, repository.StatusError, st.Status)
}

func TestSyncClassifiesAndCountsRuleWins(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	linkItem(t, db, "item-1")

	subs := seedCategory(t, db, "cat-subs", "Subscriptions")
	ent := seedCategory(t, db, "cat-ent", "Entertainment")
	rules := repository.NewMerchantRuleRepo(db)
	require.NoError(t, rules.Add(ctx, repository.MerchantRule{
		ID: "r-netflix", Pattern: "%NETFLIX%", CategoryID: subs, Confidence: repository.RuleConfirmed,
	}))
	require.NoError(t, repository.NewTaxonomyRepo(db).Upsert(ctx, "ENTERTAINMENT_VIDEO_GAMES", ent))

	ruleHit := addedTxn("ext-rule", "NETFLIX.COM", 15.49)
	taxHit := addedTxn("ext-tax", "STEAM", 59.99)
	taxHit.CategoryCode = "ENTERTAINMENT_VIDEO_GAMES"
	miss := addedTxn("ext-miss", "CORNER STORE", 3.50)

	pages := map[string]ledger.Page{
		"": {Added: []ledger.ProviderTxn{ruleHit, taxHit, miss}, NextCursor: "c1", HasMore: false},
	}
	s := newTestSyncer(t, db, &fakeClient{pages: pages}, Policy{PageCap: 50, MaxTransactions: 1000})

	res := s.Sync(ctx, "item-1")
	require.Equal(t, RunCompleted, res.Status)
	require.Equal(t, 3, res.Added)

	txRepo := repository.NewTransactionRepo(db)

	got, err := txRepo.GetByExternalID(ctx, "ext-rule")
	require.NoError(t, err)
	require.Equal(t, subs, *got.CategoryID)
	require.True(t, got.Reviewed)
	require.Equal(t, int64(1549), got.AmountCents)
	require.Equal(t, repository.TypeDebit, got.TxnType)

	got, err = txRepo.GetByExternalID(ctx, "ext-tax")
	require.NoError(t, err)
	require.Equal(t, ent, *got.CategoryID)
	require.True(t, got.Reviewed)

	got, err = txRepo.GetByExternalID(ctx, "ext-miss")
	require.NoError(t, err)
	require.Nil(t, got.CategoryID, "unresolved classification is a state, not an error")
	require.False(t, got.Reviewed)

	// The winning rule's usage counter moved, best-effort, after the write.
	r, err := rules.Get(ctx, "r-netflix")
	require.NoError(t, err)
	require.Equal(t, int64(1), r.UsageCount)
}

func TestSyncAddedAndModifiedSamePage(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	linkItem(t, db, "item-1")

	groc := seedCategory(t, db, "cat-groc", "Groceries")
	require.NoError(t, repository.NewMerchantRuleRepo(db).Add(ctx, repository.MerchantRule{
		ID: "r-mart", Pattern: "%MART%", CategoryID: groc, Confidence: repository.RuleConfirmed,
	}))

	add := addedTxn("ext-1", "WALMART", 20)
	mod := addedTxn("ext-1", "WALMART", 25.50)
	mod.Description = "WALMART CORRECTED"

	pages := map[string]ledger.Page{
		"": {Added: []ledger.ProviderTxn{add}, Modified: []ledger.ProviderTxn{mod}, NextCursor: "c1", HasMore: false},
	}
	s := newTestSyncer(t, db, &fakeClient{pages: pages}, Policy{PageCap: 50, MaxTransactions: 1000})

	res := s.Sync(ctx, "item-1")
	require.Equal(t, RunCompleted, res.Status)

	// Added applies first, then modified supersedes the mutable fields; the
	// classification from the added pass stays.
	got, err := repository.NewTransactionRepo(db).GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	require.Equal(t, int64(2550), got.AmountCents)
	require.Equal(t, "WALMART CORRECTED", got.Description)
	require.Equal(t, groc, *got.CategoryID)
	require.True(t, got.Reviewed)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count))
	require.Equal(t, 1, count)
}

func TestSyncRejectsConcurrentRunForSameItem(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	linkItem(t, db, "item-1")

	client := &fakeClient{
		pages:   fiveSinglePages(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := newTestSyncer(t, db, client, Policy{PageCap: 50, MaxTransactions: 1000})

	done := make(chan SyncRunResult, 1)
	go func() { done <- s.Sync(ctx, "item-1") }()

	<-client.started
	second := s.Sync(ctx, "item-1")
	require.Equal(t, RunAlreadyRunning, second.Status)

	close(client.release)
	first := <-done
	require.Equal(t, RunCompleted, first.Status)
}

func TestSyncUnlinkedItemFails(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	client := &fakeClient{}
	s := newTestSyncer(t, db, client, Policy{PageCap: 50, MaxTransactions: 1000})

	res := s.Sync(context.Background(), "nope")
	require.Equal(t, RunFailed, res.Status)
	require.Contains(t, res.Err, "not linked")
	require.Empty(t, client.cursorsSeen())
}

func TestRulePrecedenceByUsageCount(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	groc := seedCategory(t, db, "cat-groc", "Groceries")
	shop := seedCategory(t, db, "cat-shop", "Shopping")

	rules := repository.NewMerchantRuleRepo(db)
	// Inserted first but used less.
	require.NoError(t, rules.Add(ctx, repository.MerchantRule{
		ID: "r-low", Pattern: "%MART%", CategoryID: shop, Confidence: repository.RuleInferred, UsageCount: 1,
	}))
	require.NoError(t, rules.Add(ctx, repository.MerchantRule{
		ID: "r-high", Pattern: "WALMART%", CategoryID: groc, Confidence: repository.RuleConfirmed, UsageCount: 7,
	}))

	ranked, err := rules.ListRanked(ctx)
	require.NoError(t, err)
	require.Equal(t, "r-high", ranked[0].ID, "higher usage count evaluated first regardless of insertion order")

	mr := MatchRule("WALMART #99", ranked)
	require.NotNil(t, mr)
	require.Equal(t, "r-high", mr.ID)
}
