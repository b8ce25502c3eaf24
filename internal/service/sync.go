package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/ledger"
)

// Run statuses reported in SyncRunResult.
const (
	RunCompleted      = "completed"
	RunCapped         = "capped"
	RunCooldown       = "cooldown"
	RunAlreadyRunning = "already_running"
	RunFailed         = "failed"
)

// SyncRunResult describes one sync invocation. Ephemeral: it is returned to
// the caller and never drives later runs except through the persisted
// SyncState.
type SyncRunResult struct {
	ItemID       string
	Status       string
	Added        int
	Modified     int
	Removed      int
	Skipped      int
	PagesFetched int
	Capped       bool
	ChunkErrors  int
	Err          string
}

// TokenFunc retrieves the provider access token for a linked item from the
// secret vault. The token is opaque and never persisted by the engine.
type TokenFunc func(itemID string) (string, error)

// Syncer drives the incremental sync of one linked item: cooldown check,
// cursor-ordered page fetch loop bounded by the safety policy,
// classification of incoming transactions, chunked batch writes, and cursor
// persistence. It is the sole writer of SyncState.
type Syncer struct {
	Client   ledger.Client
	Token    TokenFunc
	States   *repository.SyncStateRepo
	Rules    *repository.MerchantRuleRepo
	Taxonomy *repository.TaxonomyRepo
	Accounts *repository.AccountRepo
	Writer   *BatchWriter
	Policy   Policy
	Log      zerolog.Logger

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Sync runs one sync invocation for the given item. Runs for the same item
// are serialized: a second concurrent call returns immediately with
// already_running and performs no I/O. Different items sync independently.
func (s *Syncer) Sync(ctx context.Context, itemID string) SyncRunResult {
	if !s.begin(itemID) {
		return SyncRunResult{ItemID: itemID, Status: RunAlreadyRunning}
	}
	defer s.end(itemID)

	log := s.Log.With().Str("item", itemID).Logger()

	st, err := s.States.Get(ctx, itemID)
	if err != nil {
		return SyncRunResult{ItemID: itemID, Status: RunFailed, Err: fmt.Sprintf("read sync state: %v", err)}
	}
	if st == nil {
		return SyncRunResult{ItemID: itemID, Status: RunFailed, Err: "item not linked"}
	}

	// Cooldown rejection is a normal short-circuit: no remote calls, no
	// writes, SyncState untouched (in particular last_synced_at).
	if s.Policy.InCooldown(st.LastSyncedAt, s.now()) {
		log.Debug().Time("last_synced_at", *st.LastSyncedAt).Msg("sync within cooldown, skipping")
		return SyncRunResult{ItemID: itemID, Status: RunCooldown}
	}

	token, err := s.Token(itemID)
	if err != nil {
		// No remote I/O happened yet; leave SyncState alone so the next
		// attempt is not pushed behind the cooldown window.
		return SyncRunResult{ItemID: itemID, Status: RunFailed, Err: fmt.Sprintf("fetch access token: %v", err)}
	}

	cursor := ""
	if st.Cursor != nil {
		cursor = *st.Cursor
	}

	// Fetch loop. Pages arrive in provider-dictated order; each page's
	// cursor depends on the previous one, so there is nothing to
	// parallelize here. cursor always holds the token after the last page
	// the provider acknowledged to us.
	var (
		added      []ledger.ProviderTxn
		modified   []ledger.ProviderTxn
		removedIDs []string
		pages      int
		capped     bool
		fetchErr   error
	)
	for {
		page, err := s.Client.FetchPage(ctx, token, cursor)
		if err != nil {
			fetchErr = fmt.Errorf("fetch page %d: %w", pages+1, err)
			break
		}
		pages++
		added = append(added, page.Added...)
		modified = append(modified, page.Modified...)
		removedIDs = append(removedIDs, page.RemovedIDs...)
		cursor = page.NextCursor
		log.Debug().Int("page", pages).Int("added", len(page.Added)).Int("modified", len(page.Modified)).Int("removed", len(page.RemovedIDs)).Bool("has_more", page.HasMore).Msg("page fetched")

		if s.Policy.Exceeded(pages, len(added)+len(modified)) {
			// A cap that fires with nothing left upstream is an ordinary
			// completion; capped signals "more data pending".
			capped = page.HasMore
			if capped {
				log.Info().Int("pages", pages).Int("accumulated", len(added)+len(modified)).Msg("run capped")
			}
			break
		}
		if !page.HasMore {
			break
		}
	}

	if pages == 0 && fetchErr != nil {
		// Nothing was acknowledged; keep the prior cursor and flag the item.
		log.Error().Err(fetchErr).Msg("sync failed before first page")
		return s.fail(ctx, itemID, st.Cursor, 0, fetchErr)
	}

	// Rules and taxonomy are re-read every run, never cached, so ranking
	// reflects usage counts written by other items in the meantime. A load
	// failure here aborts before any write, so the cursor must not advance:
	// the same pages will be re-fetched (and re-applied idempotently) next
	// run.
	rules, err := s.Rules.ListRanked(ctx)
	if err != nil {
		return s.fail(ctx, itemID, st.Cursor, pages, fmt.Errorf("load rules: %w", err))
	}
	taxonomy, err := s.Taxonomy.Mapping(ctx)
	if err != nil {
		return s.fail(ctx, itemID, st.Cursor, pages, fmt.Errorf("load taxonomy: %w", err))
	}

	result := SyncRunResult{ItemID: itemID, PagesFetched: pages, Capped: capped}

	ruleWins := map[string]int64{}
	accountIDs := map[string]string{}

	records := make([]repository.Transaction, 0, len(added))
	for _, pt := range added {
		accountID, ok := accountIDs[pt.AccountExternalID]
		if !ok {
			acct, err := s.Accounts.EnsureByExternalID(ctx, pt.AccountExternalID)
			if err != nil {
				return s.fail(ctx, itemID, st.Cursor, pages, fmt.Errorf("resolve account %s: %w", pt.AccountExternalID, err))
			}
			accountID = acct.ID
			accountIDs[pt.AccountExternalID] = accountID
		}

		date, err := time.Parse(time.DateOnly, pt.Date)
		if err != nil {
			log.Warn().Str("external_id", pt.ExternalID).Str("date", pt.Date).Msg("skipping added transaction with malformed date")
			result.Skipped++
			continue
		}

		cls := Classify(pt, rules, taxonomy)
		if cls.RuleID != "" {
			ruleWins[cls.RuleID]++
		}

		cents, debit := ledger.SplitAmount(pt.Amount)
		extID := pt.ExternalID
		t := repository.Transaction{
			ID:          uuid.NewString(),
			AccountID:   accountID,
			ExternalID:  &extID,
			AmountCents: cents,
			TxnType:     repository.TypeCredit,
			Description: pt.Description,
			TxnDate:     date,
			Pending:     pt.Pending,
			Source:      repository.SourceExternal,
		}
		if debit {
			t.TxnType = repository.TypeDebit
		}
		if pt.MerchantName != "" {
			m := pt.MerchantName
			t.MerchantName = &m
		}
		if cls.CategoryID != "" {
			cat := cls.CategoryID
			t.CategoryID = &cat
			t.Reviewed = true
		}
		records = append(records, t)
	}

	updates := make([]repository.TransactionUpdate, 0, len(modified))
	for _, pt := range modified {
		date, err := time.Parse(time.DateOnly, pt.Date)
		if err != nil {
			log.Warn().Str("external_id", pt.ExternalID).Str("date", pt.Date).Msg("skipping modified transaction with malformed date")
			result.Skipped++
			continue
		}
		cents, debit := ledger.SplitAmount(pt.Amount)
		u := repository.TransactionUpdate{
			ExternalID:  pt.ExternalID,
			AmountCents: cents,
			TxnType:     repository.TypeCredit,
			Description: pt.Description,
			TxnDate:     date,
			Pending:     pt.Pending,
		}
		if debit {
			u.TxnType = repository.TypeDebit
		}
		if pt.MerchantName != "" {
			m := pt.MerchantName
			u.MerchantName = &m
		}
		updates = append(updates, u)
	}

	stats := s.Writer.Apply(ctx, records, updates, removedIDs)
	result.Added = stats.Added
	result.Modified = stats.Modified
	result.Removed = stats.Removed
	result.ChunkErrors = len(stats.ChunkErrors)

	// Best-effort: a lost increment only costs ranking accuracy.
	for id, n := range ruleWins {
		if err := s.Rules.IncrementUsage(ctx, id, n); err != nil {
			log.Warn().Err(err).Str("rule", id).Msg("usage increment failed")
		}
	}

	// The accumulated pages are written (above) before the cursor advances,
	// so persisting the post-loop cursor never abandons acknowledged data —
	// even when the loop itself ended in a fetch error.
	status := repository.StatusActive
	switch {
	case fetchErr != nil:
		status = repository.StatusError
		result.Status = RunFailed
		result.Err = fetchErr.Error()
	case capped:
		result.Status = RunCapped
	default:
		result.Status = RunCompleted
	}
	if err := s.States.Record(ctx, itemID, cursorOr(cursor, st.Cursor), status); err != nil {
		result.Status = RunFailed
		result.Err = fmt.Sprintf("persist sync state: %v", err)
		return result
	}

	log.Info().Str("status", result.Status).Int("pages", pages).
		Int("added", result.Added).Int("modified", result.Modified).Int("removed", result.Removed).
		Int("chunk_errors", result.ChunkErrors).Msg("sync run finished")
	return result
}

// fail records the error state (keeping the given cursor) and builds a
// failed result. Recovery is retry-on-next-scheduled-invocation, which is
// exactly why the cursor must survive here.
func (s *Syncer) fail(ctx context.Context, itemID string, cursor *string, pages int, err error) SyncRunResult {
	if rerr := s.States.Record(ctx, itemID, cursor, repository.StatusError); rerr != nil {
		s.Log.Error().Err(rerr).Str("item", itemID).Msg("recording failed sync state")
	}
	return SyncRunResult{ItemID: itemID, Status: RunFailed, PagesFetched: pages, Err: err.Error()}
}

func (s *Syncer) begin(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == nil {
		s.inflight = make(map[string]struct{})
	}
	if _, running := s.inflight[itemID]; running {
		return false
	}
	s.inflight[itemID] = struct{}{}
	return true
}

func (s *Syncer) end(itemID string) {
	s.mu.Lock()
	delete(s.inflight, itemID)
	s.mu.Unlock()
}

func (s *Syncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// cursorOr keeps the previously persisted cursor when this run never
// received one.
func cursorOr(cursor string, prev *string) *string {
	if cursor != "" {
		return &cursor
	}
	return prev
}
