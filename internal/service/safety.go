package service

import "time"

// Policy bounds one sync run. The caps are throughput limiters, never a
// data-loss mechanism: a capped run keeps its cursor so the next run resumes
// where this one stopped.
type Policy struct {
	PageCap         int
	MaxTransactions int // added+modified accumulated per run
	Cooldown        time.Duration
}

// Exceeded reports whether either cap has been hit. Checked after each page
// fetch.
func (p Policy) Exceeded(pages, accumulated int) bool {
	return pages >= p.PageCap || accumulated >= p.MaxTransactions
}

// InCooldown reports whether a run for an item that last synced at the given
// time may not start yet. A nil lastSyncedAt (never synced) is never in
// cooldown.
func (p Policy) InCooldown(lastSyncedAt *time.Time, now time.Time) bool {
	if lastSyncedAt == nil {
		return false
	}
	return now.Sub(*lastSyncedAt) < p.Cooldown
}
