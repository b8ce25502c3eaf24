package repository

import "time"

// Confidence tiers for merchant rules.
const (
	RuleInferred  = "inferred"  // system-inferred from observed behavior
	RuleConfirmed = "confirmed" // user-confirmed
)

// Transaction sources.
const (
	SourceExternal = "external" // delivered by the remote ledger provider
	SourceManual   = "manual"   // created through the manual CRUD path
)

// Transaction types derived from the provider's signed amount.
const (
	TypeDebit  = "debit"
	TypeCredit = "credit"
)

// Sync statuses.
const (
	StatusActive = "active"
	StatusError  = "error"
)

// Account represents an account row.
type Account struct {
	ID          string
	ExternalID  *string
	Name        string
	Institution string
	AccountType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category represents a category row.
type Category struct {
	ID        string
	ParentID  *string
	Name      string
	SortOrder int
}

// Transaction represents a transaction row. ExternalID is the provider's
// stable natural key and doubles as the idempotency key for batch writes;
// manual transactions have none.
type Transaction struct {
	ID           string
	AccountID    string
	ExternalID   *string
	AmountCents  int64 // non-negative magnitude; sign lives in TxnType
	TxnType      string
	Description  string
	MerchantName *string
	CategoryID   *string
	TxnDate      time.Time
	Pending      bool
	Reviewed     bool
	Source       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TransactionUpdate carries the mutable fields of a provider "modified"
// delta. Category is deliberately absent: provider-side edits must never
// clobber a category a human may have corrected.
type TransactionUpdate struct {
	ExternalID   string
	AmountCents  int64
	TxnType      string
	Description  string
	MerchantName *string
	TxnDate      time.Time
	Pending      bool
}

// MerchantRule represents a categorization rule. UsageCount orders rule
// evaluation (higher first); it never filters rules out.
type MerchantRule struct {
	ID         string
	Pattern    string
	CategoryID string
	Confidence string
	UsageCount int64
	CreatedAt  time.Time
}

// SyncState tracks per-item sync progress. Cursor is an opaque resumption
// token owned by the provider protocol; it is stored and echoed back, never
// parsed.
type SyncState struct {
	ItemID       string
	Cursor       *string
	LastSyncedAt *time.Time
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
