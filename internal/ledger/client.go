// Package ledger defines the contract with the remote ledger provider's
// incremental-changes API and a JSON-over-HTTP implementation of it.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Client fetches one page of the provider's change stream. The cursor is an
// opaque token owned by the provider protocol: callers store and echo it
// back verbatim, never construct or inspect it. An empty cursor means
// "from the beginning".
type Client interface {
	FetchPage(ctx context.Context, accessToken, cursor string) (Page, error)
}

// Page is one page of incremental changes.
type Page struct {
	Added      []ProviderTxn
	Modified   []ProviderTxn
	RemovedIDs []string
	NextCursor string
	HasMore    bool
}

// ProviderTxn is a transaction as the provider reports it. Amount is signed:
// positive amounts are money leaving the account, negative amounts are money
// coming in.
type ProviderTxn struct {
	ExternalID        string          `json:"transaction_id"`
	AccountExternalID string          `json:"account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"name"`
	MerchantName      string          `json:"merchant_name,omitempty"`
	Date              string          `json:"date"`
	Pending           bool            `json:"pending"`
	CategoryCode      string          `json:"category_code,omitempty"`
}
