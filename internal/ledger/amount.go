package ledger

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// SplitAmount converts a signed provider amount into a non-negative cent
// magnitude and a debit/credit marker. Decimal arithmetic avoids the
// off-by-one-cent errors binary floats produce.
func SplitAmount(d decimal.Decimal) (cents int64, debit bool) {
	debit = d.Sign() >= 0
	cents = d.Abs().Mul(hundred).Round(0).IntPart()
	return cents, debit
}
