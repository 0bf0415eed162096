package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradehook/internal/ports"
)

var oneHundred = decimal.NewFromInt(100)

// Sizer computes order quantities from account balance and bot risk
// configuration. All arithmetic is decimal to keep monetary values exact.
type Sizer struct{}

// NewSizer creates a position sizer.
func NewSizer() *Sizer {
	return &Sizer{}
}

// Size computes the base-asset quantity for an order.
//
// If explicit is non-nil the signal specified a base-asset quantity and it is
// used verbatim, bypassing balance-based sizing. Otherwise:
//
//	margin   = balance * maxInvestmentPct / 100, capped at maxMargin
//	quantity = margin * leverage / price
//
// maxMargin is the bot's quote-currency margin cap; zero disables it. A zero
// or negative price fails with ErrInvalidPrice.
func (s *Sizer) Size(balance, price decimal.Decimal, maxInvestmentPct, leverage int, maxMargin decimal.Decimal, explicit *decimal.Decimal) (decimal.Decimal, error) {
	if explicit != nil {
		return *explicit, nil
	}

	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("price %s: %w", price, ports.ErrInvalidPrice)
	}

	margin := balance.Mul(decimal.NewFromInt(int64(maxInvestmentPct))).Div(oneHundred)
	if maxMargin.IsPositive() && margin.GreaterThan(maxMargin) {
		margin = maxMargin
	}

	notional := margin.Mul(decimal.NewFromInt(int64(leverage)))
	return notional.Div(price), nil
}
