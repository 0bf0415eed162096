package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Signal is an inbound webhook instruction asserting a desired position-state
// change for a bot. Signals are ephemeral; only the resulting trade is stored.
type Signal struct {
	BotID        string          // Bot the signal is addressed to
	Timestamp    time.Time       // Time the signal was issued (epoch millis on the wire)
	MaxLag       int             // Maximum acceptable age in seconds; <=0 rejects the signal
	PrevPosition MarketPosition  // Market position before the transition
	Position     MarketPosition  // Target market position
	Symbol       string          // Instrument the signal refers to
	TriggerPrice decimal.Decimal // Price that triggered the alert
	Amount       decimal.Decimal // Order amount, denominated per AmountUnit
	AmountUnit   AmountUnit      // "quote" or "base"
	Signature    string          // Hex HMAC-SHA256 over CanonicalPayload
}

// CanonicalPayload returns the deterministic serialization the signature is
// computed over: pipe-delimited fields in fixed order, timestamp as epoch
// millis, decimals in their plain string form. Signing the raw request body
// would make the signature depend on key order and whitespace, so both sides
// sign this canonical form instead.
func (s *Signal) CanonicalPayload() string {
	return strings.Join([]string{
		s.BotID,
		strconv.FormatInt(s.Timestamp.UnixMilli(), 10),
		strconv.Itoa(s.MaxLag),
		string(s.PrevPosition),
		string(s.Position),
		s.Symbol,
		s.TriggerPrice.String(),
		s.Amount.String(),
		string(s.AmountUnit),
	}, "|")
}

// HasExplicitQuantity reports whether the signal carries a base-asset quantity
// that bypasses balance-based sizing.
func (s *Signal) HasExplicitQuantity() bool {
	return s.AmountUnit == AmountBase && s.Amount.IsPositive()
}
