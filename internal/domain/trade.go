package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a recorded exchange order placed on behalf of a bot. A trade is
// created in EXECUTED status when the order is accepted by the exchange and
// is never mutated after it reaches CLOSED.
type Trade struct {
	ID         int64           // Assigned by the repository
	BotID      string          // Owning bot
	OrderID    string          // Exchange order id; unique per bot
	Symbol     string          // Instrument traded
	Side       OrderSide       // BUY or SELL
	Quantity   decimal.Decimal // Base-asset quantity
	EntryPrice decimal.Decimal // Fill price at placement
	Status     TradeStatus
	ClosePrice decimal.Decimal // Set when closed
	CloseTime  time.Time       // Set when closed
	PNL        decimal.Decimal // Realized PnL, defined only for CLOSED trades
	OpenedAt   time.Time
}

// IsClosed reports whether the trade has been closed.
func (t *Trade) IsClosed() bool {
	return t.Status == TradeClosed
}

// PNLAt returns the profit or loss realized by exiting the trade at the given
// price: (price - entry) * quantity for BUY, (entry - price) * quantity for SELL.
func (t *Trade) PNLAt(price decimal.Decimal) decimal.Decimal {
	if t.Side == Buy {
		return price.Sub(t.EntryPrice).Mul(t.Quantity)
	}
	return t.EntryPrice.Sub(price).Mul(t.Quantity)
}
