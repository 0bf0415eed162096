package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the side that closes an exposure opened with this side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// MarketPosition describes a bot's market exposure as asserted by a signal.
type MarketPosition string

const (
	PositionFlat  MarketPosition = "flat"
	PositionLong  MarketPosition = "long"
	PositionShort MarketPosition = "short"
)

// IsValid reports whether the value is one of the three known positions.
func (p MarketPosition) IsValid() bool {
	switch p {
	case PositionFlat, PositionLong, PositionShort:
		return true
	}
	return false
}

// TradeStatus represents the lifecycle status of a trade record.
type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeExecuted  TradeStatus = "EXECUTED"
	TradeFailed    TradeStatus = "FAILED"
	TradeCancelled TradeStatus = "CANCELLED"
	TradeClosed    TradeStatus = "CLOSED"
)

// BotStatus represents the lifecycle status of a bot.
type BotStatus string

const (
	BotActive  BotStatus = "ACTIVE"
	BotPaused  BotStatus = "PAUSED"
	BotStopped BotStatus = "STOPPED"
)

// IsValid reports whether the value is a known bot status.
func (s BotStatus) IsValid() bool {
	switch s {
	case BotActive, BotPaused, BotStopped:
		return true
	}
	return false
}

// AmountUnit distinguishes how a signal's order amount is denominated.
type AmountUnit string

const (
	// AmountQuote means the amount is a quote-currency notional (e.g. USDT).
	AmountQuote AmountUnit = "quote"
	// AmountBase means the amount is a base-asset quantity used verbatim.
	AmountBase AmountUnit = "base"
)
