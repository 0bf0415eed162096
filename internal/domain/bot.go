package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Leverage and investment bounds accepted at bot registration.
const (
	MinLeverage = 1
	MaxLeverage = 125

	MinInvestmentPct = 1
	MaxInvestmentPct = 100
)

// Bot is a registered webhook trading bot. Each bot owns a signing secret
// (generated once at creation, never regenerated implicitly) that inbound
// signals must be signed with.
type Bot struct {
	ID            string          // Opaque unique identifier (UUID)
	Name          string          // Display name
	Symbol        string          // Exchange symbol/pair (e.g. "ETHUSDT")
	Leverage      int             // Exchange-side leverage, MinLeverage..MaxLeverage
	MaxMargin     decimal.Decimal // Maximum margin in quote currency
	MaxInvestment int             // Percentage of balance risked per trade, 1..100
	Secret        string          // Webhook signing key
	Status        BotStatus       // ACTIVE, PAUSED or STOPPED
	OwnerID       string          // Owning user reference
	CreatedAt     time.Time
}

// IsActive reports whether the bot currently accepts signals.
func (b *Bot) IsActive() bool {
	return b.Status == BotActive
}
