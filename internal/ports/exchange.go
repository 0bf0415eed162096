package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradehook/internal/domain"
)

// OrderResult represents the essential details returned after placing an order.
type OrderResult struct {
	OrderID  string           // Exchange's order id
	Symbol   string           // Symbol for the order
	Side     domain.OrderSide // Order side (BUY, SELL)
	Price    decimal.Decimal  // Average fill price (may be zero if unreported)
	Quantity decimal.Decimal  // Executed quantity
	Status   string           // Exchange order status (e.g. NEW, FILLED)
	Time     time.Time        // Time the order response was generated
}

// ExchangeGateway abstracts the exchange operations the execution pipeline
// needs. Implementations own their request timeout: every call must return
// within the gateway's configured bound.
type ExchangeGateway interface {
	// SetLeverage sets the leverage for a symbol. Must be called before
	// placing an order so the configured leverage is in effect when it fills.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// GetMarketPrice retrieves the current market price for a symbol.
	GetMarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// PlaceMarketOrder places a market order and returns its details.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity decimal.Decimal) (*OrderResult, error)

	// GetAvailableBalance retrieves the available balance for an asset (e.g. "USDT").
	GetAvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}
