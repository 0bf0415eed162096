package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradehook/internal/domain"
	"tradehook/internal/ports"
)

// Executor places orders on the exchange and constructs the resulting trade
// records. It makes exactly one order placement attempt per invocation;
// retries are the caller's policy.
type Executor struct {
	exchange ports.ExchangeGateway
	logger   ports.Logger
	now      func() time.Time
}

// ExecutorConfig holds the executor's dependencies.
type ExecutorConfig struct {
	Exchange ports.ExchangeGateway
	Logger   ports.Logger
	Now      func() time.Time
}

// NewExecutor creates an order executor.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Exchange == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Executor")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{exchange: cfg.Exchange, logger: cfg.Logger, now: now}, nil
}

// Execute runs the order placement sequence: set leverage, fetch the market
// price, place the market order. The configured leverage must be in effect
// when the order fills, so leverage is set first. Any exchange failure aborts the
// sequence; no trade is constructed on failure, so there is nothing to roll
// back. The returned trade is in EXECUTED status and not yet persisted.
func (e *Executor) Execute(ctx context.Context, bot *domain.Bot, side domain.OrderSide, symbol string, quantity decimal.Decimal) (*domain.Trade, error) {
	op := "Execute"

	if err := e.exchange.SetLeverage(ctx, symbol, bot.Leverage); err != nil {
		return nil, fmt.Errorf("set leverage: %w: %w", ports.ErrExchange, err)
	}

	price, err := e.exchange.GetMarketPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("get market price: %w: %w", ports.ErrExchange, err)
	}

	order, err := e.exchange.PlaceMarketOrder(ctx, symbol, side, quantity)
	if err != nil {
		return nil, fmt.Errorf("place order: %w: %w", ports.ErrExchange, err)
	}

	entryPrice := order.Price
	if entryPrice.IsZero() {
		// Some exchanges report no fill price on market orders immediately.
		e.logger.Warn(ctx, op+": order fill price is 0, using market price as fallback", map[string]interface{}{
			"orderID":       order.OrderID,
			"fallbackPrice": price.String(),
		})
		entryPrice = price
	}

	e.logger.Info(ctx, op+": order placed", map[string]interface{}{
		"botID":    bot.ID,
		"orderID":  order.OrderID,
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity.String(),
		"price":    entryPrice.String(),
	})

	return &domain.Trade{
		BotID:      bot.ID,
		OrderID:    order.OrderID,
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		Status:     domain.TradeExecuted,
		OpenedAt:   e.now().UTC(),
	}, nil
}

// ClosePosition places the opposite-side market order that exits a trade and
// returns the close price and time. The trade record itself is updated by the
// ledger, not here.
func (e *Executor) ClosePosition(ctx context.Context, trade *domain.Trade) (decimal.Decimal, time.Time, error) {
	op := "ClosePosition"

	order, err := e.exchange.PlaceMarketOrder(ctx, trade.Symbol, trade.Side.Opposite(), trade.Quantity)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("place closing order: %w: %w", ports.ErrExchange, err)
	}

	closePrice := order.Price
	if closePrice.IsZero() {
		closePrice, err = e.exchange.GetMarketPrice(ctx, trade.Symbol)
		if err != nil {
			return decimal.Zero, time.Time{}, fmt.Errorf("get close price after fill: %w: %w", ports.ErrExchange, err)
		}
	}

	e.logger.Info(ctx, op+": closing order placed", map[string]interface{}{
		"tradeID":    trade.ID,
		"orderID":    order.OrderID,
		"closePrice": closePrice.String(),
	})

	return closePrice, e.now().UTC(), nil
}
