package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradehook/internal/domain"
	"tradehook/internal/ports"
)

// Ledger stores trades and derives close results and aggregate statistics
// from them. PnL is computed here, deterministically, only at close.
type Ledger struct {
	trades ports.TradeRepository
	logger ports.Logger
}

// LedgerConfig holds the ledger's dependencies.
type LedgerConfig struct {
	Trades ports.TradeRepository
	Logger ports.Logger
}

// NewLedger creates a trade ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Trades == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Ledger")
	}
	return &Ledger{trades: cfg.Trades, logger: cfg.Logger}, nil
}

// BotStats aggregates the CLOSED trades of a bot. A trade with zero PnL
// counts as losing, not winning.
type BotStats struct {
	TotalTrades   int             `json:"totalTrades"`
	WinningTrades int             `json:"winningTrades"`
	LosingTrades  int             `json:"losingTrades"`
	TotalPNL      decimal.Decimal `json:"totalPnL"`
	WinRate       decimal.Decimal `json:"winRate"`
	AverageWin    decimal.Decimal `json:"averageWin"`
	AverageLoss   decimal.Decimal `json:"averageLoss"`
}

// Record persists a trade. The repository's atomic (bot id, order id) guard
// makes double-processing of the same exchange order fail with
// ErrDuplicateOrder.
func (l *Ledger) Record(ctx context.Context, trade *domain.Trade) (int64, error) {
	id, err := l.trades.Create(ctx, trade)
	if err != nil {
		return 0, fmt.Errorf("record trade for bot %s order %s: %w", trade.BotID, trade.OrderID, err)
	}
	trade.ID = id
	l.logger.Debug(ctx, "Trade recorded", map[string]interface{}{"tradeID": id, "botID": trade.BotID, "orderID": trade.OrderID})
	return id, nil
}

// Get retrieves a trade by id, failing with ErrNotFound if absent.
func (l *Ledger) Get(ctx context.Context, id int64) (*domain.Trade, error) {
	trade, err := l.trades.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find trade %d: %w", id, err)
	}
	if trade == nil {
		return nil, fmt.Errorf("trade %d: %w", id, ports.ErrNotFound)
	}
	return trade, nil
}

// RecentByBot returns the most recent trades for a bot, newest first.
func (l *Ledger) RecentByBot(ctx context.Context, botID string, limit int) ([]*domain.Trade, error) {
	return l.trades.FindByBot(ctx, botID, limit)
}

// Close marks a trade CLOSED at the given price and time and computes its
// realized PnL. A closed trade is never mutated again.
func (l *Ledger) Close(ctx context.Context, tradeID int64, closePrice decimal.Decimal, closeTime time.Time) (*domain.Trade, error) {
	trade, err := l.Get(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.IsClosed() {
		return nil, fmt.Errorf("trade %d: %w", tradeID, ports.ErrTradeAlreadyClosed)
	}

	trade.Status = domain.TradeClosed
	trade.ClosePrice = closePrice
	trade.CloseTime = closeTime
	trade.PNL = trade.PNLAt(closePrice)

	if err := l.trades.Update(ctx, trade); err != nil {
		return nil, fmt.Errorf("update closed trade %d: %w", tradeID, err)
	}

	l.logger.Info(ctx, "Trade closed", map[string]interface{}{
		"tradeID":    trade.ID,
		"botID":      trade.BotID,
		"closePrice": closePrice.String(),
		"pnl":        trade.PNL.String(),
	})
	return trade, nil
}

// Stats computes aggregate statistics over a bot's CLOSED trades. WinRate is
// defined as 0 when there are no closed trades rather than dividing by zero.
func (l *Ledger) Stats(ctx context.Context, botID string) (*BotStats, error) {
	closed, err := l.trades.FindClosedByBot(ctx, botID)
	if err != nil {
		return nil, fmt.Errorf("load closed trades for bot %s: %w", botID, err)
	}

	stats := &BotStats{
		TotalPNL:    decimal.Zero,
		WinRate:     decimal.Zero,
		AverageWin:  decimal.Zero,
		AverageLoss: decimal.Zero,
	}

	winSum := decimal.Zero
	lossSum := decimal.Zero
	for _, trade := range closed {
		stats.TotalTrades++
		stats.TotalPNL = stats.TotalPNL.Add(trade.PNL)
		if trade.PNL.IsPositive() {
			stats.WinningTrades++
			winSum = winSum.Add(trade.PNL)
		} else {
			stats.LosingTrades++
			lossSum = lossSum.Add(trade.PNL.Abs())
		}
	}

	if stats.TotalTrades > 0 {
		stats.WinRate = decimal.NewFromInt(int64(stats.WinningTrades)).
			Mul(oneHundred).
			Div(decimal.NewFromInt(int64(stats.TotalTrades)))
	}
	stats.AverageWin = winSum.Div(decimal.NewFromInt(int64(max(stats.WinningTrades, 1))))
	stats.AverageLoss = lossSum.Div(decimal.NewFromInt(int64(max(stats.LosingTrades, 1))))

	return stats, nil
}

var oneHundred = decimal.NewFromInt(100)
