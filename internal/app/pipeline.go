package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradehook/internal/domain"
	"tradehook/internal/ports"
	"tradehook/internal/risk"
	"tradehook/internal/signal"
	"tradehook/internal/trading"
)

// Stage identifies how far a signal made it through the pipeline.
type Stage string

const (
	StageReceived           Stage = "RECEIVED"
	StageValidated          Stage = "VALIDATED"
	StageTransitionResolved Stage = "TRANSITION_RESOLVED"
	StageSized              Stage = "SIZED"
	StageOrderPlaced        Stage = "ORDER_PLACED"
	StageRecorded           Stage = "RECORDED"
)

// StageError wraps a failure with the stage that produced it, so callers can
// report where processing stopped while still classifying the cause with
// errors.Is.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Pipeline runs an inbound signal through validation, transition resolution,
// sizing, order execution and recording, strictly in that order. A failure at
// any stage aborts the rest; no partial trade is recorded.
type Pipeline struct {
	validator  *signal.Validator
	sizer      *risk.Sizer
	executor   *trading.Executor
	ledger     *trading.Ledger
	exchange   ports.ExchangeGateway
	logger     ports.Logger
	quoteAsset string
}

// PipelineConfig holds the pipeline's dependencies.
type PipelineConfig struct {
	Validator *signal.Validator
	Sizer     *risk.Sizer
	Executor  *trading.Executor
	Ledger    *trading.Ledger
	Exchange  ports.ExchangeGateway
	Logger    ports.Logger
	// QuoteAsset is the asset balance-based sizing draws on, e.g. "USDT".
	QuoteAsset string
}

// NewPipeline creates a webhook processing pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Validator == nil || cfg.Sizer == nil || cfg.Executor == nil ||
		cfg.Ledger == nil || cfg.Exchange == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Pipeline")
	}
	quoteAsset := cfg.QuoteAsset
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	return &Pipeline{
		validator:  cfg.Validator,
		sizer:      cfg.Sizer,
		executor:   cfg.Executor,
		ledger:     cfg.Ledger,
		exchange:   cfg.Exchange,
		logger:     cfg.Logger,
		quoteAsset: quoteAsset,
	}, nil
}

// Process takes a received signal to a recorded trade. On failure the
// returned error is a StageError naming the stage that rejected the signal.
func (p *Pipeline) Process(ctx context.Context, sig *domain.Signal) (*domain.Trade, error) {
	p.logger.Info(ctx, "Signal received", map[string]interface{}{
		"botID":    sig.BotID,
		"symbol":   sig.Symbol,
		"prev":     sig.PrevPosition,
		"position": sig.Position,
	})

	bot, err := p.validator.Validate(ctx, sig)
	if err != nil {
		return nil, stageErr(StageValidated, err)
	}
	if !bot.IsActive() {
		return nil, stageErr(StageValidated, fmt.Errorf("bot %s is %s: %w", bot.ID, bot.Status, ports.ErrBotNotActive))
	}

	side, err := signal.ResolveTransition(sig.PrevPosition, sig.Position)
	if err != nil {
		return nil, stageErr(StageTransitionResolved, err)
	}

	quantity, err := p.size(ctx, bot, sig)
	if err != nil {
		return nil, stageErr(StageSized, err)
	}

	trade, err := p.executor.Execute(ctx, bot, side, sig.Symbol, quantity)
	if err != nil {
		return nil, stageErr(StageOrderPlaced, err)
	}

	if _, err := p.ledger.Record(ctx, trade); err != nil {
		return nil, stageErr(StageRecorded, err)
	}

	p.logger.Info(ctx, "Signal processed", map[string]interface{}{
		"botID":   bot.ID,
		"tradeID": trade.ID,
		"side":    side,
	})
	return trade, nil
}

func (p *Pipeline) size(ctx context.Context, bot *domain.Bot, sig *domain.Signal) (decimal.Decimal, error) {
	var explicit *decimal.Decimal
	if sig.HasExplicitQuantity() {
		explicit = &sig.Amount
		// Balance and price are irrelevant for an explicit quantity.
		return p.sizer.Size(decimal.Zero, decimal.Zero, bot.MaxInvestment, bot.Leverage, bot.MaxMargin, explicit)
	}

	balance, err := p.exchange.GetAvailableBalance(ctx, p.quoteAsset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get %s balance: %w: %w", p.quoteAsset, ports.ErrExchange, err)
	}

	price, err := p.exchange.GetMarketPrice(ctx, sig.Symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get market price for sizing: %w: %w", ports.ErrExchange, err)
	}

	return p.sizer.Size(balance, price, bot.MaxInvestment, bot.Leverage, bot.MaxMargin, nil)
}
