package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradehook/internal/app"
	"tradehook/internal/domain"
	"tradehook/internal/ports"
	"tradehook/internal/trading"
)

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fakePipeline struct {
	gotSignal *domain.Signal
	trade     *domain.Trade
	err       error
}

func (f *fakePipeline) Process(ctx context.Context, sig *domain.Signal) (*domain.Trade, error) {
	f.gotSignal = sig
	if f.err != nil {
		return nil, f.err
	}
	return f.trade, nil
}

type fakeBots struct {
	bot *domain.Bot
	err error
}

func (f *fakeBots) CreateBot(ctx context.Context, params app.CreateBotParams) (*domain.Bot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bot, nil
}

func (f *fakeBots) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bot, nil
}

func (f *fakeBots) ListBots(ctx context.Context, ownerID string) ([]*domain.Bot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*domain.Bot{f.bot}, nil
}

func (f *fakeBots) UpdateBot(ctx context.Context, id string, params app.UpdateBotParams) (*domain.Bot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bot, nil
}

func (f *fakeBots) DeleteBot(ctx context.Context, id string) error {
	return f.err
}

func (f *fakeBots) WebhookURL(bot *domain.Bot) string {
	return "https://hooks.example.com/webhook/" + bot.ID
}

type fakeLedger struct {
	trade  *domain.Trade
	stats  *trading.BotStats
	getErr error
}

func (f *fakeLedger) Get(ctx context.Context, id int64) (*domain.Trade, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.trade, nil
}

func (f *fakeLedger) RecentByBot(ctx context.Context, botID string, limit int) ([]*domain.Trade, error) {
	return []*domain.Trade{f.trade}, nil
}

func (f *fakeLedger) Close(ctx context.Context, tradeID int64, closePrice decimal.Decimal, closeTime time.Time) (*domain.Trade, error) {
	closed := *f.trade
	closed.Status = domain.TradeClosed
	closed.ClosePrice = closePrice
	closed.CloseTime = closeTime
	closed.PNL = closed.PNLAt(closePrice)
	return &closed, nil
}

func (f *fakeLedger) Stats(ctx context.Context, botID string) (*trading.BotStats, error) {
	return f.stats, nil
}

type fakeCloser struct {
	price decimal.Decimal
	err   error
}

func (f *fakeCloser) ClosePosition(ctx context.Context, trade *domain.Trade) (decimal.Decimal, time.Time, error) {
	if f.err != nil {
		return decimal.Zero, time.Time{}, f.err
	}
	return f.price, time.Now().UTC(), nil
}

type fakeExchange struct {
	price decimal.Decimal
}

func (f *fakeExchange) GetMarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f.price, nil
}

func sampleTrade() *domain.Trade {
	return &domain.Trade{
		ID:         7,
		BotID:      "bot-1",
		OrderID:    "order-1",
		Symbol:     "ETHUSDT",
		Side:       domain.Buy,
		Quantity:   decimal.NewFromInt(2),
		EntryPrice: decimal.NewFromInt(100),
		Status:     domain.TradeExecuted,
		OpenedAt:   time.Now().UTC(),
	}
}

func sampleBot() *domain.Bot {
	return &domain.Bot{
		ID:            "bot-1",
		Name:          "eth scalper",
		Symbol:        "ETHUSDT",
		Leverage:      10,
		MaxMargin:     decimal.NewFromInt(500),
		MaxInvestment: 30,
		Secret:        "s3cret",
		Status:        domain.BotActive,
		OwnerID:       "owner-1",
		CreatedAt:     time.Now().UTC(),
	}
}

type fixture struct {
	server   *Server
	pipeline *fakePipeline
	bots     *fakeBots
	ledger   *fakeLedger
	closer   *fakeCloser
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		pipeline: &fakePipeline{trade: sampleTrade()},
		bots:     &fakeBots{bot: sampleBot()},
		ledger:   &fakeLedger{trade: sampleTrade(), stats: &trading.BotStats{TotalTrades: 1}},
		closer:   &fakeCloser{price: decimal.NewFromInt(110)},
	}
	srv, err := NewServer(Config{
		Logger:   noopLogger{},
		Pipeline: f.pipeline,
		Bots:     f.bots,
		Ledger:   f.ledger,
		Closer:   f.closer,
		Exchange: &fakeExchange{price: decimal.NewFromInt(105)},
	})
	require.NoError(t, err)
	f.server = srv
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func webhookBody() map[string]interface{} {
	return map[string]interface{}{
		"timestamp":     time.Now().UnixMilli(),
		"max_lag":       30,
		"tv_instrument": "ETHUSDT",
		"trigger_price": "2000",
		"signature":     "aabbcc",
		"strategy_info": map[string]string{
			"market_position":      "long",
			"prev_market_position": "flat",
		},
		"order": map[string]interface{}{
			"amount":        "0",
			"currency_type": "quote",
		},
	}
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/webhook/bot-1", webhookBody())
	assert.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])

	// The URL path id wins over anything in the body.
	assert.Equal(t, "bot-1", f.pipeline.gotSignal.BotID)
	assert.Equal(t, domain.PositionFlat, f.pipeline.gotSignal.PrevPosition)
	assert.Equal(t, domain.PositionLong, f.pipeline.gotSignal.Position)
	assert.Equal(t, 30, f.pipeline.gotSignal.MaxLag)
}

func TestHandleWebhookQuotedMaxLag(t *testing.T) {
	f := newFixture(t)

	body := webhookBody()
	body["max_lag"] = "45"
	rec := f.do(t, http.MethodPost, "/webhook/bot-1", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 45, f.pipeline.gotSignal.MaxLag)

	// Garbage coerces to 0; the pipeline's freshness check rejects it there.
	body["max_lag"] = "soon"
	f.do(t, http.MethodPost, "/webhook/bot-1", body)
	assert.Equal(t, 0, f.pipeline.gotSignal.MaxLag)
}

func TestHandleWebhookErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantStage  string
	}{
		{
			name:       "bad signature",
			err:        &app.StageError{Stage: app.StageValidated, Err: ports.ErrInvalidSignature},
			wantStatus: http.StatusUnauthorized,
			wantStage:  "VALIDATED",
		},
		{
			name:       "expired",
			err:        &app.StageError{Stage: app.StageValidated, Err: ports.ErrSignalExpired},
			wantStatus: http.StatusGone,
			wantStage:  "VALIDATED",
		},
		{
			name:       "unknown bot",
			err:        &app.StageError{Stage: app.StageValidated, Err: ports.ErrNotFound},
			wantStatus: http.StatusNotFound,
			wantStage:  "VALIDATED",
		},
		{
			name:       "inactive bot",
			err:        &app.StageError{Stage: app.StageValidated, Err: ports.ErrBotNotActive},
			wantStatus: http.StatusForbidden,
			wantStage:  "VALIDATED",
		},
		{
			name:       "invalid transition",
			err:        &app.StageError{Stage: app.StageTransitionResolved, Err: ports.ErrInvalidTransition},
			wantStatus: http.StatusUnprocessableEntity,
			wantStage:  "TRANSITION_RESOLVED",
		},
		{
			name:       "duplicate order",
			err:        &app.StageError{Stage: app.StageRecorded, Err: ports.ErrDuplicateOrder},
			wantStatus: http.StatusConflict,
			wantStage:  "RECORDED",
		},
		{
			name:       "exchange down",
			err:        &app.StageError{Stage: app.StageOrderPlaced, Err: fmt.Errorf("place order: %w", ports.ErrExchange)},
			wantStatus: http.StatusBadGateway,
			wantStage:  "ORDER_PLACED",
		},
		{
			name:       "rate limited",
			err:        &app.StageError{Stage: app.StageOrderPlaced, Err: fmt.Errorf("%w: %w", ports.ErrExchange, ports.ErrRateLimited)},
			wantStatus: http.StatusTooManyRequests,
			wantStage:  "ORDER_PLACED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.pipeline.err = tt.err

			rec := f.do(t, http.MethodPost, "/webhook/bot-1", webhookBody())
			assert.Equal(t, tt.wantStatus, rec.Code)

			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantStage, body["stage"])
		})
	}
}

func TestHandleWebhookMalformedBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/bot-1", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "RECEIVED", body["stage"])
}

func TestHandleCreateBot(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/bots", map[string]interface{}{
		"name":          "eth scalper",
		"symbol":        "ETHUSDT",
		"leverage":      10,
		"maxInvestment": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "s3cret", data["secret"])
	assert.Equal(t, "https://hooks.example.com/webhook/bot-1", data["webhookUrl"])
}

func TestHandleGetBotHidesSecret(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/bots/bot-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	_, has := data["secret"]
	assert.False(t, has, "secret must only appear in the creation response")
}

func TestHandleGetBotNotFound(t *testing.T) {
	f := newFixture(t)
	f.bots.err = fmt.Errorf("bot missing: %w", ports.ErrNotFound)

	rec := f.do(t, http.MethodGet, "/api/bots/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCloseTrade(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/trades/7/close", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "CLOSED", data["status"])
	// BUY 100 -> 110 with qty 2.
	assert.Equal(t, "20", fmt.Sprintf("%v", data["pnl"]))
}

func TestHandleCloseTradeAlreadyClosed(t *testing.T) {
	f := newFixture(t)
	f.ledger.trade.Status = domain.TradeClosed

	rec := f.do(t, http.MethodPost, "/api/trades/7/close", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleCloseTradeBadID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/trades/abc/close", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTradePNLUnrealized(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/trades/7/pnl", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, false, data["realized"])
	// BUY 100 marked at 105 with qty 2.
	assert.Equal(t, "10", fmt.Sprintf("%v", data["pnl"]))
}

func TestHandleBotStats(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/bots/bot-1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["totalTrades"])
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
