package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tradehook/internal/app"
	"tradehook/internal/domain"
	"tradehook/internal/ports"
	"tradehook/internal/trading"
)

// Consumer-side interfaces over the application services, so handlers can be
// tested against small fakes.
type signalProcessor interface {
	Process(ctx context.Context, sig *domain.Signal) (*domain.Trade, error)
}

type botManager interface {
	CreateBot(ctx context.Context, params app.CreateBotParams) (*domain.Bot, error)
	GetBot(ctx context.Context, id string) (*domain.Bot, error)
	ListBots(ctx context.Context, ownerID string) ([]*domain.Bot, error)
	UpdateBot(ctx context.Context, id string, params app.UpdateBotParams) (*domain.Bot, error)
	DeleteBot(ctx context.Context, id string) error
	WebhookURL(bot *domain.Bot) string
}

type tradeLedger interface {
	Get(ctx context.Context, id int64) (*domain.Trade, error)
	RecentByBot(ctx context.Context, botID string, limit int) ([]*domain.Trade, error)
	Close(ctx context.Context, tradeID int64, closePrice decimal.Decimal, closeTime time.Time) (*domain.Trade, error)
	Stats(ctx context.Context, botID string) (*trading.BotStats, error)
}

type positionCloser interface {
	ClosePosition(ctx context.Context, trade *domain.Trade) (decimal.Decimal, time.Time, error)
}

type priceSource interface {
	GetMarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type handlers struct {
	pipeline signalProcessor
	bots     botManager
	ledger   tradeLedger
	closer   positionCloser
	exchange priceSource
	logger   ports.Logger
}

// --- Envelopes ---

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"success": false, "error": err.Error()}
	var stageErr *app.StageError
	if errors.As(err, &stageErr) {
		body["stage"] = string(stageErr.Stage)
	}
	c.JSON(statusForError(err), body)
}

// statusForError maps the sentinel error families onto HTTP statuses. Finer
// sentinels are checked before their family so a rate limit is not reported
// as a generic exchange failure.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ports.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ports.ErrBotNotActive):
		return http.StatusForbidden
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ports.ErrSignalExpired):
		return http.StatusGone
	case errors.Is(err, ports.ErrDuplicateOrder), errors.Is(err, ports.ErrTradeAlreadyClosed):
		return http.StatusConflict
	case errors.Is(err, ports.ErrInvalidTransition), errors.Is(err, ports.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ports.ErrInvalidRequest), errors.Is(err, ports.ErrInvalidPrice):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ports.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ports.ErrExchange):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// --- Webhook ingress ---

// flexibleInt tolerates senders that quote numeric fields. A value that is
// not a number at all coerces to 0, which the freshness check then rejects.
type flexibleInt int

func (f *flexibleInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexibleInt(n)
	return nil
}

type webhookRequest struct {
	Timestamp    int64           `json:"timestamp"`
	MaxLag       flexibleInt     `json:"max_lag"`
	TVInstrument string          `json:"tv_instrument"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
	Signature    string          `json:"signature"`
	StrategyInfo struct {
		MarketPosition     string `json:"market_position"`
		PrevMarketPosition string `json:"prev_market_position"`
	} `json:"strategy_info"`
	Order struct {
		Amount       decimal.Decimal `json:"amount"`
		CurrencyType string          `json:"currency_type"`
	} `json:"order"`
}

func (r *webhookRequest) toSignal(botID string) *domain.Signal {
	unit := domain.AmountUnit(r.Order.CurrencyType)
	if unit == "" {
		unit = domain.AmountQuote
	}
	return &domain.Signal{
		BotID:        botID,
		Timestamp:    time.UnixMilli(r.Timestamp),
		MaxLag:       int(r.MaxLag),
		PrevPosition: domain.MarketPosition(r.StrategyInfo.PrevMarketPosition),
		Position:     domain.MarketPosition(r.StrategyInfo.MarketPosition),
		Symbol:       r.TVInstrument,
		TriggerPrice: r.TriggerPrice,
		Amount:       r.Order.Amount,
		AmountUnit:   unit,
		Signature:    r.Signature,
	}
}

func (h *handlers) handleWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &app.StageError{Stage: app.StageReceived, Err: ports.ErrInvalidRequest})
		return
	}

	trade, err := h.pipeline.Process(c.Request.Context(), req.toSignal(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, toTradeResponse(trade))
}

// --- Bot management ---

type createBotRequest struct {
	Name          string          `json:"name"`
	Symbol        string          `json:"symbol" binding:"required"`
	Leverage      int             `json:"leverage" binding:"required"`
	MaxMargin     decimal.Decimal `json:"maxMargin"`
	MaxInvestment int             `json:"maxInvestment" binding:"required"`
	OwnerID       string          `json:"ownerId"`
}

type updateBotRequest struct {
	Name          *string          `json:"name"`
	Symbol        *string          `json:"symbol"`
	Leverage      *int             `json:"leverage"`
	MaxMargin     *decimal.Decimal `json:"maxMargin"`
	MaxInvestment *int             `json:"maxInvestment"`
	Status        *string          `json:"status"`
}

type botResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Symbol        string          `json:"symbol"`
	Leverage      int             `json:"leverage"`
	MaxMargin     decimal.Decimal `json:"maxMargin"`
	MaxInvestment int             `json:"maxInvestment"`
	Status        string          `json:"status"`
	OwnerID       string          `json:"ownerId"`
	WebhookURL    string          `json:"webhookUrl"`
	CreatedAt     time.Time       `json:"createdAt"`
	// Secret is only revealed once, in the creation response.
	Secret string `json:"secret,omitempty"`
}

func (h *handlers) toBotResponse(bot *domain.Bot, includeSecret bool) botResponse {
	resp := botResponse{
		ID:            bot.ID,
		Name:          bot.Name,
		Symbol:        bot.Symbol,
		Leverage:      bot.Leverage,
		MaxMargin:     bot.MaxMargin,
		MaxInvestment: bot.MaxInvestment,
		Status:        string(bot.Status),
		OwnerID:       bot.OwnerID,
		WebhookURL:    h.bots.WebhookURL(bot),
		CreatedAt:     bot.CreatedAt,
	}
	if includeSecret {
		resp.Secret = bot.Secret
	}
	return resp
}

func (h *handlers) handleCreateBot(c *gin.Context) {
	var req createBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, ports.ErrInvalidRequest)
		return
	}

	bot, err := h.bots.CreateBot(c.Request.Context(), app.CreateBotParams{
		Name:          req.Name,
		Symbol:        req.Symbol,
		Leverage:      req.Leverage,
		MaxMargin:     req.MaxMargin,
		MaxInvestment: req.MaxInvestment,
		OwnerID:       req.OwnerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, h.toBotResponse(bot, true))
}

func (h *handlers) handleListBots(c *gin.Context) {
	bots, err := h.bots.ListBots(c.Request.Context(), c.Query("ownerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]botResponse, 0, len(bots))
	for _, bot := range bots {
		out = append(out, h.toBotResponse(bot, false))
	}
	respondOK(c, http.StatusOK, out)
}

func (h *handlers) handleGetBot(c *gin.Context) {
	bot, err := h.bots.GetBot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, h.toBotResponse(bot, false))
}

func (h *handlers) handleUpdateBot(c *gin.Context) {
	var req updateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, ports.ErrInvalidRequest)
		return
	}

	params := app.UpdateBotParams{
		Name:          req.Name,
		Symbol:        req.Symbol,
		Leverage:      req.Leverage,
		MaxMargin:     req.MaxMargin,
		MaxInvestment: req.MaxInvestment,
	}
	if req.Status != nil {
		status := domain.BotStatus(*req.Status)
		params.Status = &status
	}

	bot, err := h.bots.UpdateBot(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, h.toBotResponse(bot, false))
}

func (h *handlers) handleDeleteBot(c *gin.Context) {
	if err := h.bots.DeleteBot(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// --- Trades ---

type tradeResponse struct {
	ID         int64           `json:"id"`
	BotID      string          `json:"botId"`
	OrderID    string          `json:"orderId"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	Status     string          `json:"status"`
	ClosePrice decimal.Decimal `json:"closePrice"`
	CloseTime  *time.Time      `json:"closeTime,omitempty"`
	PNL        decimal.Decimal `json:"pnl"`
	OpenedAt   time.Time       `json:"openedAt"`
}

func toTradeResponse(trade *domain.Trade) tradeResponse {
	resp := tradeResponse{
		ID:         trade.ID,
		BotID:      trade.BotID,
		OrderID:    trade.OrderID,
		Symbol:     trade.Symbol,
		Side:       string(trade.Side),
		Quantity:   trade.Quantity,
		EntryPrice: trade.EntryPrice,
		Status:     string(trade.Status),
		ClosePrice: trade.ClosePrice,
		PNL:        trade.PNL,
		OpenedAt:   trade.OpenedAt,
	}
	if !trade.CloseTime.IsZero() {
		t := trade.CloseTime
		resp.CloseTime = &t
	}
	return resp
}

func (h *handlers) tradeID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, ports.ErrInvalidRequest)
		return 0, false
	}
	return id, true
}

func (h *handlers) handleBotTrades(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, ports.ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	// Confirm the bot exists so an unknown id is a 404, not an empty list.
	if _, err := h.bots.GetBot(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	trades, err := h.ledger.RecentByBot(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]tradeResponse, 0, len(trades))
	for _, trade := range trades {
		out = append(out, toTradeResponse(trade))
	}
	respondOK(c, http.StatusOK, out)
}

func (h *handlers) handleBotStats(c *gin.Context) {
	if _, err := h.bots.GetBot(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	stats, err := h.ledger.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, stats)
}

func (h *handlers) handleGetTrade(c *gin.Context) {
	id, ok := h.tradeID(c)
	if !ok {
		return
	}
	trade, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, toTradeResponse(trade))
}

// handleTradePNL reports realized PnL for closed trades and a mark-to-market
// estimate at the current price for open ones.
func (h *handlers) handleTradePNL(c *gin.Context) {
	id, ok := h.tradeID(c)
	if !ok {
		return
	}
	trade, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	if trade.IsClosed() {
		respondOK(c, http.StatusOK, gin.H{
			"tradeId":  trade.ID,
			"realized": true,
			"pnl":      trade.PNL,
			"price":    trade.ClosePrice,
		})
		return
	}

	price, err := h.exchange.GetMarketPrice(c.Request.Context(), trade.Symbol)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"tradeId":  trade.ID,
		"realized": false,
		"pnl":      trade.PNLAt(price),
		"price":    price,
	})
}

// handleCloseTrade exits the position on the exchange, then records the close
// in the ledger.
func (h *handlers) handleCloseTrade(c *gin.Context) {
	id, ok := h.tradeID(c)
	if !ok {
		return
	}
	trade, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if trade.IsClosed() {
		respondError(c, ports.ErrTradeAlreadyClosed)
		return
	}

	closePrice, closeTime, err := h.closer.ClosePosition(c.Request.Context(), trade)
	if err != nil {
		respondError(c, err)
		return
	}

	closed, err := h.ledger.Close(c.Request.Context(), id, closePrice, closeTime)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, toTradeResponse(closed))
}
