package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradehook/internal/domain"
	"tradehook/internal/ports"
)

// BotService manages bot registrations: creation with generated credentials,
// lookup, updates and deletion.
type BotService struct {
	bots          ports.BotRepository
	logger        ports.Logger
	publicBaseURL string
	now           func() time.Time
}

// BotServiceConfig holds the bot service's dependencies.
type BotServiceConfig struct {
	Bots   ports.BotRepository
	Logger ports.Logger
	// PublicBaseURL is the externally reachable base URL webhook URLs are
	// built from, e.g. "https://hooks.example.com".
	PublicBaseURL string
	Now           func() time.Time
}

// NewBotService creates a bot service.
func NewBotService(cfg BotServiceConfig) (*BotService, error) {
	if cfg.Bots == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for BotService")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &BotService{
		bots:          cfg.Bots,
		logger:        cfg.Logger,
		publicBaseURL: cfg.PublicBaseURL,
		now:           now,
	}, nil
}

// CreateBotParams are the caller-supplied fields of a new bot. ID, secret,
// status and creation time are generated by the service.
type CreateBotParams struct {
	Name          string
	Symbol        string
	Leverage      int
	MaxMargin     decimal.Decimal
	MaxInvestment int
	OwnerID       string
}

func validateBotParams(symbol string, leverage, maxInvestment int, maxMargin decimal.Decimal) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required: %w", ports.ErrInvalidRequest)
	}
	if leverage < domain.MinLeverage || leverage > domain.MaxLeverage {
		return fmt.Errorf("leverage %d out of range [%d, %d]: %w",
			leverage, domain.MinLeverage, domain.MaxLeverage, ports.ErrInvalidRequest)
	}
	if maxInvestment < domain.MinInvestmentPct || maxInvestment > domain.MaxInvestmentPct {
		return fmt.Errorf("max investment %d%% out of range [%d, %d]: %w",
			maxInvestment, domain.MinInvestmentPct, domain.MaxInvestmentPct, ports.ErrInvalidRequest)
	}
	if maxMargin.IsNegative() {
		return fmt.Errorf("max margin %s must not be negative: %w", maxMargin, ports.ErrInvalidRequest)
	}
	return nil
}

// CreateBot registers a new bot with a generated id and signing secret. The
// bot starts ACTIVE.
func (s *BotService) CreateBot(ctx context.Context, params CreateBotParams) (*domain.Bot, error) {
	if err := validateBotParams(params.Symbol, params.Leverage, params.MaxInvestment, params.MaxMargin); err != nil {
		return nil, err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate bot secret: %w", err)
	}

	bot := &domain.Bot{
		ID:            uuid.NewString(),
		Name:          params.Name,
		Symbol:        params.Symbol,
		Leverage:      params.Leverage,
		MaxMargin:     params.MaxMargin,
		MaxInvestment: params.MaxInvestment,
		Secret:        secret,
		Status:        domain.BotActive,
		OwnerID:       params.OwnerID,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.bots.Create(ctx, bot); err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	s.logger.Info(ctx, "Bot created", map[string]interface{}{"botID": bot.ID, "symbol": bot.Symbol})
	return bot, nil
}

// GetBot retrieves a bot by id, failing with ErrNotFound if absent.
func (s *BotService) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	bot, err := s.bots.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find bot %s: %w", id, err)
	}
	if bot == nil {
		return nil, fmt.Errorf("bot %s: %w", id, ports.ErrNotFound)
	}
	return bot, nil
}

// ListBots returns all bots registered by an owner.
func (s *BotService) ListBots(ctx context.Context, ownerID string) ([]*domain.Bot, error) {
	return s.bots.FindByOwner(ctx, ownerID)
}

// UpdateBotParams carries the updatable bot fields. Nil fields are left
// unchanged.
type UpdateBotParams struct {
	Name          *string
	Symbol        *string
	Leverage      *int
	MaxMargin     *decimal.Decimal
	MaxInvestment *int
	Status        *domain.BotStatus
}

// UpdateBot applies a partial update to a bot's configuration.
func (s *BotService) UpdateBot(ctx context.Context, id string, params UpdateBotParams) (*domain.Bot, error) {
	bot, err := s.GetBot(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		bot.Name = *params.Name
	}
	if params.Symbol != nil {
		bot.Symbol = *params.Symbol
	}
	if params.Leverage != nil {
		bot.Leverage = *params.Leverage
	}
	if params.MaxMargin != nil {
		bot.MaxMargin = *params.MaxMargin
	}
	if params.MaxInvestment != nil {
		bot.MaxInvestment = *params.MaxInvestment
	}
	if params.Status != nil {
		if !params.Status.IsValid() {
			return nil, fmt.Errorf("status %q: %w", *params.Status, ports.ErrInvalidRequest)
		}
		bot.Status = *params.Status
	}

	if err := validateBotParams(bot.Symbol, bot.Leverage, bot.MaxInvestment, bot.MaxMargin); err != nil {
		return nil, err
	}

	if err := s.bots.Update(ctx, bot); err != nil {
		return nil, fmt.Errorf("update bot %s: %w", id, err)
	}
	return bot, nil
}

// DeleteBot removes a bot and, through the repository, its trade history.
func (s *BotService) DeleteBot(ctx context.Context, id string) error {
	if err := s.bots.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete bot %s: %w", id, err)
	}
	s.logger.Info(ctx, "Bot deleted", map[string]interface{}{"botID": id})
	return nil
}

// WebhookURL builds the ingress URL for a bot's signals.
func (s *BotService) WebhookURL(bot *domain.Bot) string {
	return fmt.Sprintf("%s/webhook/%s", s.publicBaseURL, bot.ID)
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
